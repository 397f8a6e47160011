package export

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/mestouches/internal/codec"
	"github.com/roach88/mestouches/internal/record"
)

// Snapshot is the input of one export. Nil stores are recorded as absent.
type Snapshot struct {
	Source    string
	TakenAt   time.Time
	Keystream *codec.Keystream
	Pointer   *codec.Pointer
	Sessions  *codec.Sessions
}

// Info describes a stored snapshot.
type Info struct {
	ID        string
	TakenAt   time.Time
	Source    string
	Keystream bool
	Pointer   bool
	Sessions  bool
}

// Counts reports how many rows a snapshot wrote per table.
type Counts struct {
	KeyEvents int
	Displays  int
	Clicks    int
	Sessions  int
}

// WriteSnapshot stores s in one transaction and returns its ID.
func (d *DB) WriteSnapshot(ctx context.Context, s Snapshot) (string, Counts, error) {
	var counts Counts
	id, err := uuid.NewV7()
	if err != nil {
		return "", counts, fmt.Errorf("write snapshot: %w", err)
	}
	if s.TakenAt.IsZero() {
		s.TakenAt = time.Now()
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return "", counts, fmt.Errorf("write snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, taken_at, source, keystream, pointer, sessions)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), s.TakenAt.UnixMicro(), s.Source, s.Keystream != nil, s.Pointer != nil, s.Sessions != nil)
	if err != nil {
		return "", counts, fmt.Errorf("write snapshot: %w", err)
	}

	w := snapshotWriter{ctx: ctx, tx: tx, id: id.String()}
	if s.Keystream != nil {
		if err := w.keystream(s.Keystream); err != nil {
			return "", counts, err
		}
		counts.KeyEvents = len(s.Keystream.Entries)
	}
	if s.Pointer != nil {
		if err := w.pointer(s.Pointer); err != nil {
			return "", counts, err
		}
		counts.Displays = len(s.Pointer.Displays)
		counts.Clicks = len(s.Pointer.Clicks)
	}
	if s.Sessions != nil {
		if err := w.sessions(s.Sessions); err != nil {
			return "", counts, err
		}
		counts.Sessions = len(s.Sessions.Entries)
	}

	if err := tx.Commit(); err != nil {
		return "", counts, fmt.Errorf("write snapshot: commit: %w", err)
	}
	return id.String(), counts, nil
}

type snapshotWriter struct {
	ctx context.Context
	tx  *sql.Tx
	id  string
}

// each prepares query and runs it n times with the arguments built by row.
func (w snapshotWriter) each(table, query string, n int, row func(i int) []any) error {
	stmt, err := w.tx.PrepareContext(w.ctx, query)
	if err != nil {
		return fmt.Errorf("write %s: prepare: %w", table, err)
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		args := append([]any{w.id}, row(i)...)
		if _, err := stmt.ExecContext(w.ctx, args...); err != nil {
			return fmt.Errorf("write %s: %w", table, err)
		}
	}
	return nil
}

func (w snapshotWriter) keystream(k *codec.Keystream) error {
	err := w.each("key_counters",
		`INSERT INTO key_counters (snapshot_id, code, count) VALUES (?, ?, ?)`,
		len(k.Counters), func(i int) []any { return []any{i, k.Counters[i]} })
	if err != nil {
		return err
	}
	return w.each("key_events",
		`INSERT INTO key_events (snapshot_id, seq, code, ts) VALUES (?, ?, ?, ?)`,
		len(k.Entries), func(i int) []any {
			e := k.Entries[i]
			return []any{i, e.Code, micros(e.Timestamp)}
		})
}

func (w snapshotWriter) pointer(p *codec.Pointer) error {
	err := w.each("button_counters",
		`INSERT INTO button_counters (snapshot_id, button, name, count) VALUES (?, ?, ?, ?)`,
		len(p.Buttons), func(i int) []any { return []any{i, record.Button(i).String(), p.Buttons[i]} })
	if err != nil {
		return err
	}
	err = w.each("displays",
		`INSERT INTO displays (snapshot_id, idx, hash, name, x, y, width, height, start_ts, end_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(p.Displays), func(i int) []any {
			d := p.Displays[i]
			var end any
			if !d.Live() {
				end = micros(d.End)
			}
			return []any{i, d.Hash, d.Name, d.X, d.Y, d.Width, d.Height, micros(d.Start), end}
		})
	if err != nil {
		return err
	}
	return w.each("clicks",
		`INSERT INTO clicks (snapshot_id, seq, button, x, y, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		len(p.Clicks), func(i int) []any {
			c := p.Clicks[i]
			return []any{i, c.Button, c.X, c.Y, micros(c.Timestamp)}
		})
}

func (w snapshotWriter) sessions(s *codec.Sessions) error {
	return w.each("sessions",
		`INSERT INTO sessions (snapshot_id, seq, subject, document, start_ts, end_ts) VALUES (?, ?, ?, ?, ?, ?)`,
		len(s.Entries), func(i int) []any {
			u := s.Entries[i]
			return []any{i, u.Subject, u.Document, micros(u.Start), micros(u.End)}
		})
}

// micros converts a stored timestamp to an SQLite INTEGER, saturating
// values that do not fit.
func micros(ts uint64) int64 {
	if ts > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(ts)
}

// Snapshots lists every snapshot, oldest first.
func (d *DB) Snapshots(ctx context.Context) ([]Info, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, taken_at, source, keystream, pointer, sessions
		FROM snapshots
		ORDER BY taken_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		var taken int64
		if err := rows.Scan(&info.ID, &taken, &info.Source, &info.Keystream, &info.Pointer, &info.Sessions); err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		info.TakenAt = time.UnixMicro(taken)
		out = append(out, info)
	}
	return out, rows.Err()
}

// SubjectTotal is the summed session time of one subject.
type SubjectTotal struct {
	Subject  string
	Sessions int
	Total    int64 // µs
}

// SubjectTotals sums session time per subject for a snapshot, largest
// first.
func (d *DB) SubjectTotals(ctx context.Context, snapshotID string) ([]SubjectTotal, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT subject, COUNT(*), SUM(MAX(end_ts - start_ts, 0))
		FROM sessions
		WHERE snapshot_id = ?
		GROUP BY subject
		ORDER BY 3 DESC, subject ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("subject totals: %w", err)
	}
	defer rows.Close()

	var out []SubjectTotal
	for rows.Next() {
		var st SubjectTotal
		if err := rows.Scan(&st.Subject, &st.Sessions, &st.Total); err != nil {
			return nil, fmt.Errorf("subject totals: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// KeyCounts returns the non-zero key counters of a snapshot.
func (d *DB) KeyCounts(ctx context.Context, snapshotID string) (map[uint8]uint32, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT code, count FROM key_counters
		WHERE snapshot_id = ? AND count > 0
		ORDER BY code ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("key counts: %w", err)
	}
	defer rows.Close()

	out := make(map[uint8]uint32)
	for rows.Next() {
		var code, count int64
		if err := rows.Scan(&code, &count); err != nil {
			return nil, fmt.Errorf("key counts: %w", err)
		}
		out[uint8(code)] = uint32(count)
	}
	return out, rows.Err()
}

// Delete removes a snapshot and, through the foreign keys, all its rows.
func (d *DB) Delete(ctx context.Context, snapshotID string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, snapshotID)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete snapshot: %s: %w", snapshotID, sql.ErrNoRows)
	}
	return nil
}
