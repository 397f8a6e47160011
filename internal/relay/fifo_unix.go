//go:build linux || darwin

package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

// FIFOPath returns the channel path for opts.
func FIFOPath(opts Options) string {
	opts = opts.withDefaults()
	return filepath.Join(opts.Dir, opts.Name+".fifo")
}

func wakeDir(opts Options) string {
	opts = opts.withDefaults()
	return filepath.Join(opts.Dir, opts.Name+".wake")
}

type fifoReader struct {
	mu   sync.Mutex
	fd   int
	word int
	buf  []byte
}

// Listen creates the FIFO if needed and opens it for non-blocking reads.
func Listen(opts Options) (Reader, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	path := FIFOPath(opts)
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("relay: create dir: %w", err)
	}
	if err := unix.Mkfifo(path, 0o600); err != nil && !errors.Is(err, unix.EEXIST) {
		return nil, fmt.Errorf("relay: mkfifo %s: %w", path, err)
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("relay: open %s: %w", path, err)
	}
	return &fifoReader{fd: fd, word: opts.WordSize, buf: make([]byte, RecordSize(opts.WordSize))}, nil
}

func (r *fifoReader) Next() (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fd < 0 {
		return Record{}, false, ErrClosed
	}
	pending, err := unix.IoctlGetInt(r.fd, fionread)
	if err != nil {
		return Record{}, false, fmt.Errorf("relay: pending size: %w", err)
	}
	if pending < len(r.buf) {
		return Record{}, false, nil
	}
	n, err := unix.Read(r.fd, r.buf)
	if err != nil {
		return Record{}, false, fmt.Errorf("relay: read: %w", err)
	}
	if n != len(r.buf) {
		return Record{}, false, fmt.Errorf("relay: read %d of %d bytes", n, len(r.buf))
	}
	rec, err := Decode(r.buf, r.word)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (r *fifoReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fd < 0 {
		return nil
	}
	err := unix.Close(r.fd)
	r.fd = -1
	return err
}

type fifoWriter struct {
	mu   sync.Mutex
	fd   int
	word int
}

// Dial opens an existing FIFO for writing. It fails with ENXIO when no
// aggregator is listening.
func Dial(opts Options) (Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	path := FIFOPath(opts)
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("relay: open %s: %w", path, err)
	}
	return &fifoWriter{fd: fd, word: opts.WordSize}, nil
}

// Send writes one record. Records are smaller than PIPE_BUF, so each write
// is atomic.
func (w *fifoWriter) Send(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd < 0 {
		return ErrClosed
	}
	b := Encode(rec, w.word)
	n, err := unix.Write(w.fd, b)
	if err != nil {
		return fmt.Errorf("relay: write: %w", err)
	}
	if n != len(b) {
		return fmt.Errorf("relay: short write %d of %d bytes", n, len(b))
	}
	return nil
}

func (w *fifoWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fd < 0 {
		return nil
	}
	err := unix.Close(w.fd)
	w.fd = -1
	return err
}

type signalWakeup struct {
	file string
	sigs chan os.Signal
	out  chan struct{}
	done chan struct{}
	once sync.Once
}

// Subscribe registers this process for SIGUSR1 wake-ups on the channel.
func Subscribe(opts Options) (Wakeup, error) {
	dir := wakeDir(opts)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("relay: create wake dir: %w", err)
	}
	file := filepath.Join(dir, strconv.Itoa(os.Getpid()))
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		return nil, fmt.Errorf("relay: register wake-up: %w", err)
	}
	w := &signalWakeup{
		file: file,
		sigs: make(chan os.Signal, 1),
		out:  make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	signal.Notify(w.sigs, unix.SIGUSR1)
	go w.forward()
	return w, nil
}

func (w *signalWakeup) forward() {
	for {
		select {
		case <-w.done:
			return
		case <-w.sigs:
			notify(w.out)
		}
	}
}

func (w *signalWakeup) C() <-chan struct{} { return w.out }

func (w *signalWakeup) Close() error {
	var err error
	w.once.Do(func() {
		signal.Stop(w.sigs)
		close(w.done)
		if rmErr := os.Remove(w.file); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = rmErr
		}
	})
	return err
}

type signalWaker struct {
	dir string
}

// NewWaker returns a waker signalling every process registered on the
// channel.
func NewWaker(opts Options) Waker {
	return &signalWaker{dir: wakeDir(opts)}
}

func (w *signalWaker) Wake() error {
	return w.WakeAll(context.Background())
}

// WakeAll signals every registered aggregator. Registrations of processes
// that no longer exist are removed.
func (w *signalWaker) WakeAll(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("relay: list wake-ups: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		if err := unix.Kill(pid, unix.SIGUSR1); err != nil {
			if errors.Is(err, unix.ESRCH) {
				os.Remove(filepath.Join(w.dir, e.Name()))
				continue
			}
			errs = append(errs, fmt.Errorf("relay: wake %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}
