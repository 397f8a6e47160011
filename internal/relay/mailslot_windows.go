//go:build windows

package relay

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procCreateMailslotW = kernel32.NewProc("CreateMailslotW")
	procGetMailslotInfo = kernel32.NewProc("GetMailslotInfo")
)

const (
	mailslotNoMessage = 0xFFFFFFFF
	eventModifyState  = 0x0002
	wakePollInterval  = 250 * time.Millisecond
)

// MailslotPath returns the mailslot name for opts.
func MailslotPath(opts Options) string {
	opts = opts.withDefaults()
	return `\\.\mailslot\` + opts.Name
}

func eventName(opts Options) string {
	opts = opts.withDefaults()
	return `Local\` + opts.Name + "-wake"
}

type mailslotReader struct {
	mu   sync.Mutex
	h    windows.Handle
	word int
	buf  []byte
}

// Listen creates the mailslot. Only one process may listen on a name.
func Listen(opts Options) (Reader, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	name, err := windows.UTF16PtrFromString(MailslotPath(opts))
	if err != nil {
		return nil, err
	}
	r, _, callErr := procCreateMailslotW.Call(uintptr(unsafe.Pointer(name)), 0, 0, 0)
	h := windows.Handle(r)
	if h == windows.InvalidHandle {
		return nil, fmt.Errorf("relay: create mailslot: %w", callErr)
	}
	size := RecordSize(opts.WordSize)
	return &mailslotReader{h: h, word: opts.WordSize, buf: make([]byte, size)}, nil
}

func (r *mailslotReader) Next() (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.h == windows.InvalidHandle {
		return Record{}, false, ErrClosed
	}
	var next, count uint32
	ok, _, err := procGetMailslotInfo.Call(uintptr(r.h), 0,
		uintptr(unsafe.Pointer(&next)), uintptr(unsafe.Pointer(&count)), 0)
	if ok == 0 {
		return Record{}, false, fmt.Errorf("relay: mailslot info: %w", err)
	}
	if next == mailslotNoMessage || count == 0 {
		return Record{}, false, nil
	}
	if int(next) != len(r.buf) {
		// Foreign message size: read it to get it out of the way.
		junk := make([]byte, next)
		var n uint32
		if err := windows.ReadFile(r.h, junk, &n, nil); err != nil {
			return Record{}, false, fmt.Errorf("relay: read: %w", err)
		}
		return Record{}, false, fmt.Errorf("relay: unexpected message of %d bytes", next)
	}
	var n uint32
	if err := windows.ReadFile(r.h, r.buf, &n, nil); err != nil {
		return Record{}, false, fmt.Errorf("relay: read: %w", err)
	}
	rec, err := Decode(r.buf[:n], r.word)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (r *mailslotReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.h == windows.InvalidHandle {
		return nil
	}
	err := windows.CloseHandle(r.h)
	r.h = windows.InvalidHandle
	return err
}

type mailslotWriter struct {
	mu   sync.Mutex
	h    windows.Handle
	word int
}

// Dial opens an existing mailslot for writing.
func Dial(opts Options) (Writer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	name, err := windows.UTF16PtrFromString(MailslotPath(opts))
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(name, windows.GENERIC_WRITE, windows.FILE_SHARE_READ,
		nil, windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return nil, fmt.Errorf("relay: open mailslot: %w", err)
	}
	return &mailslotWriter{h: h, word: opts.WordSize}, nil
}

func (w *mailslotWriter) Send(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.h == windows.InvalidHandle {
		return ErrClosed
	}
	b := Encode(rec, w.word)
	var n uint32
	if err := windows.WriteFile(w.h, b, &n, nil); err != nil {
		return fmt.Errorf("relay: write: %w", err)
	}
	if int(n) != len(b) {
		return fmt.Errorf("relay: short write %d of %d bytes", n, len(b))
	}
	return nil
}

func (w *mailslotWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.h == windows.InvalidHandle {
		return nil
	}
	err := windows.CloseHandle(w.h)
	w.h = windows.InvalidHandle
	return err
}

type eventWakeup struct {
	h    windows.Handle
	out  chan struct{}
	done chan struct{}
	once sync.Once
}

// Subscribe creates the channel's named wake event and forwards each
// signal to C.
func Subscribe(opts Options) (Wakeup, error) {
	name, err := windows.UTF16PtrFromString(eventName(opts))
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateEvent(nil, 1, 0, name)
	if err != nil {
		return nil, fmt.Errorf("relay: create wake event: %w", err)
	}
	w := &eventWakeup{h: h, out: make(chan struct{}, 1), done: make(chan struct{})}
	go w.forward()
	return w, nil
}

func (w *eventWakeup) forward() {
	for {
		select {
		case <-w.done:
			return
		default:
		}
		ev, err := windows.WaitForSingleObject(w.h, uint32(wakePollInterval/time.Millisecond))
		if err != nil {
			return
		}
		if ev == windows.WAIT_OBJECT_0 {
			windows.ResetEvent(w.h)
			notify(w.out)
		}
	}
}

func (w *eventWakeup) C() <-chan struct{} { return w.out }

func (w *eventWakeup) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		// Let the forwarder observe done before the handle goes away.
		time.Sleep(wakePollInterval)
		err = windows.CloseHandle(w.h)
	})
	return err
}

type eventWaker struct {
	name string
}

// NewWaker returns a waker setting the channel's named event.
func NewWaker(opts Options) Waker {
	return &eventWaker{name: eventName(opts)}
}

func (w *eventWaker) Wake() error {
	return w.WakeAll(context.Background())
}

func (w *eventWaker) WakeAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := windows.UTF16PtrFromString(w.name)
	if err != nil {
		return err
	}
	h, err := windows.OpenEvent(eventModifyState, false, name)
	if err != nil {
		if err == windows.ERROR_FILE_NOT_FOUND {
			return nil
		}
		return fmt.Errorf("relay: open wake event: %w", err)
	}
	defer windows.CloseHandle(h)
	return windows.SetEvent(h)
}
