package relay

import (
	"context"
	"sync"
)

// Pipe is an in-memory channel implementing Reader, Writer, Waker and
// Wakeup. Bytes are framed exactly like the system endpoints.
type Pipe struct {
	mu     sync.Mutex
	word   int
	buf    []byte
	closed bool
	wake   chan struct{}
	fail   error
}

// NewPipe returns an empty pipe for word-sized records.
func NewPipe(word int) *Pipe {
	if word == 0 {
		word = NativeWordSize
	}
	return &Pipe{word: word, wake: make(chan struct{}, 1)}
}

// Send implements Writer.
func (p *Pipe) Send(r Record) error {
	return p.Write(Encode(r, p.word))
}

// Write appends raw bytes, for framing tests.
func (p *Pipe) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.buf = append(p.buf, b...)
	return nil
}

// Next implements Reader.
func (p *Pipe) Next() (Record, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail; err != nil {
		p.fail = nil
		return Record{}, false, err
	}
	if p.closed {
		return Record{}, false, ErrClosed
	}
	size := RecordSize(p.word)
	if len(p.buf) < size {
		return Record{}, false, nil
	}
	rec, err := Decode(p.buf[:size], p.word)
	p.buf = p.buf[size:]
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Pending returns the number of buffered bytes.
func (p *Pipe) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Fail makes the next Next call return err.
func (p *Pipe) Fail(err error) {
	p.mu.Lock()
	p.fail = err
	p.mu.Unlock()
}

// Wake implements Waker.
func (p *Pipe) Wake() error {
	notify(p.wake)
	return nil
}

// WakeAll implements Waker.
func (p *Pipe) WakeAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Wake()
}

// C implements Wakeup.
func (p *Pipe) C() <-chan struct{} { return p.wake }

// Close implements Reader, Writer and Wakeup.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
