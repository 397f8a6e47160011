package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mestouches/internal/record"
)

func TestQueue_HandOffAndDrain(t *testing.T) {
	q := NewQueue()
	p := q.NewProducer()

	require.True(t, p.PushKey(record.KeyEvent{Code: 1, Timestamp: 10}))
	require.True(t, p.PushClick(record.RawClick{Button: record.ButtonLeft, Timestamp: 11}))
	require.True(t, p.PushSession(record.SessionUsage{Subject: "a", Document: "b", Start: 1, End: 2}))
	assert.Equal(t, 0, p.Pending())
	assert.Equal(t, 3, q.Len())

	b, ok := q.WaitAndDrain()
	require.True(t, ok)
	assert.Len(t, b.Keys, 1)
	assert.Len(t, b.Clicks, 1)
	assert.Len(t, b.Sessions, 1)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_BusyLockBuffersLocally(t *testing.T) {
	q := NewQueue()
	p := q.NewProducer()

	q.mu.Lock()
	assert.False(t, p.PushKey(record.KeyEvent{Code: 1}))
	assert.False(t, p.PushKey(record.KeyEvent{Code: 2}))
	assert.Equal(t, 2, p.Pending())
	q.mu.Unlock()

	// The next invocation carries the earlier events along, in order.
	require.True(t, p.PushKey(record.KeyEvent{Code: 3}))
	assert.Equal(t, 0, p.Pending())

	b, ok := q.TryDrain()
	require.True(t, ok)
	require.Len(t, b.Keys, 3)
	for i, e := range b.Keys {
		assert.Equal(t, uint8(i+1), e.Code)
	}
}

func TestQueue_FlushRetriesWithoutNewEvent(t *testing.T) {
	q := NewQueue()
	p := q.NewProducer()

	q.mu.Lock()
	p.PushClick(record.RawClick{Button: record.ButtonRight})
	assert.False(t, p.Flush())
	q.mu.Unlock()

	assert.True(t, p.Flush())
	assert.Equal(t, 1, q.Len())
}

func TestQueue_WaitBlocksUntilAvailable(t *testing.T) {
	q := NewQueue()

	got := make(chan Batch, 1)
	go func() {
		b, _ := q.WaitAndDrain()
		got <- b
	}()

	select {
	case <-got:
		t.Fatal("WaitAndDrain returned before any event")
	case <-time.After(20 * time.Millisecond):
	}

	q.NewProducer().PushKey(record.KeyEvent{Code: 42})

	select {
	case b := <-got:
		require.Len(t, b.Keys, 1)
		assert.Equal(t, uint8(42), b.Keys[0].Code)
	case <-time.After(time.Second):
		t.Fatal("WaitAndDrain did not wake")
	}
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	q := NewQueue()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.WaitAndDrain()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the waiter")
	}
	assert.True(t, q.Closed())
}

func TestQueue_CloseDrainsPendingFirst(t *testing.T) {
	q := NewQueue()
	p := q.NewProducer()
	p.PushKey(record.KeyEvent{Code: 7})
	q.Close()

	assert.False(t, p.PushKey(record.KeyEvent{Code: 8}), "closed queue refuses hand-off")

	b, ok := q.WaitAndDrain()
	require.True(t, ok)
	assert.Len(t, b.Keys, 1)

	_, ok = q.WaitAndDrain()
	assert.False(t, ok)

	assert.False(t, p.Drain())
	assert.Equal(t, 0, p.Pending())
}

func TestQueue_KickWakesWithoutEvents(t *testing.T) {
	q := NewQueue()

	done := make(chan Batch, 1)
	go func() {
		b, _ := q.WaitAndDrain()
		done <- b
	}()

	time.Sleep(10 * time.Millisecond)
	q.Kick()

	select {
	case b := <-done:
		assert.True(t, b.Empty())
	case <-time.After(time.Second):
		t.Fatal("Kick did not wake the waiter")
	}
}

// Every event pushed by K producers reaches the consumer exactly once and
// in per-producer order.
func TestQueue_NoLossUnderContention(t *testing.T) {
	const (
		producers = 8
		perProd   = 2000
	)
	q := NewQueue()

	var consumed []record.KeyEvent
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for {
			b, ok := q.WaitAndDrain()
			if !ok {
				return
			}
			consumed = append(consumed, b.Keys...)
		}
	}()

	var wg sync.WaitGroup
	for id := 0; id < producers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p := q.NewProducer()
			for seq := 0; seq < perProd; seq++ {
				p.PushKey(record.KeyEvent{Code: uint8(id), Timestamp: uint64(seq)})
			}
			p.Drain()
		}(id)
	}
	wg.Wait()
	q.Close()
	<-consumerDone

	require.Len(t, consumed, producers*perProd)
	next := make([]uint64, producers)
	for _, e := range consumed {
		require.Equal(t, next[e.Code], e.Timestamp, "producer %d out of order", e.Code)
		next[e.Code]++
	}
}

func TestBatchAppend(t *testing.T) {
	var b Batch
	b.Append(Batch{Keys: []record.KeyEvent{{Code: 1}}})
	b.Append(Batch{Keys: []record.KeyEvent{{Code: 2}}, Sessions: []record.SessionUsage{{Subject: "s"}}})

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []record.KeyEvent{{Code: 1}, {Code: 2}}, b.Keys)
	assert.False(t, b.Empty())
}
