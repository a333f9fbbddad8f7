package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zombieliu/gear/internal/ir"
)

func queued(seq int64) ir.Message {
	return ir.Message{Seq: seq, Payload: []byte{byte(seq)}}
}

func TestMessageQueue_FIFO(t *testing.T) {
	q := newMessageQueue()
	for i := int64(1); i <= 3; i++ {
		require.True(t, q.Enqueue(queued(i)))
	}
	assert.Equal(t, 3, q.Len())

	for i := int64(1); i <= 3; i++ {
		m, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, i, m.Seq)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestMessageQueue_ClosedRejectsEnqueue(t *testing.T) {
	q := newMessageQueue()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(queued(1)))
	_, open := <-q.Wait()
	assert.False(t, open, "signal channel is closed")
}

func TestMessageQueue_WaitSignals(t *testing.T) {
	q := newMessageQueue()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-q.Wait()
	}()

	q.Enqueue(queued(1))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not signalled")
	}
}

func TestMessageQueue_ConcurrentEnqueue(t *testing.T) {
	q := newMessageQueue()
	const writers, each = 10, 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Enqueue(queued(int64(i)))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*each, q.Len())
}
