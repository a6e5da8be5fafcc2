package trafficlight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ef-ds/deque"
)

var ErrQueueClosed = errors.New("queue closed")

// Order selects which buffered element Receive hands out.
type Order string

const (
	OrderFIFO Order = "fifo"
	OrderLIFO Order = "lifo"
)

func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case "", OrderFIFO:
		return OrderFIFO, nil
	case OrderLIFO:
		return OrderLIFO, nil
	default:
		return "", fmt.Errorf("invalid queue order %q: must be fifo or lifo", s)
	}
}

// Channel is a hand-off of values between goroutines.
type Channel[T any] interface {
	Send(v T) bool
	Receive(ctx context.Context) (T, error)
}

var _ Channel[Phase] = (*MessageQueue[Phase])(nil)

// MessageQueue is an unbounded queue with a blocking Receive.
// Send never blocks and wakes at most one waiting receiver.
type MessageQueue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    deque.Deque
	order  Order
	closed bool
}

func NewMessageQueue[T any](order Order) *MessageQueue[T] {
	if order == "" {
		order = OrderFIFO
	}
	q := &MessageQueue[T]{order: order}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Send appends v and reports whether it was queued.
// Values sent after Close are dropped.
func (q *MessageQueue[T]) Send(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.buf.PushBack(v)
	q.mu.Unlock()
	q.cond.Signal()
	return true
}

// Receive blocks until an element is available, ctx is done or the queue
// is closed and drained.
func (q *MessageQueue[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	// cond.Wait cannot select on ctx, so wake every waiter on cancel and
	// let each one re-check.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.buf.Len() == 0 {
		if q.closed {
			return zero, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.cond.Wait()
	}
	return q.pop(), nil
}

// TryReceive returns an element if one is buffered.
func (q *MessageQueue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.buf.Len() == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

func (q *MessageQueue[T]) pop() T {
	var v interface{}
	if q.order == OrderLIFO {
		v, _ = q.buf.PopBack()
	} else {
		v, _ = q.buf.PopFront()
	}
	t, _ := v.(T)
	return t
}

func (q *MessageQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Len()
}

// Close wakes all receivers. Buffered elements can still be received.
func (q *MessageQueue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
