package trafficlight_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fujiwara/trafficlight"
)

func TestMessageQueueOrder(t *testing.T) {
	tests := []struct {
		order  trafficlight.Order
		expect []int
	}{
		{trafficlight.OrderFIFO, []int{1, 2, 3, 4, 5}},
		{trafficlight.OrderLIFO, []int{5, 4, 3, 2, 1}},
	}
	ctx := context.Background()
	for _, test := range tests {
		q := trafficlight.NewMessageQueue[int](test.order)
		for i := 1; i <= 5; i++ {
			if !q.Send(i) {
				t.Fatalf("%s: send %d rejected", test.order, i)
			}
		}
		if q.Len() != 5 {
			t.Errorf("%s: expected len 5, got %d", test.order, q.Len())
		}
		for i, want := range test.expect {
			got, err := q.Receive(ctx)
			if err != nil {
				t.Fatalf("%s: unexpected error: %s", test.order, err)
			}
			if got != want {
				t.Errorf("%s: receive #%d expected %d, got %d", test.order, i, want, got)
			}
		}
		if _, ok := q.TryReceive(); ok {
			t.Errorf("%s: expected empty queue", test.order)
		}
	}
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in        string
		expect    trafficlight.Order
		expectErr bool
	}{
		{"", trafficlight.OrderFIFO, false},
		{"fifo", trafficlight.OrderFIFO, false},
		{" LIFO ", trafficlight.OrderLIFO, false},
		{"random", "", true},
	}
	for _, test := range tests {
		got, err := trafficlight.ParseOrder(test.in)
		if (err != nil) != test.expectErr {
			t.Errorf("%q: expected error %v, got %v", test.in, test.expectErr, err)
			continue
		}
		if got != test.expect {
			t.Errorf("%q: expected %s, got %s", test.in, test.expect, got)
		}
	}
}

func TestMessageQueueReceiveBlocks(t *testing.T) {
	q := trafficlight.NewMessageQueue[string](trafficlight.OrderFIFO)
	got := make(chan string)
	go func() {
		v, err := q.Receive(context.Background())
		if err != nil {
			t.Errorf("unexpected error: %s", err)
		}
		got <- v
	}()

	select {
	case v := <-got:
		t.Fatalf("receive returned %q from an empty queue", v)
	case <-time.After(50 * time.Millisecond):
	}

	q.Send("hello")
	select {
	case v := <-got:
		if v != "hello" {
			t.Errorf("expected hello, got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("receive did not wake up after send")
	}
}

func TestMessageQueueReceiveContext(t *testing.T) {
	q := trafficlight.NewMessageQueue[int](trafficlight.OrderFIFO)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := q.Receive(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("receive returned too early: %s", elapsed)
	}

	cancelled, cancel2 := context.WithCancel(context.Background())
	cancel2()
	q.Send(1)
	if _, err := q.Receive(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled, got %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("cancelled receive must not consume, len=%d", q.Len())
	}
}

func TestMessageQueueClose(t *testing.T) {
	q := trafficlight.NewMessageQueue[int](trafficlight.OrderFIFO)
	q.Send(1)
	q.Close()
	if q.Send(2) {
		t.Error("send after close must be rejected")
	}
	ctx := context.Background()
	if v, err := q.Receive(ctx); err != nil || v != 1 {
		t.Errorf("expected buffered 1, got %d %v", v, err)
	}
	if _, err := q.Receive(ctx); !errors.Is(err, trafficlight.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}

	// Close wakes a blocked receiver.
	q2 := trafficlight.NewMessageQueue[int](trafficlight.OrderFIFO)
	done := make(chan error)
	go func() {
		_, err := q2.Receive(ctx)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	q2.Close()
	select {
	case err := <-done:
		if !errors.Is(err, trafficlight.ErrQueueClosed) {
			t.Errorf("expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("close did not wake the receiver")
	}
}

func TestMessageQueueConcurrent(t *testing.T) {
	const producers, consumers, perProducer = 4, 4, 250
	q := trafficlight.NewMessageQueue[int](trafficlight.OrderFIFO)
	ctx := context.Background()

	var mu sync.Mutex
	seen := make(map[int]int)
	var cwg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for j := 0; j < producers*perProducer/consumers; j++ {
				v, err := q.Receive(ctx)
				if err != nil {
					t.Errorf("unexpected error: %s", err)
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}
	var pwg sync.WaitGroup
	for i := 0; i < producers; i++ {
		pwg.Add(1)
		go func(i int) {
			defer pwg.Done()
			for j := 0; j < perProducer; j++ {
				q.Send(i*perProducer + j)
			}
		}(i)
	}
	pwg.Wait()
	cwg.Wait()

	if len(seen) != producers*perProducer {
		t.Fatalf("expected %d distinct values, got %d", producers*perProducer, len(seen))
	}
	for v, n := range seen {
		if n != 1 {
			t.Errorf("value %d received %d times", v, n)
		}
	}
}
