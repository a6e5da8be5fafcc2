package trafficlight

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// Notifier is run for every phase transition it is interested in.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, p Phase) error
}

func NewNotifier(cfg *NotifierConfig) (Notifier, error) {
	var n Notifier
	var err error
	switch {
	case cfg.Command != nil:
		n, err = NewCommandNotifier(cfg)
	case cfg.HTTP != nil:
		n, err = NewHTTPNotifier(cfg)
	case cfg.TCP != nil:
		n, err = NewTCPNotifier(cfg)
	default:
		return nil, fmt.Errorf("notifier %s: one of command, http or tcp is required", cfg.Name)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Phase == "" {
		return n, nil
	}
	p, err := ParsePhase(cfg.Phase)
	if err != nil {
		return nil, fmt.Errorf("notifier %s: %w", cfg.Name, err)
	}
	return &phaseFilter{Notifier: n, phase: p}, nil
}

// phaseFilter skips transitions to other phases.
type phaseFilter struct {
	Notifier
	phase Phase
}

func (f *phaseFilter) Notify(ctx context.Context, p Phase) error {
	if p != f.phase {
		return nil
	}
	return f.Notifier.Notify(ctx, p)
}

// Dispatcher runs notifiers on a worker pool for each transition received
// from a subscription.
type Dispatcher struct {
	notifiers []Notifier
	workers   int
}

func NewDispatcher(notifiers []Notifier, workers int) *Dispatcher {
	if workers <= 0 {
		workers = DefaultNotifierWorkers
	}
	return &Dispatcher{
		notifiers: notifiers,
		workers:   workers,
	}
}

// Run dispatches transitions until ctx is done or the subscription is closed.
func (d *Dispatcher) Run(ctx context.Context, sub *Subscription) error {
	pool := workerpool.New(d.workers)
	defer pool.StopWait()
	for {
		p, err := sub.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		d.dispatch(ctx, pool, p)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, pool *workerpool.WorkerPool, p Phase) {
	var wg sync.WaitGroup
	for i, n := range d.notifiers {
		i, n := i, n
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			ctx := context.WithValue(ctx, stateKey, &State{Phase: p, Index: i})
			if err := n.Notify(ctx, p); err != nil {
				newLoggerFromContext(ctx).Warn("notifier failed", "name", n.Name(), "error", err)
			}
		})
	}
	// transitions are delivered in order, so wait before taking the next one
	wg.Wait()
}
