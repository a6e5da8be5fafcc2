package trafficlight

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("traffic light already started")
	ErrStopped        = errors.New("traffic light stopped")
)

type lightState int

const (
	lightIdle lightState = iota
	lightRunning
	lightStopped
)

// TrafficLight toggles its phase between red and green at randomized
// intervals and publishes every transition to its message queue.
type TrafficLight struct {
	cfg *LightConfig

	mu       sync.Mutex
	phase    Phase
	state    lightState
	cancel   context.CancelFunc
	messages *MessageQueue[Phase]

	subsMu sync.Mutex
	subs   map[*Subscription]struct{}

	nextCycle func() time.Duration
	done      chan struct{}
	logger    *slog.Logger
}

type Option func(*TrafficLight)

// WithCycleFunc replaces the randomized cycle duration picker.
func WithCycleFunc(f func() time.Duration) Option {
	return func(l *TrafficLight) {
		l.nextCycle = f
	}
}

// WithRand draws cycle durations from r.
func WithRand(r *rand.Rand) Option {
	return func(l *TrafficLight) {
		l.nextCycle = randomCycle(l.cfg, r)
	}
}

func NewTrafficLight(cfg *LightConfig, opts ...Option) (*TrafficLight, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	order, err := ParseOrder(cfg.QueueOrder)
	if err != nil {
		return nil, err
	}
	l := &TrafficLight{
		cfg:      cfg,
		phase:    PhaseRed,
		messages: NewMessageQueue[Phase](order),
		subs:     make(map[*Subscription]struct{}),
		done:     make(chan struct{}),
		logger:   logger.With("module", "light"),
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	l.nextCycle = randomCycle(cfg, rand.New(rand.NewSource(seed)))
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// randomCycle picks uniformly from MinCycle, MinCycle+CycleStep, ... MaxCycle.
func randomCycle(cfg *LightConfig, r *rand.Rand) func() time.Duration {
	steps := int64((cfg.MaxCycle - cfg.MinCycle) / cfg.CycleStep)
	return func() time.Duration {
		return cfg.MinCycle + time.Duration(r.Int63n(steps+1))*cfg.CycleStep
	}
}

// CurrentPhase returns the phase without blocking on the cycling task.
func (l *TrafficLight) CurrentPhase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Simulate starts the cycling task. It returns immediately. The task runs
// until ctx is cancelled or Stop is called.
func (l *TrafficLight) Simulate(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case lightRunning:
		l.mu.Unlock()
		return ErrAlreadyStarted
	case lightStopped:
		l.mu.Unlock()
		return ErrStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	l.state = lightRunning
	l.cancel = cancel
	l.mu.Unlock()

	l.logger.Info("simulate started", "phase", l.CurrentPhase())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.cycleThroughPhases(ctx)
	}()
	go func() {
		defer wg.Done()
		l.fanOut(ctx)
	}()
	go func() {
		wg.Wait()
		l.shutdown()
	}()
	return nil
}

// Stop cancels the cycling task and closes every subscription.
func (l *TrafficLight) Stop() {
	l.mu.Lock()
	switch l.state {
	case lightIdle:
		l.state = lightStopped
		l.mu.Unlock()
		l.shutdown()
		return
	case lightRunning:
		cancel := l.cancel
		l.mu.Unlock()
		cancel()
		return
	}
	l.mu.Unlock()
}

// Wait blocks until the light has stopped. It returns at once if the light
// was never started.
func (l *TrafficLight) Wait() {
	l.mu.Lock()
	idle := l.state == lightIdle
	l.mu.Unlock()
	if idle {
		return
	}
	<-l.done
}

func (l *TrafficLight) shutdown() {
	l.mu.Lock()
	l.state = lightStopped
	l.mu.Unlock()
	l.messages.Close()

	l.subsMu.Lock()
	subs := l.subs
	l.subs = nil
	l.subsMu.Unlock()
	for s := range subs {
		s.queue.Close()
	}
	close(l.done)
	l.logger.Info("simulate stopped")
}

// WaitForGreen blocks until a transition to green is published after the
// call began.
func (l *TrafficLight) WaitForGreen(ctx context.Context) error {
	sub := l.Subscribe()
	defer sub.Unsubscribe()
	for {
		p, err := sub.Receive(ctx)
		switch {
		case errors.Is(err, ErrQueueClosed):
			return ErrStopped
		case err != nil:
			return err
		case p == PhaseGreen:
			return nil
		}
		l.logger.Debug("still waiting for green", "phase", p)
	}
}

func (l *TrafficLight) cycleThroughPhases(ctx context.Context) {
	cycle := l.nextCycle()
	l.logger.Debug("cycle duration chosen", "duration", cycle)

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		elapsed := time.Since(last)
		if elapsed < cycle {
			continue
		}
		p := l.toggle()
		last = time.Now()
		l.logger.Info("phase changed", "phase", p, "elapsed", elapsed)
		if l.cfg.ResampleCycle {
			cycle = l.nextCycle()
			l.logger.Debug("cycle duration chosen", "duration", cycle)
		}
	}
}

// toggle flips the phase and publishes it while holding the lock, so
// CurrentPhase never runs ahead of the queue.
func (l *TrafficLight) toggle() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phase = l.phase.Toggle()
	l.messages.Send(l.phase)
	return l.phase
}

func (l *TrafficLight) fanOut(ctx context.Context) {
	for {
		p, err := l.messages.Receive(ctx)
		if err != nil {
			return
		}
		l.subsMu.Lock()
		for s := range l.subs {
			s.queue.Send(p)
		}
		l.subsMu.Unlock()
	}
}

// Subscription receives every transition published after Subscribe.
type Subscription struct {
	queue *MessageQueue[Phase]
	light *TrafficLight
}

func (l *TrafficLight) Subscribe() *Subscription {
	s := &Subscription{
		queue: NewMessageQueue[Phase](OrderFIFO),
		light: l,
	}
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	if l.subs == nil {
		s.queue.Close()
		return s
	}
	l.subs[s] = struct{}{}
	return s
}

func (s *Subscription) Receive(ctx context.Context) (Phase, error) {
	return s.queue.Receive(ctx)
}

func (s *Subscription) Unsubscribe() {
	s.light.subsMu.Lock()
	if s.light.subs != nil {
		delete(s.light.subs, s)
	}
	s.light.subsMu.Unlock()
	s.queue.Close()
}
