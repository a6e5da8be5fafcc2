package trafficlight

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// App wires a traffic light to its responder, notifiers and watchers.
type App struct {
	Config *Config

	light      *TrafficLight
	responder  *Responder
	dispatcher *Dispatcher
}

func Run(ctx context.Context, cli *CLI) error {
	SetDebug(cli.Debug)
	cfg, err := LoadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	return app.Run(ctx, cli.Watchers)
}

func NewApp(cfg *Config, opts ...Option) (*App, error) {
	light, err := NewTrafficLight(cfg.Light, opts...)
	if err != nil {
		return nil, err
	}
	app := &App{
		Config: cfg,
		light:  light,
	}
	if cfg.Responder != nil && cfg.Responder.Addr != "" {
		app.responder = NewResponder(cfg.Responder, light.CurrentPhase())
	}
	var notifiers []Notifier
	for _, c := range cfg.Notifiers {
		n, err := NewNotifier(c)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if len(notifiers) > 0 {
		app.dispatcher = NewDispatcher(notifiers, cfg.Workers)
	}
	return app, nil
}

func (a *App) Light() *TrafficLight {
	return a.light
}

// Run starts the light and blocks until ctx is done.
func (a *App) Run(ctx context.Context, watchers int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	fail := func(err error) {
		mu.Lock()
		errs = errors.Join(errs, err)
		mu.Unlock()
		cancel()
	}

	// subscribe before simulate so the first transition reaches everyone
	if a.responder != nil {
		sub := a.light.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sub.Unsubscribe()
			if err := a.responder.Run(ctx, sub); err != nil {
				fail(fmt.Errorf("responder failed: %w", err))
			}
		}()
	}
	if a.dispatcher != nil {
		sub := a.light.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sub.Unsubscribe()
			if err := a.dispatcher.Run(ctx, sub); err != nil {
				fail(fmt.Errorf("dispatcher failed: %w", err))
			}
		}()
	}
	for i := 0; i < watchers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.watch(ctx, i)
		}(i)
	}

	if err := a.light.Simulate(ctx); err != nil {
		cancel()
		wg.Wait()
		return err
	}
	<-ctx.Done()
	a.light.Stop()
	a.light.Wait()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return errs
}

func (a *App) watch(ctx context.Context, id int) {
	l := logger.With("module", "watcher", "watcher", id)
	for {
		if err := a.light.WaitForGreen(ctx); err != nil {
			l.Debug("stop watching", "error", err)
			return
		}
		l.Info("green light observed", "phase", a.light.CurrentPhase())
	}
}
