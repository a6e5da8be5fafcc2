package trafficlight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// Responder serves the phase of a traffic light over HTTP.
type Responder struct {
	addr    string
	current Phase
	mu      *sync.Mutex
	logger  *slog.Logger
}

func NewResponder(cfg *ResponderConfig, initial Phase) *Responder {
	return &Responder{
		addr:    cfg.Addr,
		current: initial,
		mu:      &sync.Mutex{},
		logger:  logger.With("module", "responder"),
	}
}

func (r *Responder) Run(ctx context.Context, sub *Subscription) error {
	srv := http.Server{
		Addr:    r.addr,
		Handler: r.Handler(),
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	go r.phaseListener(ctx, sub)

	r.logger.Info("listening", "addr", r.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (r *Responder) setCurrentPhase(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == p {
		return
	}
	r.logger.Info("phase changed", "from", r.current, "to", p)
	r.current = p
}

func (r *Responder) CurrentPhase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Responder) phaseListener(ctx context.Context, sub *Subscription) {
	for {
		p, err := sub.Receive(ctx)
		if err != nil {
			return
		}
		r.logger.Debug("phase received", "phase", p)
		r.setCurrentPhase(p)
	}
}

// Handler answers 200 on green and 503 on red. /phase returns the phase name.
func (r *Responder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/phase", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, r.CurrentPhase())
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		code := http.StatusOK
		msg := "OK"
		switch p := r.CurrentPhase(); p {
		case PhaseGreen:
		case PhaseRed:
			code = http.StatusServiceUnavailable
			msg = "Service Unavailable"
		default:
			r.logger.Info("unknown phase", "phase", p)
			code = http.StatusInternalServerError
			msg = "Internal Server Error"
		}
		w.WriteHeader(code)
		fmt.Fprintln(w, msg)
	})
	return mux
}
