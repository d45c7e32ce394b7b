// Package heartbeat runs an action on a fixed interval with at most one
// execution in flight.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"instantbuy/internal/telemetry"
)

var (
	ErrAlreadyStarted  = errors.New("heartbeat: already started")
	ErrInvalidInterval = errors.New("heartbeat: interval must be positive")
)

// Action is the periodic work. The context is canceled by Stop.
type Action func(ctx context.Context) error

type Option func(*Heartbeater)

func WithLogger(log zerolog.Logger) Option {
	return func(h *Heartbeater) { h.log = log }
}

func WithCollector(c telemetry.Collector) Option {
	return func(h *Heartbeater) {
		if c != nil {
			h.metrics = c
		}
	}
}

// Heartbeater calls its action every interval. A tick that fires while the
// previous action is still running is skipped, not queued. Action errors and
// panics are logged and never stop the schedule.
type Heartbeater struct {
	name           string
	action         Action
	runImmediately bool
	log            zerolog.Logger
	metrics        telemetry.Collector

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inFlight atomic.Bool
	actions  sync.WaitGroup
}

func New(name string, action Action, runImmediately bool, opts ...Option) *Heartbeater {
	h := &Heartbeater{
		name:           name,
		action:         action,
		runImmediately: runImmediately,
		log:            zerolog.Nop(),
		metrics:        telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With().Str("component", "heartbeat").Str("heartbeat", name).Logger()
	return h
}

// Start schedules the action every interval. With runImmediately the action
// also runs once right away, outside the interval schedule.
func (h *Heartbeater) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, h.name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})

	if h.runImmediately {
		h.tick(ctx)
	}
	go h.loop(ctx, interval, h.done)
	h.log.Debug().Dur("interval", interval).Msg("heartbeat started")
	return nil
}

// Stop cancels the schedule. It is safe to call when not started. An action
// already running sees its context canceled but is not waited for; use Wait.
func (h *Heartbeater) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
	h.done = nil
	h.log.Debug().Msg("heartbeat stopped")
}

// Running reports whether the schedule is active.
func (h *Heartbeater) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

// Wait blocks until no action is executing.
func (h *Heartbeater) Wait() { h.actions.Wait() }

func (h *Heartbeater) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Heartbeater) tick(ctx context.Context) {
	if !h.inFlight.CompareAndSwap(false, true) {
		h.metrics.IncHeartbeat(h.name, telemetry.OutcomeSkipped)
		h.log.Debug().Msg("previous beat still running; tick skipped")
		return
	}
	h.actions.Add(1)
	go h.run(ctx)
}

func (h *Heartbeater) run(ctx context.Context) {
	defer h.actions.Done()
	defer h.inFlight.Store(false)
	defer func() {
		if r := recover(); r != nil {
			h.metrics.IncHeartbeat(h.name, telemetry.OutcomeFailed)
			h.log.Error().Interface("panic", r).Msg("heartbeat action panicked")
		}
	}()

	if err := h.action(ctx); err != nil {
		h.metrics.IncHeartbeat(h.name, telemetry.OutcomeFailed)
		if ctx.Err() == nil {
			h.log.Warn().Err(err).Msg("heartbeat action failed")
		}
		return
	}
	h.metrics.IncHeartbeat(h.name, telemetry.OutcomeRun)
}
