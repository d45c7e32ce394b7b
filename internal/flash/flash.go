// Package flash holds the single error message currently shown to the user.
package flash

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"instantbuy/internal/notify"
)

// DefaultDelay is how long a flashed message stays visible.
const DefaultDelay = 7 * time.Second

// DisplayState is the visible error, if any.
type DisplayState struct {
	Message   string    `json:"message,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type Option func(*Flasher)

// WithDelay sets the default auto-dismiss delay.
func WithDelay(d time.Duration) Option {
	return func(f *Flasher) {
		if d > 0 {
			f.delay = d
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(f *Flasher) { f.log = log }
}

// Flasher shows at most one message at a time. A new message replaces the
// current one and restarts the dismiss timer.
type Flasher struct {
	delay time.Duration
	log   zerolog.Logger
	hub   notify.Hub[DisplayState]

	mu    sync.Mutex
	state DisplayState
	timer *time.Timer
	// gen increases on every change; a timer only clears the generation it
	// was armed for.
	gen uint64
}

func New(opts ...Option) *Flasher {
	f := &Flasher{delay: DefaultDelay, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With().Str("component", "flash").Logger()
	return f
}

// Flash shows msg for the default delay.
func (f *Flasher) Flash(msg string) { f.FlashFor(msg, f.delay) }

// FlashFor shows msg for d, replacing any visible message.
func (f *Flasher) FlashFor(msg string, d time.Duration) {
	if d <= 0 {
		d = f.delay
	}
	f.mu.Lock()
	f.stopTimerLocked()
	f.gen++
	gen := f.gen
	f.state = DisplayState{Message: msg, ExpiresAt: time.Now().Add(d)}
	f.timer = time.AfterFunc(d, func() { f.expire(gen) })
	snap := f.state
	f.mu.Unlock()

	f.log.Debug().Str("message", msg).Dur("delay", d).Msg("error flashed")
	f.hub.Publish(gen, snap)
}

// Clear removes the message immediately.
func (f *Flasher) Clear() {
	f.mu.Lock()
	f.stopTimerLocked()
	if f.state.Message == "" {
		f.mu.Unlock()
		return
	}
	f.gen++
	gen := f.gen
	f.state = DisplayState{}
	f.mu.Unlock()

	f.hub.Publish(gen, DisplayState{})
}

func (f *Flasher) Snapshot() DisplayState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Subscribe registers fn for every change of the displayed message.
func (f *Flasher) Subscribe(fn func(DisplayState)) (unsubscribe func()) {
	return f.hub.Subscribe(fn)
}

func (f *Flasher) expire(gen uint64) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.gen++
	next := f.gen
	f.state = DisplayState{}
	f.timer = nil
	f.mu.Unlock()

	f.hub.Publish(next, DisplayState{})
}

func (f *Flasher) stopTimerLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}
