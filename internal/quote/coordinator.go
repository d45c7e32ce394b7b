// Package quote keeps the single current quote. Every fetch gets a sequence
// number and only a response newer than the one already applied can change
// the visible state, whatever order the responses arrive in.
package quote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"instantbuy/internal/classify"
	"instantbuy/internal/notify"
	"instantbuy/internal/report"
	"instantbuy/internal/source"
	"instantbuy/internal/telemetry"
)

type Origin int

const (
	Manual Origin = iota
	Heartbeat
)

func (o Origin) String() string {
	if o == Heartbeat {
		return "heartbeat"
	}
	return "manual"
}

func (o Origin) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

type Status int

const (
	Idle Status = iota
	Pending
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Request is one fetch attempt.
type Request struct {
	Seq    uint64          `json:"seq"`
	Asset  source.Asset    `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
	Origin Origin          `json:"origin"`
	Quiet  bool            `json:"quiet"`
}

// State is the externally visible quote state. Quote is non-nil only when
// Status is Ready and must be treated as read-only.
type State struct {
	Status         Status               `json:"status"`
	Quote          *source.Quote        `json:"quote,omitempty"`
	Failure        *classify.Classified `json:"failure,omitempty"`
	LastAppliedSeq uint64               `json:"last_applied_seq"`
	Origin         Origin               `json:"origin"`
	UpdatedAt      time.Time            `json:"updated_at"`

	version uint64
}

// Flasher shows user-facing error messages.
type Flasher interface {
	Flash(msg string)
}

type Option func(*Coordinator)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

func WithCollector(m telemetry.Collector) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithReporter(r report.ErrorReporter) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.reporter = r
		}
	}
}

func WithAnalytics(a report.Analytics) Option {
	return func(c *Coordinator) {
		if a != nil {
			c.analytics = a
		}
	}
}

// WithFetchTimeout bounds every fetch; a fetch that runs longer fails as
// upstream unavailable. Zero leaves fetches unbounded.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// Coordinator issues quote fetches and applies their results in sequence
// order. In-flight fetches are never canceled; superseded results are inert.
type Coordinator struct {
	src       source.Source
	flasher   Flasher
	reporter  report.ErrorReporter
	analytics report.Analytics
	metrics   telemetry.Collector
	log       zerolog.Logger
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	hub    notify.Hub[State]
	wg     sync.WaitGroup

	mu     sync.Mutex
	seq    uint64
	state  State
	closed bool

	// flashMu orders banner updates; flashed is the newest seq shown.
	flashMu sync.Mutex
	flashed uint64
}

func New(src source.Source, flasher Flasher, opts ...Option) *Coordinator {
	c := &Coordinator{
		src:       src,
		flasher:   flasher,
		reporter:  report.Nop{},
		analytics: report.Nop{},
		metrics:   telemetry.Noop(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "quote").Logger()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// RequestQuote starts a fetch and returns without waiting for it. Unless
// quiet, the state turns Pending before it returns. It is a no-op, reporting
// false, for an empty asset, a non-positive amount or a closed coordinator.
func (c *Coordinator) RequestQuote(asset source.Asset, amount decimal.Decimal, origin Origin, quiet bool) (Request, bool) {
	req, _, ok := c.issue(asset, amount, origin, quiet)
	return req, ok
}

func (c *Coordinator) issue(asset source.Asset, amount decimal.Decimal, origin Origin, quiet bool) (Request, <-chan struct{}, bool) {
	if asset.ID == "" || !amount.IsPositive() {
		c.log.Debug().Str("asset", asset.ID).Str("amount", amount.String()).Msg("ignoring malformed quote request")
		return Request{}, nil, false
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Request{}, nil, false
	}
	c.seq++
	req := Request{Seq: c.seq, Asset: asset, Amount: amount, Origin: origin, Quiet: quiet}
	var pending State
	if !quiet {
		c.state.Status = Pending
		c.state.Quote = nil
		c.state.Failure = nil
		c.touchLocked()
		pending = c.state
	}
	c.wg.Add(1)
	c.mu.Unlock()

	if !quiet {
		c.hub.Publish(pending.version, pending)
	}
	done := make(chan struct{})
	go c.fetch(req, done)
	return req, done, true
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for state changes. Calls arrive in state order.
func (c *Coordinator) Subscribe(fn func(State)) (unsubscribe func()) {
	return c.hub.Subscribe(fn)
}

// Wait blocks until every issued fetch has been handled.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Close stops accepting requests and cancels the context of in-flight
// fetches. Their results are discarded.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

func (c *Coordinator) fetch(req Request, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	q, err := c.callSource(ctx, req)
	c.metrics.ObserveQuoteLatency(req.Origin.String(), time.Since(start).Seconds())

	if err != nil && c.ctx.Err() != nil {
		// closed while fetching
		return
	}
	c.handle(req, q, err)
}

// flash shows the failure of request seq unless a newer request has already
// put its failure on the banner. Subscribers of the flasher run without c.mu.
func (c *Coordinator) flash(seq uint64, failure classify.Classified) {
	if c.flasher == nil {
		return
	}
	c.flashMu.Lock()
	defer c.flashMu.Unlock()
	if seq <= c.flashed {
		return
	}
	c.flashed = seq
	c.flasher.Flash(failure.Message)
	c.metrics.IncErrorFlash(failure.Category.String())
}

func (c *Coordinator) callSource(ctx context.Context, req Request) (q source.Quote, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("quote source %s panicked: %v", c.src.Name(), r)
		}
	}()
	q, err = c.src.Fetch(ctx, req.Asset, req.Amount)
	if err == nil && ctx.Err() != nil {
		// a source that ignores its context still honours the fetch timeout
		err = ctx.Err()
	}
	return q, err
}

func (c *Coordinator) handle(req Request, q source.Quote, err error) {
	origin := req.Origin.String()

	c.mu.Lock()
	if req.Seq <= c.state.LastAppliedSeq {
		applied := c.state.LastAppliedSeq
		c.mu.Unlock()
		c.metrics.IncQuoteStale(origin)
		c.log.Debug().Uint64("seq", req.Seq).Uint64("applied", applied).Msg("stale quote response discarded")
		return
	}

	c.state.LastAppliedSeq = req.Seq
	c.state.Origin = req.Origin
	var failure classify.Classified
	if err == nil {
		if q.AssetID == "" {
			q.AssetID = req.Asset.ID
		}
		if q.ReceivedAt.IsZero() {
			q.ReceivedAt = time.Now().UTC()
		}
		c.state.Status = Ready
		c.state.Quote = &q
		c.state.Failure = nil
	} else {
		failure = classify.Classify(req.Asset, err)
		c.state.Status = Failed
		c.state.Quote = nil
		c.state.Failure = &failure
	}
	c.touchLocked()
	snap := c.state
	c.mu.Unlock()

	c.hub.Publish(snap.version, snap)
	if err != nil && !req.Quiet {
		c.flash(req.Seq, failure)
	}
	c.metrics.IncQuoteApplied(origin, snap.Status.String())

	amount := req.Amount.String()
	if err == nil {
		c.analytics.QuoteFetched(req.Asset.ID, amount, origin)
		return
	}
	c.analytics.QuoteError(source.KindOf(err).String(), req.Asset.ID, amount, origin)
	if failure.Category == classify.Unknown && !errors.Is(err, context.Canceled) && !errors.Is(err, source.ErrInvalidAmount) {
		c.reporter.Report(err)
	}
	c.log.Info().
		Err(err).
		Uint64("seq", req.Seq).
		Str("origin", origin).
		Bool("quiet", req.Quiet).
		Str("category", failure.Category.String()).
		Msg("quote fetch failed")
}

func (c *Coordinator) touchLocked() {
	c.state.version++
	c.state.UpdatedAt = time.Now().UTC()
}
