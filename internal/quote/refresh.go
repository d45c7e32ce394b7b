package quote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"instantbuy/internal/heartbeat"
	"instantbuy/internal/source"
)

// Target reports what should be quoted right now. ok is false when there is
// nothing to refresh, e.g. no asset selected or an order in progress.
type Target func() (asset source.Asset, amount decimal.Decimal, ok bool)

// RefreshPolicy re-quotes the current target in the background. Its
// requests are quiet: no Pending flicker and no error banner.
type RefreshPolicy struct {
	c      *Coordinator
	target Target
	hb     *heartbeat.Heartbeater
}

func NewRefreshPolicy(c *Coordinator, target Target, runImmediately bool, opts ...heartbeat.Option) *RefreshPolicy {
	p := &RefreshPolicy{c: c, target: target}
	p.hb = heartbeat.New("quote", p.beat, runImmediately, opts...)
	return p
}

func (p *RefreshPolicy) Start(interval time.Duration) error { return p.hb.Start(interval) }

func (p *RefreshPolicy) Stop() { p.hb.Stop() }

// Wait blocks until a running beat has finished.
func (p *RefreshPolicy) Wait() { p.hb.Wait() }

// beat stays in flight until its fetch is handled so a slow source makes
// later ticks skip instead of piling up requests.
func (p *RefreshPolicy) beat(ctx context.Context) error {
	asset, amount, ok := p.target()
	if !ok {
		return nil
	}
	_, done, ok := p.c.issue(asset, amount, Heartbeat, true)
	if !ok {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}
