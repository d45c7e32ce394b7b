// Package ratelimit keeps quote traffic within the swap API's budget.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"instantbuy/internal/source"
)

// MinInterval wraps a Source and spaces calls at least Interval apart.
// Concurrent calls reserve consecutive slots; a canceled context returns
// early.
type MinInterval struct {
	S        source.Source
	Interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func (m *MinInterval) Name() string { return m.S.Name() }

func (m *MinInterval) Fetch(ctx context.Context, asset source.Asset, amount decimal.Decimal) (source.Quote, error) {
	if m.Interval > 0 {
		m.mu.Lock()
		now := time.Now()
		slot := m.next
		if slot.Before(now) {
			slot = now
		}
		m.next = slot.Add(m.Interval)
		m.mu.Unlock()

		if wait := time.Until(slot); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return source.Quote{}, ctx.Err()
			case <-t.C:
			}
		}
	}
	return m.S.Fetch(ctx, asset, amount)
}
