// Package coalesce merges identical concurrent quote fetches into one
// upstream call.
package coalesce

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"instantbuy/internal/source"
)

// Source shares one in-flight fetch between callers asking for the same
// asset and amount. A caller whose context ends stops waiting; the shared
// fetch keeps running for the others. A joining caller gets the result of
// the call already in flight, which may have started before it asked.
type Source struct {
	S source.Source

	group singleflight.Group
}

func New(s source.Source) *Source { return &Source{S: s} }

func (c *Source) Name() string { return c.S.Name() }

func (c *Source) Fetch(ctx context.Context, asset source.Asset, amount decimal.Decimal) (source.Quote, error) {
	key := asset.ID + "|" + amount.String()
	ch := c.group.DoChan(key, func() (any, error) {
		return c.S.Fetch(context.WithoutCancel(ctx), asset, amount)
	})
	select {
	case <-ctx.Done():
		return source.Quote{}, ctx.Err()
	case res := <-ch:
		q, _ := res.Val.(source.Quote)
		if res.Err != nil {
			return source.Quote{}, res.Err
		}
		return clone(q), nil
	}
}

func clone(q source.Quote) source.Quote {
	if q.TotalWei != nil {
		q.TotalWei = new(big.Int).Set(q.TotalWei)
	}
	if q.FeeWei != nil {
		q.FeeWei = new(big.Int).Set(q.FeeWei)
	}
	return q
}
