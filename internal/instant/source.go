package instant

import (
	"fmt"
	"time"

	"instantbuy/internal/config"
	"instantbuy/internal/source"
	"instantbuy/internal/source/coalesce"
	"instantbuy/internal/source/ratelimit"
	"instantbuy/internal/source/swapapi"
	"instantbuy/internal/source/swapapiadapter"
)

// NewSwapSource builds the quote source for the configured swap API:
// adapter, then rate limiting, then coalescing of identical requests.
func NewSwapSource(cfg config.SwapAPI, taker string, hc swapapi.HTTPClient) (source.Source, error) {
	opts := []swapapi.ClientOption{swapapi.WithHTTPClient(hc)}
	if cfg.Endpoint != "" {
		opts = append(opts, swapapi.WithBaseURL(cfg.Endpoint))
	}
	client, err := swapapi.NewClient(cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("swap api client: %w", err)
	}

	var s source.Source = swapapiadapter.New(swapapiadapter.Config{
		SellToken:    cfg.SellToken,
		TakerAddress: taker,
	}, client)
	// prefer the token bucket when a per-minute budget is set
	if cfg.MaxRequestsPerMinute > 0 {
		s = &ratelimit.TokenBucketSource{S: s, TB: ratelimit.PerMinute(cfg.MaxRequestsPerMinute, cfg.Burst)}
	} else if cfg.MinRequestIntervalSec > 0 {
		s = &ratelimit.MinInterval{S: s, Interval: time.Duration(cfg.MinRequestIntervalSec) * time.Second}
	}
	if cfg.Coalesce {
		s = coalesce.New(s)
	}
	return s, nil
}
