// Package report holds the fire-and-forget side channels: error reporting
// and analytics. Neither may block or fail the caller.
package report

import (
	"github.com/rs/zerolog"
)

// ErrorReporter receives unexpected errors.
type ErrorReporter interface {
	Report(err error)
}

// Analytics receives product events about quote fetching.
type Analytics interface {
	QuoteFetched(assetID, amount, origin string)
	QuoteError(kind, assetID, amount, origin string)
}

// LogReporter reports errors to a zerolog logger.
type LogReporter struct {
	Log zerolog.Logger
}

func (r LogReporter) Report(err error) {
	if err == nil {
		return
	}
	r.Log.Error().Err(err).Msg("unexpected error reported")
}

// LogAnalytics writes analytics events as debug log lines.
type LogAnalytics struct {
	Log zerolog.Logger
}

func (a LogAnalytics) QuoteFetched(assetID, amount, origin string) {
	a.Log.Debug().
		Str("event", "quote_fetched").
		Str("asset", assetID).
		Str("amount", amount).
		Str("origin", origin).
		Send()
}

func (a LogAnalytics) QuoteError(kind, assetID, amount, origin string) {
	a.Log.Debug().
		Str("event", "quote_error").
		Str("kind", kind).
		Str("asset", assetID).
		Str("amount", amount).
		Str("origin", origin).
		Send()
}

// Nop discards everything.
type Nop struct{}

func (Nop) Report(error)                              {}
func (Nop) QuoteFetched(string, string, string)       {}
func (Nop) QuoteError(string, string, string, string) {}
