package source

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Asset identifies the token being bought.
type Asset struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
	Decimals int32  `json:"decimals"`
}

// DisplayName returns the best human name for the asset, or fallback when
// neither symbol nor name is known.
func (a Asset) DisplayName(fallback string) string {
	if s := strings.TrimSpace(a.Symbol); s != "" {
		return strings.ToUpper(s)
	}
	if n := strings.TrimSpace(a.Name); n != "" {
		return n
	}
	return fallback
}

// Quote is a priced estimate for buying Amount units of an asset with ETH.
// Wei values are kept as big.Int, unit prices as decimals.
type Quote struct {
	AssetID    string          `json:"asset_id"`
	Amount     decimal.Decimal `json:"amount"`
	Price      decimal.Decimal `json:"price"`
	TotalWei   *big.Int        `json:"total_wei"`
	FeeWei     *big.Int        `json:"fee_wei,omitempty"`
	Source     string          `json:"source"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Source fetches quotes. Implementations report failures as *Error where
// they can classify them.
type Source interface {
	Name() string
	Fetch(ctx context.Context, asset Asset, amount decimal.Decimal) (Quote, error)
}

// ErrInvalidAmount marks a buy amount the source cannot quote, such as one
// below the asset's smallest unit. It is a user input problem, not a fault.
var ErrInvalidAmount = errors.New("invalid buy amount")

// Kind enumerates the failures a Source can report.
type Kind int

const (
	KindUnknown Kind = iota
	KindInsufficientAssetLiquidity
	KindInsufficientZrxLiquidity
	KindStandardRelayerAPIError
	KindAssetUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInsufficientAssetLiquidity:
		return "INSUFFICIENT_ASSET_LIQUIDITY"
	case KindInsufficientZrxLiquidity:
		return "INSUFFICIENT_ZRX_LIQUIDITY"
	case KindStandardRelayerAPIError:
		return "STANDARD_RELAYER_API_ERROR"
	case KindAssetUnavailable:
		return "ASSET_UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// Error is the typed failure channel of a Source.
type Error struct {
	Kind    Kind
	AssetID string
	// Available is the amount the market could fill; zero when unknown.
	Available decimal.Decimal
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(e.Kind.String()))
	if e.AssetID != "" {
		fmt.Fprintf(&b, " (asset %s)", e.AssetID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
