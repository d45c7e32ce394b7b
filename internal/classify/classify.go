// Package classify maps quote and account failures to user-facing messages.
package classify

import (
	"context"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"instantbuy/internal/account"
	"instantbuy/internal/source"
)

type Category int

const (
	Unknown Category = iota
	InsufficientLiquidity
	InsufficientBalance
	UpstreamUnavailable
	UserRejectedSignature
)

func (c Category) String() string {
	switch c {
	case InsufficientLiquidity:
		return "insufficient_liquidity"
	case InsufficientBalance:
		return "insufficient_balance"
	case UpstreamUnavailable:
		return "upstream_unavailable"
	case UserRejectedSignature:
		return "user_rejected_signature"
	default:
		return "unknown"
	}
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Fallback is substituted when the asset has no usable display name.
const Fallback = "this asset"

const GenericMessage = "Something went wrong, please try again"

// Classified is the outcome of Classify.
type Classified struct {
	Category Category
	Message  string
}

// Classify picks the category and message for err raised while quoting or
// buying asset. It never panics; a nil error is Unknown.
func Classify(asset source.Asset, err error) (out Classified) {
	defer func() {
		if r := recover(); r != nil {
			out = Classified{Category: Unknown, Message: GenericMessage}
		}
	}()

	name := asset.DisplayName(Fallback)

	switch {
	case err == nil:
		return Classified{Category: Unknown, Message: GenericMessage}
	case errors.Is(err, account.ErrInsufficientBalance):
		return Classified{InsufficientBalance, fmt.Sprintf("You don't have enough ETH to buy %s", name)}
	case errors.Is(err, account.ErrUserRejectedSignature):
		return Classified{UserRejectedSignature, "Denied transaction signature"}
	case errors.Is(err, context.DeadlineExceeded):
		return Classified{UpstreamUnavailable, fmt.Sprintf("%s is currently unavailable", capitalize(name))}
	}

	var se *source.Error
	if !errors.As(err, &se) {
		return Classified{Category: Unknown, Message: GenericMessage}
	}
	switch se.Kind {
	case source.KindInsufficientAssetLiquidity:
		if se.Available.IsPositive() {
			return Classified{InsufficientLiquidity, fmt.Sprintf("There are only %s %s available to buy", se.Available.String(), name)}
		}
		return Classified{InsufficientLiquidity, fmt.Sprintf("Not enough %s available", name)}
	case source.KindInsufficientZrxLiquidity:
		return Classified{InsufficientLiquidity, "Not enough ZRX available"}
	case source.KindStandardRelayerAPIError:
		return Classified{UpstreamUnavailable, fmt.Sprintf("%s is currently unavailable", capitalize(name))}
	case source.KindAssetUnavailable:
		if asset.ID == "" && se.AssetID != "" {
			name = se.AssetID
		}
		return Classified{UpstreamUnavailable, fmt.Sprintf("%s is currently unavailable", capitalize(name))}
	case source.KindUnknown:
		return Classified{Category: Unknown, Message: GenericMessage}
	}
	return Classified{Category: Unknown, Message: GenericMessage}
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
