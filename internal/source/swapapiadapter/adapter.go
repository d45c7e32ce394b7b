package swapapiadapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"instantbuy/internal/source"
	"instantbuy/internal/source/swapapi"
)

// PriceClient is the part of the swap API client the adapter needs.
//
//go:generate mockgen -package=swapapiadapter -destination=mock_price_client_test.go -source=adapter.go PriceClient
type PriceClient interface {
	GetPrice(ctx context.Context, in swapapi.PriceRequest, opts ...swapapi.ClientOption) (*swapapi.PriceResponse, error)
}

type Config struct {
	Name      string // display name, default: 0x
	SellToken string // token paid with, default: ETH
	// TakerAddress is sent along when known so the API can account for
	// the buyer's balances.
	TakerAddress string
}

// Adapter turns swap API prices into quotes and API failures into typed
// source errors.
type Adapter struct {
	cfg    Config
	client PriceClient
}

func New(cfg Config, client PriceClient) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "0x"
	}
	if cfg.SellToken == "" {
		cfg.SellToken = "ETH"
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) Fetch(ctx context.Context, asset source.Asset, amount decimal.Decimal) (source.Quote, error) {
	// buy amounts are integral base units; round up so the buyer gets at
	// least what they asked for
	base := amount.Shift(asset.Decimals).Ceil()
	if !base.IsPositive() {
		return source.Quote{}, fmt.Errorf("%w: %s is below one base unit", source.ErrInvalidAmount, amount)
	}

	res, err := a.client.GetPrice(ctx, swapapi.PriceRequest{
		BuyToken:     asset.ID,
		SellToken:    a.cfg.SellToken,
		BuyAmount:    base.String(),
		TakerAddress: a.cfg.TakerAddress,
	})
	if err != nil {
		return source.Quote{}, toSourceError(asset, err)
	}

	price, err := decimal.NewFromString(res.Price)
	if err != nil {
		return source.Quote{}, fmt.Errorf("decoding price %q: %w", res.Price, err)
	}
	total, err := parseWei(res.Value, res.SellAmount)
	if err != nil {
		return source.Quote{}, fmt.Errorf("decoding value: %w", err)
	}
	fee, err := parseWei(res.ProtocolFee)
	if err != nil {
		return source.Quote{}, fmt.Errorf("decoding protocol fee: %w", err)
	}

	return source.Quote{
		AssetID:    asset.ID,
		Amount:     amount,
		Price:      price,
		TotalWei:   total,
		FeeWei:     fee,
		Source:     a.sourceName(res.Sources),
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// sourceName names the adapter and the liquidity source filling the largest
// share, e.g. "0x:Uniswap_V3".
func (a *Adapter) sourceName(sources []swapapi.Source) string {
	best, bestShare := "", decimal.Zero
	for _, s := range sources {
		share, err := decimal.NewFromString(s.Proportion)
		if err != nil || !share.GreaterThan(bestShare) {
			continue
		}
		best, bestShare = s.Name, share
	}
	if best == "" {
		return a.cfg.Name
	}
	return fmt.Sprintf("%s:%s", a.cfg.Name, best)
}

// parseWei returns the first non-empty value as a base-10 integer, or nil
// when all are empty.
func parseWei(values ...string) (*big.Int, error) {
	for _, v := range values {
		if v == "" {
			continue
		}
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("not an integer: %q", v)
		}
		return n, nil
	}
	return nil, nil
}

func toSourceError(asset source.Asset, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	kind := source.KindUnknown
	var apiErr *swapapi.APIError
	switch {
	case errors.As(err, &apiErr):
		kind = kindOf(apiErr)
	case errors.Is(err, swapapi.ErrUnreachable):
		kind = source.KindStandardRelayerAPIError
	}
	return &source.Error{Kind: kind, AssetID: asset.ID, Err: err}
}

func kindOf(e *swapapi.APIError) source.Kind {
	switch {
	case e.HasReason(swapapi.ReasonInsufficientZrxLiquidity):
		return source.KindInsufficientZrxLiquidity
	case e.HasReason(swapapi.ReasonInsufficientAssetLiquidity):
		return source.KindInsufficientAssetLiquidity
	case e.StatusCode == http.StatusNotFound:
		return source.KindAssetUnavailable
	case e.StatusCode == http.StatusBadRequest && e.HasField("buyToken"):
		return source.KindAssetUnavailable
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500:
		return source.KindStandardRelayerAPIError
	default:
		return source.KindUnknown
	}
}
