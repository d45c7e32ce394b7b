package swapapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
)

// Reason codes the API reports for a failed price request.
const (
	ReasonInsufficientAssetLiquidity = "INSUFFICIENT_ASSET_LIQUIDITY"
	ReasonInsufficientZrxLiquidity   = "INSUFFICIENT_ZRX_LIQUIDITY"
)

// ErrUnreachable wraps transport failures: the request never got an answer.
var ErrUnreachable = errors.New("swap api unreachable")

// PriceRequest asks for the price of buying BuyAmount base units of BuyToken
// with SellToken.
type PriceRequest struct {
	BuyToken  string
	SellToken string
	BuyAmount string
	// TakerAddress is optional.
	TakerAddress string
}

// Source is one liquidity source contributing to a price.
type Source struct {
	Name       string `json:"name"`
	Proportion string `json:"proportion"`
}

// PriceResponse is the indicative price returned by /swap/v1/price. Amounts
// are decimal strings in base units.
type PriceResponse struct {
	Price            string   `json:"price"`
	EstimatedGas     string   `json:"estimatedGas"`
	GasPrice         string   `json:"gasPrice"`
	ProtocolFee      string   `json:"protocolFee"`
	BuyAmount        string   `json:"buyAmount"`
	SellAmount       string   `json:"sellAmount"`
	Value            string   `json:"value"`
	BuyTokenAddress  string   `json:"buyTokenAddress"`
	SellTokenAddress string   `json:"sellTokenAddress"`
	Sources          []Source `json:"sources"`
}

// ValidationError is one field-level failure inside an APIError.
type ValidationError struct {
	Field  string `json:"field"`
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// APIError is a non-200 answer from the API.
type APIError struct {
	StatusCode       int               `json:"-"`
	Code             int               `json:"code"`
	Reason           string            `json:"reason"`
	ValidationErrors []ValidationError `json:"validationErrors"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "swap api: status %d", e.StatusCode)
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	for _, v := range e.ValidationErrors {
		fmt.Fprintf(&b, "; %s: %s", v.Field, v.Reason)
	}
	return b.String()
}

// HasReason reports whether the error or any of its validation errors
// carries reason.
func (e *APIError) HasReason(reason string) bool {
	if e.Reason == reason {
		return true
	}
	for _, v := range e.ValidationErrors {
		if v.Reason == reason {
			return true
		}
	}
	return false
}

// HasField reports whether a validation error names field.
func (e *APIError) HasField(field string) bool {
	for _, v := range e.ValidationErrors {
		if v.Field == field {
			return true
		}
	}
	return false
}

// GetPrice retrieves an indicative price.
func (c *Client) GetPrice(ctx context.Context, in PriceRequest, opts ...ClientOption) (*PriceResponse, error) {
	var override = &Client{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		query:      c.query,
	}
	for _, opt := range opts {
		opt(override)
	}

	query := maps.Clone(override.query)
	query.Set("buyToken", in.BuyToken)
	query.Set("sellToken", in.SellToken)
	query.Set("buyAmount", in.BuyAmount)
	if in.TakerAddress != "" {
		query.Set("takerAddress", in.TakerAddress)
	}

	url := fmt.Sprintf("%s/swap/v1/price?%s", override.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w: %w", ErrUnreachable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: res.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		if len(body) > 0 && json.Unmarshal(body, apiErr) != nil {
			apiErr.Reason = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}

	var out PriceResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding price response: %w", err)
	}
	return &out, nil
}
