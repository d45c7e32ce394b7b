package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"instantbuy/internal/classify"
	"instantbuy/internal/config"
	"instantbuy/internal/httpx"
	"instantbuy/internal/instant"
	"instantbuy/internal/logging"
	"instantbuy/internal/source"
)

// result is one line of output: a quote, or the message a buyer would see.
type result struct {
	Asset    source.Asset       `json:"asset"`
	Quote    *source.Quote      `json:"quote,omitempty"`
	Category *classify.Category `json:"category,omitempty"`
	Message  string             `json:"message,omitempty"`
}

func main() {
	var assetsCSV, amountStr, configPath string
	var timeout, concurrency int

	flag.StringVar(&assetsCSV, "assets", os.Getenv("ASSETS"), "comma-separated assets as address[:symbol[:decimals]]")
	flag.StringVar(&amountStr, "amount", "1", "amount of each asset to quote")
	flag.IntVar(&timeout, "timeout", 15, "overall timeout seconds")
	flag.IntVar(&concurrency, "concurrency", 4, "parallel requests")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	flag.Parse()

	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load(configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("config")
	}
	log, err := logging.Setup(cfg.Logging)
	if err != nil {
		boot.Fatal().Err(err).Msg("logging")
	}

	assets, err := parseAssets(assetsCSV)
	if err != nil {
		log.Fatal().Err(err).Msg("assets")
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil || !amount.IsPositive() {
		log.Fatal().Str("amount", amountStr).Msg("amount must be a positive number")
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	src, err := instant.NewSwapSource(cfg.SwapAPI, cfg.Ethereum.AccountAddress, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("quote source")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	results := fetchAll(ctx, src, assets, amount, concurrency)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		log.Fatal().Err(err).Msg("encode")
	}
}

// fetchAll quotes every asset. Failures become classified messages, so the
// group itself never fails.
func fetchAll(ctx context.Context, src source.Source, assets []source.Asset, amount decimal.Decimal, limit int) []result {
	out := make([]result, len(assets))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, a := range assets {
		g.Go(func() error {
			q, err := src.Fetch(ctx, a, amount)
			if err != nil {
				c := classify.Classify(a, err)
				out[i] = result{Asset: a, Category: &c.Category, Message: c.Message}
				return nil
			}
			out[i] = result{Asset: a, Quote: &q}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// parseAssets reads "address[:symbol[:decimals]]" items. Decimals default
// to 18.
func parseAssets(csv string) ([]source.Asset, error) {
	var out []source.Asset
	for _, item := range strings.Split(csv, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) > 3 || parts[0] == "" {
			return nil, fmt.Errorf("bad asset %q", item)
		}
		a := source.Asset{ID: parts[0], Decimals: 18}
		if len(parts) > 1 {
			a.Symbol = parts[1]
		}
		if len(parts) > 2 {
			d, err := strconv.ParseInt(parts[2], 10, 32)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("bad decimals in %q", item)
			}
			a.Decimals = int32(d)
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no assets given")
	}
	return out, nil
}
