package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"instantbuy/internal/account"
	"instantbuy/internal/config"
	"instantbuy/internal/httpx"
	"instantbuy/internal/instant"
	"instantbuy/internal/logging"
	"instantbuy/internal/report"
	"instantbuy/internal/telemetry"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
	// Config
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		boot.Fatal().Err(err).Msg("config")
	}
	log, err := logging.Setup(cfg.Logging)
	if err != nil {
		boot.Fatal().Err(err).Msg("logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewPrometheusCollector(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("metrics")
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	src, err := instant.NewSwapSource(cfg.SwapAPI, cfg.Ethereum.AccountAddress, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("quote source")
	}
	if cfg.SwapAPI.APIKey == "" {
		log.Warn().Msg("SWAP_API_KEY not set; requests may be rejected or throttled")
	}

	app, err := instant.New(cfg.Refresh, instant.Deps{
		Source:    src,
		Account:   dialAccount(ctx, cfg.Ethereum, log),
		Log:       log,
		Metrics:   metrics,
		Reporter:  report.LogReporter{Log: log},
		Analytics: report.LogAnalytics{Log: log},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("app")
	}
	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start")
	}

	root := http.NewServeMux()
	root.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	root.Handle("/", newAPI(app, log))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	app.Stop()
	log.Info().Msg("server stopped")
}

// dialAccount connects to the configured JSON-RPC node. Without a node the
// app runs with no account; without an address the account stays locked.
func dialAccount(ctx context.Context, cfg config.Ethereum, log zerolog.Logger) account.Provider {
	if cfg.RPCURL == "" {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	if err != nil {
		log.Warn().Err(err).Msg("ethereum rpc unavailable; running without account")
		return nil
	}
	p := &account.EthProvider{Client: client}
	switch {
	case cfg.AccountAddress == "":
	case common.IsHexAddress(cfg.AccountAddress):
		p.Address = common.HexToAddress(cfg.AccountAddress)
	default:
		log.Warn().Str("address", cfg.AccountAddress).Msg("invalid account address; account stays locked")
	}
	return p
}
