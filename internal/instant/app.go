// Package instant wires the buy widget's moving parts: the current
// selection, the quote coordinator and its background refresh, the account
// monitor and the error banner.
package instant

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"instantbuy/internal/account"
	"instantbuy/internal/classify"
	"instantbuy/internal/config"
	"instantbuy/internal/debounce"
	"instantbuy/internal/flash"
	"instantbuy/internal/heartbeat"
	"instantbuy/internal/quote"
	"instantbuy/internal/report"
	"instantbuy/internal/source"
	"instantbuy/internal/telemetry"
)

var (
	ErrNoSource = errors.New("instant: quote source is required")
	ErrStopped  = errors.New("instant: app stopped")
)

// Deps are the collaborators an App is built from. Only Source is required.
type Deps struct {
	Source    source.Source
	Account   account.Provider
	Log       zerolog.Logger
	Metrics   telemetry.Collector
	Reporter  report.ErrorReporter
	Analytics report.Analytics
}

// Selection is what the user wants to buy.
type Selection struct {
	Asset  source.Asset    `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

func (s Selection) quotable() bool { return s.Asset.ID != "" && s.Amount.IsPositive() }

// State is a point-in-time view of the whole widget.
type State struct {
	Selection       Selection          `json:"selection"`
	OrderInProgress bool               `json:"order_in_progress"`
	Quote           quote.State        `json:"quote"`
	Account         account.State      `json:"account"`
	Error           flash.DisplayState `json:"error"`
}

// App owns one instance of every component; nothing is shared globally.
type App struct {
	cfg     config.Refresh
	log     zerolog.Logger
	metrics telemetry.Collector

	flasher  *flash.Flasher
	quotes   *quote.Coordinator
	account  *account.Monitor
	amounts  *debounce.Debouncer[Selection]
	policy   *quote.RefreshPolicy
	accounts *heartbeat.Heartbeater

	mu       sync.Mutex
	sel      Selection
	ordering bool
	stopped  bool
	stop     func() bool
}

func New(cfg config.Refresh, deps Deps) (*App, error) {
	if deps.Source == nil {
		return nil, ErrNoSource
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.Noop()
	}
	a := &App{cfg: cfg, log: deps.Log.With().Str("component", "instant").Logger(), metrics: deps.Metrics}

	a.flasher = flash.New(flash.WithDelay(cfg.ErrorFlash()), flash.WithLogger(deps.Log))
	a.quotes = quote.New(deps.Source, a.flasher,
		quote.WithLogger(deps.Log),
		quote.WithCollector(deps.Metrics),
		quote.WithReporter(deps.Reporter),
		quote.WithAnalytics(deps.Analytics),
		quote.WithFetchTimeout(cfg.FetchTimeout()),
	)
	a.amounts = debounce.New(cfg.Debounce(), a.requestManual)
	a.policy = quote.NewRefreshPolicy(a.quotes, a.target, cfg.QuoteRunImmediately,
		heartbeat.WithLogger(deps.Log), heartbeat.WithCollector(deps.Metrics))

	a.account = account.NewMonitor(deps.Account, deps.Log)
	if deps.Account != nil {
		first := true
		a.accounts = heartbeat.New("account", func(ctx context.Context) error {
			// only the very first load shows Loading
			setLoading := first
			first = false
			return a.account.Refresh(ctx, setLoading)
		}, cfg.AccountRunImmediately, heartbeat.WithLogger(deps.Log), heartbeat.WithCollector(deps.Metrics))
	}
	return a, nil
}

// Start begins the background refreshes. They stop on Stop or when ctx ends.
// A stopped App cannot be started again.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if err := a.policy.Start(a.cfg.QuoteInterval()); err != nil {
		return err
	}
	if a.accounts != nil {
		if err := a.accounts.Start(a.cfg.AccountInterval()); err != nil {
			a.policy.Stop()
			return err
		}
	}
	stop := context.AfterFunc(ctx, a.Stop)
	a.mu.Lock()
	a.stop = stop
	a.mu.Unlock()
	a.log.Info().
		Dur("quote_interval", a.cfg.QuoteInterval()).
		Dur("account_interval", a.cfg.AccountInterval()).
		Bool("account", a.accounts != nil).
		Msg("instant buy started")
	return nil
}

// Stop halts the refreshes, drops a pending amount edit and discards
// in-flight quotes. It is safe to call more than once.
func (a *App) Stop() {
	a.mu.Lock()
	stop := a.stop
	a.stop = nil
	a.stopped = true
	a.mu.Unlock()
	if stop != nil {
		stop()
	}

	a.policy.Stop()
	if a.accounts != nil {
		a.accounts.Stop()
	}
	a.amounts.Stop()
	a.quotes.Close()
	a.quotes.Wait()
	a.policy.Wait()
	if a.accounts != nil {
		a.accounts.Wait()
	}
	a.flasher.Clear()
}

// SelectAsset switches the asset and, when an amount is set, quotes it
// right away.
func (a *App) SelectAsset(asset source.Asset) {
	a.mu.Lock()
	a.sel.Asset = asset
	sel := a.sel
	a.mu.Unlock()

	a.amounts.Stop()
	if sel.quotable() {
		a.requestManual(sel)
	}
}

// SetAmount records a new amount. The quote follows once the input has been
// quiet for the debounce delay; only the last amount is quoted.
func (a *App) SetAmount(amount decimal.Decimal) {
	a.mu.Lock()
	a.sel.Amount = amount
	sel := a.sel
	a.mu.Unlock()

	if !sel.quotable() {
		a.amounts.Stop()
		return
	}
	a.amounts.Call(sel)
}

// Select sets asset and amount together and quotes immediately.
func (a *App) Select(asset source.Asset, amount decimal.Decimal) (quote.Request, bool) {
	a.mu.Lock()
	a.sel = Selection{Asset: asset, Amount: amount}
	sel := a.sel
	a.mu.Unlock()

	a.amounts.Stop()
	return a.quotes.RequestQuote(sel.Asset, sel.Amount, quote.Manual, false)
}

// RefreshNow quotes the current selection without waiting, sending a pending
// amount edit first if there is one.
func (a *App) RefreshNow() bool {
	if a.amounts.Flush() {
		return true
	}
	a.mu.Lock()
	sel := a.sel
	a.mu.Unlock()
	if !sel.quotable() {
		return false
	}
	_, ok := a.quotes.RequestQuote(sel.Asset, sel.Amount, quote.Manual, false)
	return ok
}

// SetOrderInProgress pauses background quote refreshes while an order is
// being placed.
func (a *App) SetOrderInProgress(v bool) {
	a.mu.Lock()
	a.ordering = v
	a.mu.Unlock()
}

// CheckBalance compares the account balance with the current quote and
// flashes a message when the account cannot pay.
func (a *App) CheckBalance() error {
	err := account.CheckAffordable(a.account.Snapshot(), a.quotes.Snapshot().Quote)
	if err != nil {
		a.flashError(err)
	}
	return err
}

// ReportSignatureRejected flashes the message for a declined wallet
// signature.
func (a *App) ReportSignatureRejected() {
	a.flashError(account.ErrUserRejectedSignature)
}

// RefreshAccount reloads the account state now.
func (a *App) RefreshAccount(ctx context.Context) error {
	return a.account.Refresh(ctx, false)
}

// Snapshot returns the current state of every component.
func (a *App) Snapshot() State {
	a.mu.Lock()
	sel, ordering := a.sel, a.ordering
	a.mu.Unlock()
	return State{
		Selection:       sel,
		OrderInProgress: ordering,
		Quote:           a.quotes.Snapshot(),
		Account:         a.account.Snapshot(),
		Error:           a.flasher.Snapshot(),
	}
}

// Wait blocks until every issued quote fetch has been handled.
func (a *App) Wait() { a.quotes.Wait() }

func (a *App) requestManual(sel Selection) {
	if _, ok := a.quotes.RequestQuote(sel.Asset, sel.Amount, quote.Manual, false); !ok {
		a.log.Debug().Str("asset", sel.Asset.ID).Msg("manual quote not issued")
	}
}

// target feeds the background refresh.
func (a *App) target() (source.Asset, decimal.Decimal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ordering || !a.sel.quotable() {
		return source.Asset{}, decimal.Zero, false
	}
	return a.sel.Asset, a.sel.Amount, true
}

func (a *App) flashError(err error) {
	a.mu.Lock()
	asset := a.sel.Asset
	a.mu.Unlock()
	c := classify.Classify(asset, err)
	a.flasher.Flash(c.Message)
	a.metrics.IncErrorFlash(c.Category.String())
}
