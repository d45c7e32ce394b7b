package account

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type Status int

const (
	StatusNone Status = iota // no provider configured
	StatusLoading
	StatusLocked
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLocked:
		return "locked"
	case StatusReady:
		return "ready"
	default:
		return "none"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// State is an immutable view of the account. BalanceWei is a private copy.
type State struct {
	Status     Status         `json:"status"`
	Address    common.Address `json:"address"`
	BalanceWei *big.Int       `json:"balance_wei,omitempty"`
	NetworkID  uint64         `json:"network_id"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Monitor keeps the latest account State. Concurrent refreshes share a
// single provider call.
type Monitor struct {
	provider Provider
	log      zerolog.Logger
	sf       singleflight.Group

	mu    sync.RWMutex
	state State
}

func NewMonitor(p Provider, log zerolog.Logger) *Monitor {
	m := &Monitor{provider: p, log: log.With().Str("component", "account").Logger()}
	if p != nil {
		m.state.Status = StatusLoading
	}
	return m
}

// Snapshot returns the current account state.
func (m *Monitor) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyState(m.state)
}

// Refresh asks the provider for a new snapshot. With setLoading the state
// moves to Loading first unless the account is already Ready, so periodic
// refreshes never flicker a known account.
func (m *Monitor) Refresh(ctx context.Context, setLoading bool) error {
	if m.provider == nil {
		return nil
	}
	if setLoading {
		m.mu.Lock()
		if m.state.Status != StatusReady {
			m.state.Status = StatusLoading
		}
		m.mu.Unlock()
	}

	type result struct {
		snap Snapshot
		err  error
	}
	v, _, _ := m.sf.Do("snapshot", func() (any, error) {
		snap, err := m.provider.Snapshot(ctx)
		return result{snap: snap, err: err}, nil
	})
	res := v.(result)
	m.apply(res.snap, res.err)
	if res.err != nil {
		m.log.Debug().Err(res.err).Msg("account refresh failed")
	}
	return res.err
}

func (m *Monitor) apply(snap Snapshot, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := State{NetworkID: snap.NetworkID, UpdatedAt: time.Now()}
	if snap.Address == nil {
		next.Status = StatusLocked
		if err != nil {
			next.NetworkID = m.state.NetworkID
		}
		m.state = next
		return
	}
	next.Status = StatusReady
	next.Address = *snap.Address
	switch {
	case snap.BalanceWei != nil:
		next.BalanceWei = new(big.Int).Set(snap.BalanceWei)
	case m.state.Status == StatusReady && m.state.Address == next.Address:
		// keep the last known balance of the same account
		next.BalanceWei = m.state.BalanceWei
	}
	m.state = next
}

func copyState(s State) State {
	if s.BalanceWei != nil {
		s.BalanceWei = new(big.Int).Set(s.BalanceWei)
	}
	return s
}
