package account

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"instantbuy/internal/source"
)

var (
	// ErrInsufficientBalance means the account cannot pay for the quote.
	ErrInsufficientBalance = errors.New("insufficient eth balance")
	// ErrUserRejectedSignature means the user declined to sign in the wallet.
	ErrUserRejectedSignature = errors.New("user rejected signature")
	// ErrLocked means the wallet exposes no address.
	ErrLocked = errors.New("wallet locked")
)

// Snapshot is what a wallet/provider reports about the connected account.
// Address and BalanceWei are nil when unknown.
type Snapshot struct {
	Address    *common.Address
	BalanceWei *big.Int
	NetworkID  uint64
}

// Provider yields account snapshots. It may fail when the wallet is locked
// or unreachable.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// EthClient is the subset of ethclient.Client the EthProvider needs.
type EthClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NetworkID(ctx context.Context) (*big.Int, error)
}

// EthProvider reads balance and network id over JSON-RPC for a fixed address.
// A zero address behaves like a locked wallet.
type EthProvider struct {
	Client  EthClient
	Address common.Address
}

func (p *EthProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	netID, err := p.Client.NetworkID(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("network id: %w", err)
	}
	snap := Snapshot{NetworkID: netID.Uint64()}
	if p.Address == (common.Address{}) {
		return snap, nil
	}
	addr := p.Address
	snap.Address = &addr
	bal, err := p.Client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return snap, fmt.Errorf("balance of %s: %w", addr.Hex(), err)
	}
	snap.BalanceWei = bal
	return snap, nil
}

// CheckAffordable returns ErrInsufficientBalance when a ready account holds
// less ETH than the quote costs. Unknown balances are not treated as errors.
func CheckAffordable(st State, q *source.Quote) error {
	if st.Status != StatusReady || st.BalanceWei == nil || q == nil || q.TotalWei == nil {
		return nil
	}
	if st.BalanceWei.Cmp(q.TotalWei) < 0 {
		return ErrInsufficientBalance
	}
	return nil
}
