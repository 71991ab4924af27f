// Package balance keeps the connected account's holdings.
package balance

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"broker-swap/pkg/apperror"
	"broker-swap/pkg/horizon"
	"broker-swap/pkg/logger"
	"broker-swap/pkg/metrics"
)

var log = logger.New("balance")

// AccountLoader loads a ledger account.
type AccountLoader interface {
	LoadAccount(ctx context.Context, address string) (*horizon.Account, error)
}

// Balance is the holding of a single asset.
type Balance struct {
	Balance              string `json:"balance"`
	IsLiquidityPoolShare bool   `json:"isLiquidityPoolShare"`
}

// Snapshot maps asset ids to balances.
type Snapshot map[string]Balance

// Tracker refreshes and serves the latest snapshot. A refresh always replaces
// the whole snapshot.
type Tracker struct {
	loader  AccountLoader
	limiter *rate.Limiter
	metrics *metrics.SwapMetrics

	mu       sync.RWMutex
	address  string
	snapshot Snapshot
	updated  time.Time
}

// NewTracker creates a tracker for address. minInterval bounds how often
// RefreshThrottled hits the ledger.
func NewTracker(loader AccountLoader, address string, minInterval time.Duration) *Tracker {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &Tracker{
		loader:   loader,
		limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		metrics:  metrics.Swap(),
		address:  address,
		snapshot: Snapshot{},
	}
}

// Address returns the tracked account.
func (t *Tracker) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.address
}

// SetAddress switches the tracked account and drops the old snapshot.
func (t *Tracker) SetAddress(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.address == address {
		return
	}
	t.address = address
	t.snapshot = Snapshot{}
	t.updated = time.Time{}
}

// Refresh reloads the snapshot from the ledger. Without an address it is a no-op.
func (t *Tracker) Refresh(ctx context.Context) (Snapshot, error) {
	address := t.Address()
	if address == "" {
		return Snapshot{}, nil
	}

	account, err := t.loader.LoadAccount(ctx, address)
	t.metrics.ObserveBalanceRefresh(err)
	if err != nil {
		if apperror.GetCode(err) == apperror.CodeAccountNotFound {
			t.replace(address, Snapshot{})
		}
		return nil, err
	}

	next := make(Snapshot, len(account.Balances))
	for _, b := range account.Balances {
		next[b.AssetID()] = Balance{
			Balance:              b.Balance,
			IsLiquidityPoolShare: b.IsLiquidityPoolShare(),
		}
	}
	t.replace(address, next)

	log.Debug().Str("account", address).Int("assets", len(next)).Msg("Balances refreshed")
	return next.clone(), nil
}

// RefreshThrottled refreshes unless another refresh ran within the minimum
// interval. It reports whether a refresh was attempted.
func (t *Tracker) RefreshThrottled(ctx context.Context) bool {
	if !t.limiter.Allow() {
		return false
	}
	if _, err := t.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("Balance refresh failed")
	}
	return true
}

// Snapshot returns a copy of the latest snapshot.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot.clone()
}

// Get returns the balance of a single asset.
func (t *Tracker) Get(asset string) (Balance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.snapshot[asset]
	return b, ok
}

// UpdatedAt returns when the snapshot was last replaced.
func (t *Tracker) UpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updated
}

func (t *Tracker) replace(address string, next Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// the account may have been switched while loading
	if t.address != address {
		return
	}
	t.snapshot = next
	t.updated = time.Now()
}

func (s Snapshot) clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
