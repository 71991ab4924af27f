package horizon

import (
	"fmt"
	"strconv"

	"broker-swap/pkg/types"
)

// Account is the subset of the ledger account document the client uses.
type Account struct {
	AccountID string    `json:"account_id"`
	Sequence  string    `json:"sequence"`
	Balances  []Balance `json:"balances"`
}

// Balance is a single account balance line.
type Balance struct {
	Balance         string `json:"balance"`
	AssetType       string `json:"asset_type"`
	AssetCode       string `json:"asset_code,omitempty"`
	AssetIssuer     string `json:"asset_issuer,omitempty"`
	LiquidityPoolID string `json:"liquidity_pool_id,omitempty"`
}

// IsLiquidityPoolShare reports whether the line holds pool shares.
func (b Balance) IsLiquidityPoolShare() bool {
	return b.AssetType == "liquidity_pool_shares"
}

// AssetID returns the broker notation for the balance asset. Pool shares are
// keyed by pool id.
func (b Balance) AssetID() string {
	switch {
	case b.AssetType == "native":
		return types.NativeCode
	case b.IsLiquidityPoolShare():
		return b.LiquidityPoolID
	default:
		return types.Asset{Code: b.AssetCode, Issuer: b.AssetIssuer}.String()
	}
}

// Find returns the balance line for an asset id.
func (a *Account) Find(assetID string) (Balance, bool) {
	for _, b := range a.Balances {
		if b.AssetID() == assetID {
			return b, true
		}
	}
	return Balance{}, false
}

// SequenceNumber parses the account sequence.
func (a *Account) SequenceNumber() (int64, error) {
	seq, err := strconv.ParseInt(a.Sequence, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence %q for %s: %w", a.Sequence, a.AccountID, err)
	}
	return seq, nil
}
