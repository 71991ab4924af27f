package types

// SwapRequest represents a user's swap command
type SwapRequest struct {
	Amount       string
	SellingAsset string
	BuyingAsset  string
}

// QuoteStatus is the routing verdict attached to a quote.
type QuoteStatus string

const (
	QuoteSuccess QuoteStatus = "success"
	QuoteNoPath  QuoteStatus = "no_path"
	QuoteError   QuoteStatus = "error"
)

// DirectTrade is a single pool route offered alongside the routed estimate.
type DirectTrade struct {
	Path   []string `json:"path"`
	Buying string   `json:"buying"`
}

// Quote is a priced estimate received from the broker. It is never mutated
// after decoding.
type Quote struct {
	RequestID             uint64       `json:"requestId,omitempty"`
	Status                QuoteStatus  `json:"status"`
	SellingAsset          string       `json:"sellingAsset"`
	BuyingAsset           string       `json:"buyingAsset"`
	SellingAmount         string       `json:"sellingAmount,omitempty"`
	EstimatedBuyingAmount string       `json:"estimatedBuyingAmount"`
	DirectTrade           *DirectTrade `json:"directTrade,omitempty"`
	Profit                string       `json:"profit,omitempty"`
	Ts                    string       `json:"ts,omitempty"`
}

// TradeStatus is the terminal outcome of a settlement.
type TradeStatus string

const (
	TradeSuccess   TradeStatus = "success"
	TradeCancelled TradeStatus = "cancelled"
)

// TradeResult is carried by the finished event.
type TradeResult struct {
	Status TradeStatus `json:"status"`
	Sold   string      `json:"sold"`
	Bought string      `json:"bought"`
}

// ProgressStatus reports partial fills while settling.
type ProgressStatus struct {
	Sold   string `json:"sold"`
	Bought string `json:"bought"`
}

// QuoteDisplay holds formatted quote information for display
type QuoteDisplay struct {
	SellingAmount string
	SellingAsset  string
	BuyingAmount  string
	BuyingAsset   string
	Slippage      string
	Profit        string
	Path          string
	Feasible      bool
}
