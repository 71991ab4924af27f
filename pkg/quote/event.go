package quote

import (
	"context"

	"broker-swap/pkg/types"
)

// EventType enumerates what the routing service can report.
type EventType string

const (
	EventQuote    EventType = "quote"
	EventPaused   EventType = "paused"
	EventError    EventType = "error"
	EventProgress EventType = "progress"
	EventFinished EventType = "finished"
)

// Event is a single message from the routing service. Exactly one payload
// field is set, matching Type. Paused events carry none.
type Event struct {
	Type     EventType
	Quote    *types.Quote
	Progress *types.ProgressStatus
	Result   *types.TradeResult
	Error    string
}

// Request asks for a quote. ID is assigned by the Channel.
type Request struct {
	ID                uint64  `json:"requestId,omitempty"`
	SellingAsset      string  `json:"sellingAsset"`
	BuyingAsset       string  `json:"buyingAsset"`
	SellingAmount     string  `json:"sellingAmount,omitempty"`
	SlippageTolerance float64 `json:"slippageTolerance"`
	Fee               string  `json:"fee,omitempty"`
}

// SignFunc signs a payload on behalf of the escrow account. payload is
// either a *types.Transaction, signed in place and returned, or raw bytes,
// for which the detached signature is returned.
type SignFunc func(ctx context.Context, payload any) (any, error)

// Service is the remote routing service.
type Service interface {
	Quote(ctx context.Context, req Request) error
	ConfirmQuote(ctx context.Context, account string, sign SignFunc) error
	Stop(ctx context.Context) error
	Events() <-chan Event
	Close() error
}
