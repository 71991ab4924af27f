package negotiator

import (
	"strconv"
	"strings"

	"broker-swap/pkg/amount"
	"broker-swap/pkg/types"
)

// Phase is the position of a swap attempt in the negotiation protocol.
type Phase string

const (
	PhaseReady       Phase = "ready"
	PhaseQuoting     Phase = "quoting"
	PhaseConfirming  Phase = "confirming"
	PhaseAuthorizing Phase = "authorizing"
	PhaseSettling    Phase = "settling"
	PhaseCompleted   Phase = "completed"
	PhaseFailed      Phase = "failed"
	PhaseCancelled   Phase = "cancelled"
)

// ValidationMissingParameters marks an incomplete or contradictory swap.
const ValidationMissingParameters = "missing_parameters"

// State is a snapshot of the negotiation. Index 0 of Asset and Amount is the
// selling side, index 1 the buying side.
type State struct {
	Phase    Phase
	Asset    [2]string
	Amount   [2]string
	Slippage float64
	Fee      string

	Quote              *types.Quote
	ConversionPath     []types.Asset
	ConversionFeasible bool
	PathLoaded         bool
	Profit             string

	Message          string
	ErrorMessage     string
	InProgress       bool
	IsFinished       bool
	ValidationStatus string
	Bought           string
}

// IsValid reports whether the parameters can be quoted and confirmed.
func (s State) IsValid() bool {
	return s.ValidationStatus == ""
}

func (s State) SellingAsset() string  { return s.Asset[0] }
func (s State) BuyingAsset() string   { return s.Asset[1] }
func (s State) SellingAmount() string { return s.Amount[0] }
func (s State) BuyingAmount() string  { return s.Amount[1] }

// Display formats the current quote for printing.
func (s State) Display() types.QuoteDisplay {
	d := types.QuoteDisplay{
		SellingAmount: s.Amount[0],
		SellingAsset:  s.Asset[0],
		BuyingAmount:  s.Amount[1],
		BuyingAsset:   s.Asset[1],
		Profit:        s.Profit,
		Feasible:      s.ConversionFeasible,
	}
	d.Slippage = strconv.FormatFloat(s.Slippage, 'f', -1, 64) + "%"
	if len(s.ConversionPath) > 0 {
		codes := make([]string, len(s.ConversionPath))
		for i, a := range s.ConversionPath {
			codes[i] = a.Code
		}
		d.Path = strings.Join(codes, " → ")
	}
	return d
}

func (s State) clone() State {
	if s.ConversionPath != nil {
		s.ConversionPath = append([]types.Asset(nil), s.ConversionPath...)
	}
	return s
}

func validate(s *State) string {
	if s.Asset[1] == "" || s.Asset[0] == s.Asset[1] ||
		(!amount.IsPositive(s.Amount[0]) && !amount.IsPositive(s.Amount[1])) {
		return ValidationMissingParameters
	}
	return ""
}

// clearDerived drops everything computed from the previous parameters.
func clearDerived(s *State) {
	s.Quote = nil
	s.ConversionPath = nil
	s.ConversionFeasible = false
	s.PathLoaded = false
	s.Profit = ""
	s.Message = ""
	s.ErrorMessage = ""
	s.Amount[1] = ""
	s.IsFinished = false
	s.ValidationStatus = validate(s)
	if s.ValidationStatus == "" {
		s.Phase = PhaseQuoting
	} else {
		s.Phase = PhaseReady
	}
}

// applyQuote records q and derives the buying amount from it. The direct
// trade figure wins when it beats the generic estimate.
func applyQuote(s *State, q *types.Quote) error {
	if q.DirectTrade != nil {
		path, err := types.ParsePath(q.DirectTrade.Path)
		if err != nil {
			return err
		}
		s.ConversionPath = path
	}

	estimated := q.EstimatedBuyingAmount
	if q.DirectTrade != nil && amount.Greater(q.DirectTrade.Buying, q.EstimatedBuyingAmount) {
		estimated = q.DirectTrade.Buying
	}
	buying, err := amount.ApplySlippage(estimated, s.Slippage)
	if err != nil {
		return err
	}

	s.Quote = q
	s.Amount[1] = buying
	s.Profit = q.Profit
	s.PathLoaded = true
	s.ConversionFeasible = q.Status == types.QuoteSuccess || q.DirectTrade != nil
	return nil
}
