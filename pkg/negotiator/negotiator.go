// Package negotiator drives a swap from parameter edits through quoting,
// authorization and settlement.
package negotiator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"broker-swap/pkg/amount"
	"broker-swap/pkg/apperror"
	"broker-swap/pkg/balance"
	"broker-swap/pkg/logger"
	"broker-swap/pkg/mediator"
	"broker-swap/pkg/quote"
	"broker-swap/pkg/types"
)

var log = logger.New("negotiator")

// Quoter is the debounced quote channel.
type Quoter interface {
	Request(req quote.Request)
	Hold()
	Stop()
	Confirm(ctx context.Context, account string, sign quote.SignFunc) error
	Events() <-chan quote.Event
	Close() error
}

// Signer is the wallet signing port.
type Signer interface {
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// Balances refreshes the connected account's holdings.
type Balances interface {
	Refresh(ctx context.Context) (balance.Snapshot, error)
	RefreshThrottled(ctx context.Context) bool
}

// Escrow is a single escrow agent.
type Escrow interface {
	Init(ctx context.Context) (string, error)
	Dispose(ctx context.Context) error
}

// EscrowFactory creates the escrow agent for one swap attempt.
type EscrowFactory func(p mediator.Params) Escrow

// Level grades a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user visible message.
type Notification struct {
	Level   Level
	Message string
}

// Notifier shows notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Deps are the collaborators of a Negotiator. Quotes, Wallet and Escrows are
// required.
type Deps struct {
	Quotes   Quoter
	Wallet   Signer
	Balances Balances
	Escrows  EscrowFactory
	Notifier Notifier
	// OnUpdate receives a snapshot after every state change, synchronously.
	OnUpdate func(State)
}

// Config holds the settlement timings and initial swap preferences.
type Config struct {
	// Slippage is the tolerance in percent. Zero selects the default; use
	// SetSlippage(0) to quote without tolerance.
	Slippage      float64
	Fee           string
	FinishTimeout time.Duration
	PollInterval  time.Duration
	DisposeDelay  time.Duration
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		Slippage:      1,
		Fee:           "normal",
		FinishTimeout: 60 * time.Second,
		PollInterval:  time.Second,
		DisposeDelay:  2 * time.Second,
	}
}

type reversal struct {
	asset   [2]string
	selling string
}

// Negotiator owns the swap parameters and the active swap attempt.
type Negotiator struct {
	deps Deps
	cfg  Config

	mu    sync.Mutex
	state State
	undo  *reversal
	busy  bool
	done  chan struct{}
}

// New creates a negotiator in the ready phase.
func New(deps Deps, cfg Config) *Negotiator {
	def := DefaultConfig()
	if cfg.FinishTimeout <= 0 {
		cfg.FinishTimeout = def.FinishTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.DisposeDelay < 0 {
		cfg.DisposeDelay = def.DisposeDelay
	}
	if cfg.Fee == "" {
		cfg.Fee = def.Fee
	}
	if cfg.Slippage <= 0 {
		cfg.Slippage = def.Slippage
	}
	if deps.Notifier == nil {
		deps.Notifier = NotifierFunc(func(Notification) {})
	}

	n := &Negotiator{deps: deps, cfg: cfg}
	n.state = State{
		Phase:    PhaseReady,
		Asset:    [2]string{types.NativeCode, types.NativeCode},
		Amount:   [2]string{"0", "0"},
		Slippage: cfg.Slippage,
		Fee:      cfg.Fee,
	}
	n.state.ValidationStatus = validate(&n.state)
	return n
}

// State returns a copy of the current state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.clone()
}

// SetAmount sets the selling amount.
func (n *Negotiator) SetAmount(value string) {
	n.edit(func(s *State) { s.Amount[0] = value })
}

// SetSellingAsset sets the asset to sell.
func (n *Negotiator) SetSellingAsset(asset string) {
	n.edit(func(s *State) { s.Asset[0] = asset })
}

// SetBuyingAsset sets the asset to buy.
func (n *Negotiator) SetBuyingAsset(asset string) {
	n.edit(func(s *State) { s.Asset[1] = asset })
}

// SetSlippage sets the slippage tolerance in percent.
func (n *Negotiator) SetSlippage(percent float64) error {
	if percent < 0 || percent >= 100 {
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext(fmt.Sprintf("slippage %v out of range", percent)))
	}
	n.edit(func(s *State) { s.Slippage = percent })
	return nil
}

// SetFee sets the fee tier passed to the broker.
func (n *Negotiator) SetFee(fee string) {
	n.edit(func(s *State) { s.Fee = fee })
}

// Resume re-quotes the current parameters, e.g. after a quote error.
func (n *Negotiator) Resume() {
	n.edit(func(*State) {})
}

// Reverse swaps the selling and buying sides. Reversing again before any
// other edit restores the previous assets and selling amount. It does
// nothing while a swap is in progress.
func (n *Negotiator) Reverse() {
	n.mu.Lock()
	if n.state.InProgress || n.busy {
		n.mu.Unlock()
		return
	}
	s := &n.state
	if u := n.undo; u != nil && u.asset == [2]string{s.Asset[1], s.Asset[0]} {
		s.Asset = u.asset
		s.Amount = [2]string{u.selling, ""}
		n.undo = nil
	} else {
		n.undo = &reversal{asset: s.Asset, selling: s.Amount[0]}
		s.Asset = [2]string{s.Asset[1], s.Asset[0]}
		s.Amount = [2]string{s.Amount[1], s.Amount[0]}
	}
	n.recalculateLocked()
}

// ResetOperationAmount zeroes both amounts.
func (n *Negotiator) ResetOperationAmount() {
	n.mu.Lock()
	n.state.Amount = [2]string{"0", "0"}
	n.undo = nil
	n.recalculateLocked()
}

func (n *Negotiator) edit(mutate func(s *State)) {
	n.mu.Lock()
	if n.state.InProgress || n.busy {
		n.mu.Unlock()
		log.Debug().Msg("Ignoring parameter change while a swap is in progress")
		return
	}
	mutate(&n.state)
	n.undo = nil
	n.recalculateLocked()
}

// recalculateLocked clears derived state and notifies observers before the
// re-quote is scheduled. It must be called with n.mu held and releases it.
func (n *Negotiator) recalculateLocked() {
	clearDerived(&n.state)
	n.state.InProgress = false
	snapshot := n.state.clone()
	n.mu.Unlock()

	n.publish(snapshot)

	if !snapshot.IsValid() {
		n.deps.Quotes.Stop()
		return
	}
	n.deps.Quotes.Request(quote.Request{
		SellingAsset:      snapshot.Asset[0],
		BuyingAsset:       snapshot.Asset[1],
		SellingAmount:     snapshot.Amount[0],
		SlippageTolerance: snapshot.Slippage / 100,
		Fee:               snapshot.Fee,
	})
}

// update applies mutate and notifies observers.
func (n *Negotiator) update(mutate func(s *State)) {
	n.mu.Lock()
	mutate(&n.state)
	snapshot := n.state.clone()
	n.mu.Unlock()
	n.publish(snapshot)
}

func (n *Negotiator) publish(s State) {
	if n.deps.OnUpdate != nil {
		n.deps.OnUpdate(s)
	}
}

func (n *Negotiator) notify(level Level, message string) {
	n.deps.Notifier.Notify(Notification{Level: level, Message: message})
}

// Run consumes quote channel events until ctx is done or the channel closes.
func (n *Negotiator) Run(ctx context.Context) error {
	events := n.deps.Quotes.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			n.handle(ctx, ev)
		}
	}
}

func (n *Negotiator) handle(ctx context.Context, ev quote.Event) {
	switch ev.Type {
	case quote.EventQuote:
		n.onQuote(ev.Quote)
	case quote.EventPaused:
		n.update(func(s *State) { s.Message = "Quotation paused." })
	case quote.EventError:
		n.onError(ev.Error)
	case quote.EventProgress:
		n.onProgress(ctx, ev.Progress)
	case quote.EventFinished:
		n.onFinished(ctx, ev.Result)
	default:
		log.Warn().Str("type", string(ev.Type)).Msg("Unknown quote event")
	}
}

func (n *Negotiator) onQuote(q *types.Quote) {
	if q == nil {
		return
	}
	n.mu.Lock()
	if n.state.InProgress || n.busy || !n.state.IsValid() {
		n.mu.Unlock()
		return
	}
	if err := applyQuote(&n.state, q); err != nil {
		log.Warn().Err(err).Msg("Discarding malformed quote")
		n.mu.Unlock()
		return
	}
	snapshot := n.state.clone()
	n.mu.Unlock()

	log.Debug().
		Str("selling", snapshot.Amount[0]).
		Str("buying", snapshot.Amount[1]).
		Bool("feasible", snapshot.ConversionFeasible).
		Msg("Quote received")
	n.publish(snapshot)
}

func (n *Negotiator) onError(message string) {
	log.Error().Str("error", message).Msg("Broker reported an error")
	settling := false
	n.update(func(s *State) {
		settling = n.busy
		s.InProgress = false
		s.IsFinished = true
		s.ErrorMessage = message
		s.Phase = PhaseFailed
	})
	n.signalDone()
	if !settling {
		n.notify(LevelError, message)
	}
}

func (n *Negotiator) onProgress(ctx context.Context, p *types.ProgressStatus) {
	if p == nil {
		return
	}
	n.mu.Lock()
	prev := n.state.Bought
	n.mu.Unlock()
	if prev == "" {
		prev = "0"
	}
	if amount.Greater(p.Bought, prev) && n.deps.Balances != nil {
		n.deps.Balances.RefreshThrottled(ctx)
	}
	n.update(func(s *State) { s.Bought = p.Bought })
}

func (n *Negotiator) onFinished(ctx context.Context, r *types.TradeResult) {
	if r == nil {
		return
	}
	n.mu.Lock()
	selling, buying := n.state.Asset[0], n.state.Asset[1]
	if q := n.state.Quote; q != nil {
		selling, buying = q.SellingAsset, q.BuyingAsset
	}
	n.mu.Unlock()

	level, message, phase := tradeMessage(r, types.AssetCode(selling), types.AssetCode(buying))
	log.Info().Str("status", string(r.Status)).Str("sold", r.Sold).Str("bought", r.Bought).Msg("Trade finished")
	n.notify(level, message)

	n.mu.Lock()
	n.state.Amount = [2]string{"0", "0"}
	n.undo = nil
	clearDerived(&n.state)
	n.mu.Unlock()
	n.deps.Quotes.Stop()

	n.refreshBalances(ctx)

	n.update(func(s *State) {
		s.InProgress = false
		s.IsFinished = true
		s.Phase = phase
	})
	n.signalDone()
}

func tradeMessage(r *types.TradeResult, selling, buying string) (Level, string, Phase) {
	trade := fmt.Sprintf("%s %s → %s %s", r.Sold, selling, r.Bought, buying)
	switch {
	case r.Status == types.TradeSuccess:
		return LevelSuccess, "Success! Swapped " + trade, PhaseCompleted
	case amount.IsPositive(r.Sold):
		return LevelWarning, "Swap executed partially: " + trade, PhaseCancelled
	default:
		return LevelInfo, "Swap cancelled", PhaseCancelled
	}
}

func (n *Negotiator) refreshBalances(ctx context.Context) {
	if n.deps.Balances == nil {
		return
	}
	if _, err := n.deps.Balances.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to refresh balances")
	}
	n.mu.Lock()
	snapshot := n.state.clone()
	n.mu.Unlock()
	n.publish(snapshot)
}

// signalDone wakes a settlement waiting in finishSwap.
func (n *Negotiator) signalDone() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done != nil {
		close(n.done)
		n.done = nil
	}
}

// Close stops quoting and closes the broker connection.
func (n *Negotiator) Close() error {
	return n.deps.Quotes.Close()
}
