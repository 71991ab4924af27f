package negotiator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"broker-swap/pkg/apperror"
	"broker-swap/pkg/keypair"
	"broker-swap/pkg/mediator"
	"broker-swap/pkg/metrics"
	"broker-swap/pkg/quote"
	"broker-swap/pkg/types"
)

const (
	noticeSwapping = "Swapping, please do not leave this page"
	noticeTimeout  = "Timed out, your funds will be returned in a few seconds, please wait"
	noticeFailed   = "Failed to execute swap, please try again later"
)

// ConfirmSwap executes the current quote for address and blocks until the
// settlement ends and the escrow agent is disposed. A settlement that does
// not finish in time returns a SETTLEMENT_TIMEOUT error after the funds have
// been sent back.
func (n *Negotiator) ConfirmSwap(ctx context.Context, address string) error {
	n.mu.Lock()
	if !n.state.IsValid() {
		n.mu.Unlock()
		return apperror.New(apperror.CodeInvalidParameters, apperror.WithContext(n.state.ValidationStatus))
	}
	if n.state.InProgress || n.busy {
		n.mu.Unlock()
		return apperror.New(apperror.CodeSwapInProgress)
	}
	n.busy = true
	n.done = make(chan struct{})
	done := n.done
	n.state.IsFinished = false
	n.state.ErrorMessage = ""
	n.state.Bought = ""
	n.state.Phase = PhaseConfirming
	params := mediator.Params{
		Source:       address,
		SellingAsset: n.state.Asset[0],
		BuyingAsset:  n.state.Asset[1],
		Amount:       n.state.Amount[0],
	}
	snapshot := n.state.clone()
	n.mu.Unlock()
	n.publish(snapshot)
	n.deps.Quotes.Hold()

	started := time.Now()
	params.Sign = n.walletSigner()
	escrow := n.deps.Escrows(params)

	if err := n.authorize(ctx, escrow); err != nil {
		log.Error().Err(err).Str("source", address).Msg("Swap confirmation failed")
		n.notify(LevelError, apperror.UserMessage(err))
		metrics.Swap().ObserveSettlement("failed", time.Since(started))
		n.dispose(ctx, escrow)
		n.finishAttempt()
		return err
	}

	return n.finishSwap(ctx, escrow, done, started)
}

// authorize funds the escrow and hands the quote to the broker.
func (n *Negotiator) authorize(ctx context.Context, escrow Escrow) error {
	secret, err := escrow.Init(ctx)
	if err != nil {
		return err
	}
	kp, err := keypair.FromSecret(secret)
	if err != nil {
		return apperror.New(apperror.CodeEscrowInitFailed, apperror.WithCause(err))
	}
	n.update(func(s *State) { s.Phase = PhaseSettling })
	if err := n.deps.Quotes.Confirm(ctx, kp.PublicKey(), escrowSigner(kp)); err != nil {
		return apperror.Wrap(err, apperror.CodeQuoteFailed, "confirm quote")
	}
	return nil
}

// walletSigner asks the wallet to sign escrow transactions on behalf of the
// owner. The first successful signature moves the attempt in progress.
func (n *Negotiator) walletSigner() mediator.TxSigner {
	var authorized atomic.Bool
	return func(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
		if !authorized.Load() {
			n.update(func(s *State) { s.Phase = PhaseConfirming })
		}
		signed, err := n.deps.Wallet.SignTransaction(ctx, tx)
		if err != nil {
			return nil, err
		}
		if authorized.CompareAndSwap(false, true) {
			n.update(func(s *State) {
				s.InProgress = true
				s.Phase = PhaseAuthorizing
			})
			n.notify(LevelInfo, noticeSwapping)
		}
		return signed, nil
	}
}

// escrowSigner signs broker payloads with the escrow key. Transactions are
// signed in place, raw payloads get a detached signature.
func escrowSigner(kp *keypair.Keypair) quote.SignFunc {
	return func(_ context.Context, payload any) (any, error) {
		switch p := payload.(type) {
		case *types.Transaction:
			if err := p.Sign(kp); err != nil {
				return nil, err
			}
			return p, nil
		case []byte:
			return kp.Sign(p)
		default:
			return nil, fmt.Errorf("unsupported payload %T", payload)
		}
	}
}

// finishSwap waits for the terminal event, then disposes the escrow exactly
// once after the dispose delay.
func (n *Negotiator) finishSwap(ctx context.Context, escrow Escrow, done <-chan struct{}, started time.Time) error {
	timeout := time.NewTimer(n.cfg.FinishTimeout)
	defer timeout.Stop()
	poll := time.NewTicker(n.cfg.PollInterval)
	defer poll.Stop()

	var result error
wait:
	for {
		select {
		case <-done:
			break wait
		case <-poll.C:
			if n.State().IsFinished {
				break wait
			}
		case <-timeout.C:
			log.Warn().Dur("timeout", n.cfg.FinishTimeout).Msg("Settlement timed out")
			n.notify(LevelWarning, noticeTimeout)
			result = apperror.New(apperror.CodeSettlementTimeout)
			break wait
		case <-ctx.Done():
			n.notify(LevelWarning, noticeFailed)
			result = ctx.Err()
			break wait
		}
	}

	metrics.Swap().ObserveSettlement(n.outcome(result), time.Since(started))

	if n.cfg.DisposeDelay > 0 {
		time.Sleep(n.cfg.DisposeDelay)
	}
	n.dispose(context.WithoutCancel(ctx), escrow)
	n.finishAttempt()
	return result
}

func (n *Negotiator) outcome(waitErr error) string {
	if apperror.GetCode(waitErr) == apperror.CodeSettlementTimeout {
		return "timeout"
	}
	s := n.State()
	switch {
	case waitErr != nil || s.Phase == PhaseFailed:
		return "failed"
	case s.Phase == PhaseCancelled:
		return "cancelled"
	default:
		return "success"
	}
}

// dispose stops quoting, returns escrow funds and refreshes balances. Errors
// are logged; the agent stays registered for later recovery.
func (n *Negotiator) dispose(ctx context.Context, escrow Escrow) {
	n.deps.Quotes.Stop()
	if err := escrow.Dispose(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to dispose escrow agent")
	}
	n.refreshBalances(ctx)
}

func (n *Negotiator) finishAttempt() {
	n.mu.Lock()
	n.busy = false
	n.done = nil
	n.mu.Unlock()
	n.update(func(s *State) {
		s.InProgress = false
		s.Phase = PhaseReady
	})
}
