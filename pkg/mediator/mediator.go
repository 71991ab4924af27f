// Package mediator manages the ephemeral escrow accounts that custody funds
// while the broker executes a swap.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"broker-swap/pkg/amount"
	"broker-swap/pkg/apperror"
	"broker-swap/pkg/horizon"
	"broker-swap/pkg/keypair"
	"broker-swap/pkg/logger"
	"broker-swap/pkg/metrics"
	"broker-swap/pkg/types"
)

const tracerName = "broker-swap/mediator"

var log = logger.New("mediator")

// Ledger is the ledger API the mediator needs.
type Ledger interface {
	LoadAccount(ctx context.Context, address string) (*horizon.Account, error)
	Submit(ctx context.Context, tx *types.Transaction) error
	Passphrase() string
}

// TxSigner asks the owner's wallet to sign tx.
type TxSigner func(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)

// Params describes the swap an escrow agent is created for.
type Params struct {
	Source       string
	SellingAsset string
	BuyingAsset  string
	Amount       string
	Sign         TxSigner
}

// Factory creates mediators and recovers obsolete ones.
type Factory struct {
	ledger     Ledger
	registry   *Registry
	feeReserve string
}

// NewFactory creates a factory. feeReserve is the native amount locked in
// each escrow account to pay for its own transactions.
func NewFactory(ledger Ledger, registry *Registry, feeReserve string) *Factory {
	return &Factory{ledger: ledger, registry: registry, feeReserve: feeReserve}
}

// New creates an uninitialized mediator.
func (f *Factory) New(p Params) *Mediator {
	return &Mediator{
		params:     p,
		ledger:     f.ledger,
		registry:   f.registry,
		feeReserve: f.feeReserve,
		tracer:     otel.Tracer(tracerName),
		metrics:    metrics.Swap(),
		kind:       "live",
	}
}

// HasObsoleteMediators reports whether source has escrow agents left over
// from an earlier session.
func (f *Factory) HasObsoleteMediators(source string) bool {
	recs, err := f.registry.ListObsolete(source)
	if err != nil {
		log.Error().Err(err).Str("source", source).Msg("Failed to list obsolete mediators")
		return false
	}
	return len(recs) > 0
}

// DisposeObsoleteMediators disposes every obsolete agent of source. It keeps
// going past failures and returns them joined.
func (f *Factory) DisposeObsoleteMediators(ctx context.Context, source string, sign TxSigner) error {
	recs, err := f.registry.ListObsolete(source)
	if err != nil {
		return apperror.New(apperror.CodeEscrowDisposeFailed, apperror.WithContext(source), apperror.WithCause(err))
	}

	var errs []error
	for _, rec := range recs {
		m, err := f.restore(rec, sign)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := m.Dispose(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Info().Str("escrow", rec.Escrow).Str("source", source).Msg("Obsolete mediator disposed")
	}
	return errors.Join(errs...)
}

func (f *Factory) restore(rec Record, sign TxSigner) (*Mediator, error) {
	kp, err := keypair.FromSecret(rec.Secret)
	if err != nil {
		return nil, apperror.New(apperror.CodeEscrowDisposeFailed, apperror.WithContext(rec.Escrow), apperror.WithCause(err))
	}
	m := f.New(Params{
		Source:       rec.Source,
		SellingAsset: rec.SellingAsset,
		BuyingAsset:  rec.BuyingAsset,
		Amount:       rec.Amount,
		Sign:         sign,
	})
	m.kp = kp
	m.record = &rec
	m.kind = "obsolete"
	f.registry.MarkLive(rec.Escrow)
	return m, nil
}

// Mediator is a single escrow agent.
type Mediator struct {
	params     Params
	ledger     Ledger
	registry   *Registry
	feeReserve string
	tracer     trace.Tracer
	metrics    *metrics.SwapMetrics
	kind       string

	mu       sync.Mutex
	kp       *keypair.Keypair
	record   *Record
	disposed bool
}

// EscrowAddress returns the escrow account, or "" before Init.
func (m *Mediator) EscrowAddress() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kp == nil {
		return ""
	}
	return m.kp.PublicKey()
}

// Init creates and funds the escrow account and returns its secret. The
// secret is persisted before any funds move.
func (m *Mediator) Init(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.kp != nil {
		return "", apperror.New(apperror.CodeEscrowInitFailed, apperror.WithContext("already initialized"))
	}
	if !keypair.IsValidPublicKey(m.params.Source) {
		return "", apperror.New(apperror.CodeEscrowInitFailed, apperror.WithContext("invalid source account "+m.params.Source))
	}
	if !amount.IsPositive(m.params.Amount) {
		return "", apperror.New(apperror.CodeEscrowInitFailed, apperror.WithContext("amount must be positive"))
	}
	if m.params.Sign == nil {
		return "", apperror.New(apperror.CodeEscrowInitFailed, apperror.WithContext("no signer"))
	}

	ctx, span := m.tracer.Start(ctx, "mediator.init", trace.WithAttributes(
		attribute.String("source", m.params.Source),
		attribute.String("selling", m.params.SellingAsset),
		attribute.String("buying", m.params.BuyingAsset),
	))
	defer span.End()

	kp, err := keypair.Random()
	if err != nil {
		return "", apperror.New(apperror.CodeEscrowInitFailed, apperror.WithCause(err))
	}

	rec := Record{
		ID:           uuid.NewString(),
		Source:       m.params.Source,
		Escrow:       kp.PublicKey(),
		Secret:       kp.Secret(),
		SellingAsset: m.params.SellingAsset,
		BuyingAsset:  m.params.BuyingAsset,
		Amount:       m.params.Amount,
		FeeReserve:   m.feeReserve,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.registry.Put(rec); err != nil {
		return "", apperror.New(apperror.CodeEscrowInitFailed, apperror.WithContext("persist escrow"), apperror.WithCause(err))
	}
	m.registry.MarkLive(rec.Escrow)

	fail := func(err error, submitted bool) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "init failed")
		if submitted {
			// funding may have landed; keep the record for Dispose
			m.kp = kp
			m.record = &rec
		} else {
			_ = m.registry.Delete(rec.Source, rec.Escrow)
			m.registry.Release(rec.Escrow)
		}
		return "", apperror.Wrap(err, apperror.CodeEscrowInitFailed, rec.Escrow)
	}

	tx, err := m.fundingTx(ctx, kp.PublicKey())
	if err != nil {
		return fail(err, false)
	}
	if err := tx.Sign(kp); err != nil {
		return fail(err, false)
	}
	signed, err := m.params.Sign(ctx, tx)
	if err != nil {
		return fail(err, false)
	}
	if signed == nil || !signed.SignedBy(m.params.Source) {
		return fail(apperror.New(apperror.CodeSigningFailed), false)
	}
	if err := m.ledger.Submit(ctx, signed); err != nil {
		return fail(err, true)
	}

	m.kp = kp
	m.record = &rec
	log.Info().Str("escrow", rec.Escrow).Str("source", rec.Source).Msg("Escrow account funded")
	return kp.Secret(), nil
}

func (m *Mediator) fundingTx(ctx context.Context, escrow string) (*types.Transaction, error) {
	owner, err := m.ledger.LoadAccount(ctx, m.params.Source)
	if err != nil {
		return nil, err
	}
	seq, err := owner.SequenceNumber()
	if err != nil {
		return nil, err
	}

	ops := []types.Operation{
		{Type: types.OpCreateAccount, Destination: escrow, Amount: m.feeReserve},
	}
	for _, asset := range []string{m.params.SellingAsset, m.params.BuyingAsset} {
		if asset != types.NativeCode {
			ops = append(ops, types.Operation{Type: types.OpChangeTrust, Source: escrow, Asset: asset})
		}
	}
	ops = append(ops, types.Operation{
		Type:        types.OpPayment,
		Destination: escrow,
		Asset:       m.params.SellingAsset,
		Amount:      m.params.Amount,
	})
	return types.NewTransaction(types.TxParams{
		Passphrase: m.ledger.Passphrase(),
		Source:     m.params.Source,
		Sequence:   seq,
		Memo:       "broker escrow",
		Operations: ops,
	})
}

// Dispose returns everything held by the escrow to its owner and forgets the
// escrow key. It is safe to call more than once and on agents that never got
// funded.
func (m *Mediator) Dispose(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return nil
	}
	if m.kp == nil {
		m.disposed = true
		return nil
	}

	ctx, span := m.tracer.Start(ctx, "mediator.dispose", trace.WithAttributes(
		attribute.String("escrow", m.record.Escrow),
		attribute.String("kind", m.kind),
	))
	defer span.End()

	err := m.returnFunds(ctx)
	m.metrics.ObserveEscrowDisposal(m.kind, err)
	m.registry.Release(m.record.Escrow)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispose failed")
		log.Error().Err(err).Str("escrow", m.record.Escrow).Msg("Failed to dispose escrow, it stays registered for recovery")
		return apperror.Wrap(err, apperror.CodeEscrowDisposeFailed, m.record.Escrow)
	}

	if err := m.registry.Delete(m.record.Source, m.record.Escrow); err != nil {
		log.Warn().Err(err).Str("escrow", m.record.Escrow).Msg("Failed to delete mediator record")
	}
	m.disposed = true
	return nil
}

func (m *Mediator) returnFunds(ctx context.Context) error {
	escrow, source := m.record.Escrow, m.record.Source

	account, err := m.ledger.LoadAccount(ctx, escrow)
	if apperror.GetCode(err) == apperror.CodeAccountNotFound {
		log.Debug().Str("escrow", escrow).Msg("Escrow account does not exist, nothing to return")
		return nil
	}
	if err != nil {
		return err
	}

	owner, err := m.ledger.LoadAccount(ctx, source)
	if err != nil {
		return fmt.Errorf("load owner account: %w", err)
	}

	var ops []types.Operation
	needsOwner := false
	for _, b := range account.Balances {
		if b.AssetType == "native" || b.IsLiquidityPoolShare() {
			continue
		}
		asset := b.AssetID()
		if amount.IsPositive(b.Balance) {
			if _, ok := owner.Find(asset); !ok {
				ops = append(ops, types.Operation{Type: types.OpChangeTrust, Source: source, Asset: asset})
				needsOwner = true
			}
			ops = append(ops, types.Operation{Type: types.OpPayment, Destination: source, Asset: asset, Amount: b.Balance})
		}
		ops = append(ops, types.Operation{Type: types.OpChangeTrust, Asset: asset, Limit: "0"})
	}
	ops = append(ops, types.Operation{Type: types.OpAccountMerge, Destination: source})

	seq, err := account.SequenceNumber()
	if err != nil {
		return err
	}
	tx, err := types.NewTransaction(types.TxParams{
		Passphrase: m.ledger.Passphrase(),
		Source:     escrow,
		Sequence:   seq,
		Memo:       "broker escrow return",
		Operations: ops,
	})
	if err != nil {
		return err
	}
	if err := tx.Sign(m.kp); err != nil {
		return err
	}
	if needsOwner {
		if m.params.Sign == nil {
			return errors.New("owner signature required to restore trustlines")
		}
		signed, err := m.params.Sign(ctx, tx)
		if err != nil {
			return err
		}
		tx = signed
	}

	if err := m.ledger.Submit(ctx, tx); err != nil {
		return err
	}
	log.Info().Str("escrow", escrow).Str("source", source).Int("operations", len(ops)).Msg("Escrow funds returned")
	return nil
}
