package types

import (
	"errors"
	"fmt"

	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"

	"broker-swap/pkg/keypair"
)

// OperationType enumerates the ledger operations the client builds.
type OperationType string

const (
	OpCreateAccount OperationType = "create_account"
	OpPayment       OperationType = "payment"
	OpChangeTrust   OperationType = "change_trust"
	OpAccountMerge  OperationType = "account_merge"
)

const (
	// BaseFee is the per-operation fee offered, in stroops.
	BaseFee int64 = 10000
	// TxTimeout bounds how long a built transaction stays valid, in seconds.
	TxTimeout int64 = 300
)

// Operation is a single ledger instruction. Source defaults to the
// transaction source when empty. An empty Limit on a trustline change means
// the maximum limit; "0" removes the trustline.
type Operation struct {
	Type        OperationType `json:"type"`
	Source      string        `json:"source,omitempty"`
	Destination string        `json:"destination,omitempty"`
	Asset       string        `json:"asset,omitempty"`
	Amount      string        `json:"amount,omitempty"`
	Limit       string        `json:"limit,omitempty"`
}

var ErrInvalidEnvelope = errors.New("invalid transaction envelope")

// NetworkPassphrase maps a network name to its passphrase. Unknown names are
// taken as a passphrase of a private network.
func NetworkPassphrase(name string) string {
	switch name {
	case "", "public", "pubnet", "mainnet":
		return network.PublicNetworkPassphrase
	case "testnet", "test":
		return network.TestNetworkPassphrase
	default:
		return name
	}
}

// TxParams describes a transaction to build.
type TxParams struct {
	// Passphrase of the network the transaction is signed for.
	Passphrase string
	Source     string
	// Sequence is the current sequence number of Source. The transaction
	// uses the next one.
	Sequence   int64
	Memo       string
	Operations []Operation
}

// Transaction is an unsigned or partially signed ledger transaction bound to
// a network passphrase.
type Transaction struct {
	passphrase string
	tx         *txnbuild.Transaction
}

// NewTransaction builds a transaction envelope from p.
func NewTransaction(p TxParams) (*Transaction, error) {
	if p.Passphrase == "" {
		return nil, errors.New("network passphrase is required")
	}
	ops := make([]txnbuild.Operation, 0, len(p.Operations))
	for i, op := range p.Operations {
		built, err := op.build()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, built)
	}

	params := txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: p.Source, Sequence: p.Sequence},
		IncrementSequenceNum: true,
		Operations:           ops,
		BaseFee:              BaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(TxTimeout)},
	}
	if p.Memo != "" {
		params.Memo = txnbuild.MemoText(p.Memo)
	}

	tx, err := txnbuild.NewTransaction(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return &Transaction{passphrase: p.Passphrase, tx: tx}, nil
}

// ParseEnvelope decodes a base64 XDR transaction envelope signed for the
// network with the given passphrase.
func ParseEnvelope(passphrase, envelope string) (*Transaction, error) {
	generic, err := txnbuild.TransactionFromXDR(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return nil, fmt.Errorf("%w: fee bump transactions are not supported", ErrInvalidEnvelope)
	}
	if len(tx.Operations()) == 0 {
		return nil, fmt.Errorf("%w: no operations", ErrInvalidEnvelope)
	}
	return &Transaction{passphrase: passphrase, tx: tx}, nil
}

// Passphrase returns the network passphrase the transaction is bound to.
func (t *Transaction) Passphrase() string {
	return t.passphrase
}

// Source returns the transaction source account.
func (t *Transaction) Source() string {
	return t.tx.SourceAccount().AccountID
}

// Sequence returns the sequence number the transaction consumes.
func (t *Transaction) Sequence() int64 {
	return t.tx.SourceAccount().Sequence
}

// Operations describes the transaction operations.
func (t *Transaction) Operations() []Operation {
	ops := make([]Operation, 0, len(t.tx.Operations()))
	for _, op := range t.tx.Operations() {
		ops = append(ops, operationFrom(op))
	}
	return ops
}

// Hash is the digest every signer commits to.
func (t *Transaction) Hash() ([32]byte, error) {
	return t.tx.Hash(t.passphrase)
}

// Sign adds a signature made with kp.
func (t *Transaction) Sign(kp *keypair.Keypair) error {
	signed, err := t.tx.Sign(t.passphrase, kp.Full())
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	t.tx = signed
	return nil
}

// SignedBy reports whether a valid signature from address is attached.
func (t *Transaction) SignedBy(address string) bool {
	hash, err := t.Hash()
	if err != nil {
		return false
	}
	for _, sig := range t.tx.Signatures() {
		if keypair.Verify(address, hash[:], sig.Signature) {
			return true
		}
	}
	return false
}

// Signers lists every account whose signature the transaction needs.
func (t *Transaction) Signers() []string {
	source := t.Source()
	seen := map[string]bool{source: true}
	signers := []string{source}
	for _, op := range t.tx.Operations() {
		if s := op.GetSourceAccount(); s != "" && !seen[s] {
			seen[s] = true
			signers = append(signers, s)
		}
	}
	return signers
}

// Envelope encodes the transaction with its signatures as base64 XDR.
func (t *Transaction) Envelope() (string, error) {
	env, err := t.tx.Base64()
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	return env, nil
}

func (op Operation) build() (txnbuild.Operation, error) {
	switch op.Type {
	case OpCreateAccount:
		return &txnbuild.CreateAccount{Destination: op.Destination, Amount: op.Amount, SourceAccount: op.Source}, nil
	case OpPayment:
		asset, err := ledgerAsset(op.Asset)
		if err != nil {
			return nil, err
		}
		return &txnbuild.Payment{Destination: op.Destination, Amount: op.Amount, Asset: asset, SourceAccount: op.Source}, nil
	case OpChangeTrust:
		asset, err := ledgerAsset(op.Asset)
		if err != nil {
			return nil, err
		}
		if asset.IsNative() {
			return nil, errors.New("cannot change trust in the native asset")
		}
		line, err := asset.ToChangeTrustAsset()
		if err != nil {
			return nil, err
		}
		return &txnbuild.ChangeTrust{Line: line, Limit: op.Limit, SourceAccount: op.Source}, nil
	case OpAccountMerge:
		return &txnbuild.AccountMerge{Destination: op.Destination, SourceAccount: op.Source}, nil
	default:
		return nil, fmt.Errorf("unsupported operation %q", op.Type)
	}
}

func operationFrom(op txnbuild.Operation) Operation {
	switch o := op.(type) {
	case *txnbuild.CreateAccount:
		return Operation{Type: OpCreateAccount, Source: o.SourceAccount, Destination: o.Destination, Amount: o.Amount}
	case *txnbuild.Payment:
		return Operation{Type: OpPayment, Source: o.SourceAccount, Destination: o.Destination, Asset: assetID(o.Asset), Amount: o.Amount}
	case *txnbuild.ChangeTrust:
		return Operation{Type: OpChangeTrust, Source: o.SourceAccount, Asset: assetID(o.Line), Limit: o.Limit}
	case *txnbuild.AccountMerge:
		return Operation{Type: OpAccountMerge, Source: o.SourceAccount, Destination: o.Destination}
	default:
		return Operation{Type: OperationType(fmt.Sprintf("%T", op)), Source: op.GetSourceAccount()}
	}
}

func ledgerAsset(id string) (txnbuild.Asset, error) {
	a, err := ParseAsset(id)
	if err != nil {
		return nil, err
	}
	if a.IsNative() {
		return txnbuild.NativeAsset{}, nil
	}
	return txnbuild.CreditAsset{Code: a.Code, Issuer: a.Issuer}, nil
}

func assetID(a txnbuild.BasicAsset) string {
	if a == nil || a.IsNative() {
		return NativeCode
	}
	return Asset{Code: a.GetCode(), Issuer: a.GetIssuer()}.String()
}
