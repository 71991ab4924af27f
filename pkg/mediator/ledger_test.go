package mediator

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"

	"broker-swap/pkg/amount"
	"broker-swap/pkg/apperror"
	"broker-swap/pkg/horizon"
	"broker-swap/pkg/types"
)

// memLedger is an in-memory ledger that enforces signatures and sequence
// numbers and applies the operations the mediator builds.
type memLedger struct {
	mu        sync.Mutex
	accounts  map[string]map[string]*big.Int
	seqs      map[string]int64
	submitted []*types.Transaction
	submitErr error
}

func newMemLedger() *memLedger {
	return &memLedger{
		accounts: make(map[string]map[string]*big.Int),
		seqs:     make(map[string]int64),
	}
}

func (l *memLedger) Passphrase() string { return types.NetworkPassphrase("testnet") }

func (l *memLedger) fund(address, asset, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.accounts[address] == nil {
		l.accounts[address] = map[string]*big.Int{}
	}
	s, _ := amount.ToStroops(value)
	l.accounts[address][asset] = s
}

func (l *memLedger) balance(address, asset string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[address]
	if !ok {
		return "", false
	}
	v, ok := acc[asset]
	if !ok {
		return "", false
	}
	return amount.FromStroops(v), true
}

func (l *memLedger) exists(address string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[address]
	return ok
}

func (l *memLedger) LoadAccount(_ context.Context, address string) (*horizon.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[address]
	if !ok {
		return nil, apperror.New(apperror.CodeAccountNotFound, apperror.WithContext(address))
	}
	ids := make([]string, 0, len(acc))
	for id := range acc {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := &horizon.Account{AccountID: address, Sequence: strconv.FormatInt(l.seqs[address], 10)}
	for _, id := range ids {
		b := horizon.Balance{Balance: amount.FromStroops(acc[id])}
		if id == types.NativeCode {
			b.AssetType = "native"
		} else {
			a, _ := types.ParseAsset(id)
			b.AssetType = "credit_alphanum4"
			b.AssetCode, b.AssetIssuer = a.Code, a.Issuer
		}
		out.Balances = append(out.Balances, b)
	}
	return out, nil
}

func (l *memLedger) Submit(_ context.Context, tx *types.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.submitErr != nil {
		return l.submitErr
	}
	if tx.Passphrase() != l.Passphrase() {
		return fmt.Errorf("transaction built for another network")
	}
	if want := l.seqs[tx.Source()] + 1; tx.Sequence() != want {
		return fmt.Errorf("bad sequence %d, want %d", tx.Sequence(), want)
	}
	for _, signer := range tx.Signers() {
		if !tx.SignedBy(signer) {
			return fmt.Errorf("missing signature of %s", signer)
		}
	}

	// apply to a copy so a failing operation rolls the whole transaction back
	next := make(map[string]map[string]*big.Int, len(l.accounts))
	for addr, acc := range l.accounts {
		cp := make(map[string]*big.Int, len(acc))
		for k, v := range acc {
			cp[k] = new(big.Int).Set(v)
		}
		next[addr] = cp
	}

	seqs := make(map[string]int64, len(l.seqs))
	for addr, seq := range l.seqs {
		seqs[addr] = seq
	}
	seqs[tx.Source()] = tx.Sequence()

	for _, op := range tx.Operations() {
		src := op.Source
		if src == "" {
			src = tx.Source()
		}
		if err := apply(next, seqs, src, op); err != nil {
			return err
		}
	}
	l.accounts = next
	l.seqs = seqs
	l.submitted = append(l.submitted, tx)
	return nil
}

func apply(accounts map[string]map[string]*big.Int, seqs map[string]int64, src string, op types.Operation) error {
	from, ok := accounts[src]
	if !ok {
		return fmt.Errorf("source %s does not exist", src)
	}
	value := big.NewInt(0)
	if op.Amount != "" {
		v, err := amount.ToStroops(op.Amount)
		if err != nil {
			return err
		}
		value = v
	}

	switch op.Type {
	case types.OpCreateAccount:
		if _, exists := accounts[op.Destination]; exists {
			return fmt.Errorf("account %s already exists", op.Destination)
		}
		if err := debit(from, types.NativeCode, value); err != nil {
			return err
		}
		accounts[op.Destination] = map[string]*big.Int{types.NativeCode: value}
		seqs[op.Destination] = 100 << 32
	case types.OpChangeTrust:
		if op.Limit != "" && !amount.IsPositive(op.Limit) {
			if v, ok := from[op.Asset]; ok && v.Sign() != 0 {
				return fmt.Errorf("trustline %s has balance", op.Asset)
			}
			delete(from, op.Asset)
		} else if _, ok := from[op.Asset]; !ok {
			from[op.Asset] = big.NewInt(0)
		}
	case types.OpPayment:
		to, ok := accounts[op.Destination]
		if !ok {
			return fmt.Errorf("destination %s does not exist", op.Destination)
		}
		if _, ok := to[op.Asset]; !ok && op.Asset != types.NativeCode {
			return fmt.Errorf("destination has no trustline for %s", op.Asset)
		}
		if err := debit(from, op.Asset, value); err != nil {
			return err
		}
		if to[op.Asset] == nil {
			to[op.Asset] = big.NewInt(0)
		}
		to[op.Asset].Add(to[op.Asset], value)
	case types.OpAccountMerge:
		for asset, v := range from {
			if asset != types.NativeCode && v.Sign() != 0 {
				return fmt.Errorf("cannot merge with %s balance", asset)
			}
		}
		to, ok := accounts[op.Destination]
		if !ok {
			return fmt.Errorf("destination %s does not exist", op.Destination)
		}
		if to[types.NativeCode] == nil {
			to[types.NativeCode] = big.NewInt(0)
		}
		to[types.NativeCode].Add(to[types.NativeCode], from[types.NativeCode])
		delete(accounts, src)
		delete(seqs, src)
	default:
		return fmt.Errorf("unsupported operation %s", op.Type)
	}
	return nil
}

func debit(acc map[string]*big.Int, asset string, value *big.Int) error {
	cur, ok := acc[asset]
	if !ok || cur.Cmp(value) < 0 {
		return fmt.Errorf("insufficient %s balance", asset)
	}
	cur.Sub(cur, value)
	return nil
}
