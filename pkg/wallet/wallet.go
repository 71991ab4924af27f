// Package wallet is the signing port used to authorize swaps. A wallet is
// backed by one of two providers, chosen at runtime by the stored provider id.
package wallet

import (
	"context"
	"sync"

	"broker-swap/pkg/apperror"
	"broker-swap/pkg/keypair"
	"broker-swap/pkg/logger"
	"broker-swap/pkg/types"
)

// ConnectedMessage is shown once a wallet has been connected.
const ConnectedMessage = "Great! Now you can swap with StellarBroker!"

var log = logger.New("wallet")

// Provider identifies a wallet backend.
type Provider string

const (
	ProviderWalletConnect  Provider = "wallet_connect"
	ProviderStellarWallets Provider = "stellar_wallets"
)

// ParseProvider validates a provider id.
func ParseProvider(id string) (Provider, error) {
	switch p := Provider(id); p {
	case ProviderWalletConnect, ProviderStellarWallets:
		return p, nil
	default:
		return "", apperror.New(apperror.CodeUnknownWalletProvider, apperror.WithContext(id))
	}
}

// Config configures both providers.
type Config struct {
	// Secret of the local keystore used by stellar_wallets.
	Secret string
	// ConnectURL is the JSON-RPC endpoint of the wallet_connect session.
	ConnectURL string
}

// Wallet connects, restores and signs through the active provider.
type Wallet struct {
	cfg   Config
	store *Store

	mu      sync.Mutex
	account *Account
	local   *keystore
	remote  *remoteSession
}

// New creates a disconnected wallet.
func New(cfg Config, store *Store) *Wallet {
	return &Wallet{cfg: cfg, store: store}
}

// Connect opens provider, persists the resulting account and returns it.
func (w *Wallet) Connect(ctx context.Context, provider Provider) (*Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		account *Account
		err     error
	)
	switch provider {
	case ProviderStellarWallets:
		var ks *keystore
		ks, err = openKeystore(w.cfg.Secret)
		if err == nil {
			w.local = ks
			account = &Account{Address: ks.address(), Provider: provider}
		}
	case ProviderWalletConnect:
		var rs *remoteSession
		rs, err = dialRemote(ctx, w.cfg.ConnectURL)
		if err == nil {
			var res ConnectResult
			res, err = rs.connect(ctx)
			if err != nil {
				rs.close()
			} else {
				w.remote = rs
				account = &Account{Address: res.Address, Session: res.Session, Provider: provider}
			}
		}
	default:
		return nil, apperror.New(apperror.CodeUnknownWalletProvider, apperror.WithContext(string(provider)))
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeWalletNotConnected, string(provider))
	}
	if !keypair.IsValidPublicKey(account.Address) {
		return nil, apperror.New(apperror.CodeWalletNotConnected, apperror.WithContext("invalid address "+account.Address))
	}

	if err := w.store.Save(account); err != nil {
		return nil, apperror.New(apperror.CodeInternalError, apperror.WithCause(err))
	}
	w.account = account
	log.Info().Str("provider", string(provider)).Str("address", account.Address).Msg("Wallet connected")
	return account, nil
}

// GetActiveAccount returns the connected account, restoring it from the store
// on first use. It returns nil when no valid account is stored.
func (w *Wallet) GetActiveAccount() (*Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.account != nil {
		return w.account, nil
	}
	account, err := w.store.Load()
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	if _, err := ParseProvider(string(account.Provider)); err != nil {
		log.Warn().Str("provider", string(account.Provider)).Msg("Stored account has an unknown provider")
		return nil, nil
	}
	if !keypair.IsValidPublicKey(account.Address) {
		log.Warn().Str("address", account.Address).Msg("Stored account address is invalid")
		return nil, nil
	}
	w.account = account
	return account, nil
}

// SignTransaction signs tx with the active account.
func (w *Wallet) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	account, err := w.GetActiveAccount()
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperror.New(apperror.CodeWalletNotConnected)
	}

	var signed *types.Transaction
	switch account.Provider {
	case ProviderStellarWallets:
		ks, err := w.keystore()
		if err != nil {
			return nil, err
		}
		signed, err = ks.sign(tx)
		if err != nil {
			return nil, apperror.New(apperror.CodeSigningFailed, apperror.WithCause(err))
		}
	case ProviderWalletConnect:
		rs, err := w.session(ctx)
		if err != nil {
			return nil, err
		}
		signed, err = rs.signXDR(ctx, account.Session, tx)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeSigningFailed, "")
		}
	default:
		return nil, apperror.New(apperror.CodeUnknownWalletProvider, apperror.WithContext(string(account.Provider)))
	}

	if signed == nil || !signed.SignedBy(account.Address) {
		return nil, apperror.New(apperror.CodeSigningFailed)
	}
	return signed, nil
}

func (w *Wallet) keystore() (*keystore, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.local == nil {
		ks, err := openKeystore(w.cfg.Secret)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeWalletNotConnected, string(ProviderStellarWallets))
		}
		w.local = ks
	}
	return w.local, nil
}

func (w *Wallet) session(ctx context.Context) (*remoteSession, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.remote == nil {
		rs, err := dialRemote(ctx, w.cfg.ConnectURL)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeWalletNotConnected, string(ProviderWalletConnect))
		}
		w.remote = rs
	}
	return w.remote, nil
}

// Disconnect forgets the active account.
func (w *Wallet) Disconnect() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.account = nil
	w.local = nil
	if w.remote != nil {
		w.remote.close()
		w.remote = nil
	}
	return w.store.Clear()
}

// Close releases the remote session, if any.
func (w *Wallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.remote != nil {
		w.remote.close()
		w.remote = nil
	}
}
