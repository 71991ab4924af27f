package cmd

import (
	"context"
	"time"

	"broker-swap/config"
	"broker-swap/pkg/apperror"
	"broker-swap/pkg/balance"
	"broker-swap/pkg/horizon"
	"broker-swap/pkg/logger"
	"broker-swap/pkg/mediator"
	"broker-swap/pkg/metrics"
	"broker-swap/pkg/wallet"
)

var log = logger.New("cmd")

// session is the explicitly constructed context every command works in. It
// owns the ledger client, the escrow registry and the wallet.
type session struct {
	cfg      *config.Config
	ledger   *horizon.Client
	registry *mediator.Registry
	escrows  *mediator.Factory
	wallet   *wallet.Wallet
}

func openSession(cfg *config.Config) (*session, error) {
	ledger, err := horizon.New(horizon.Config{
		BaseURL:           cfg.HorizonURL,
		Network:           cfg.Network,
		RequestsPerSecond: cfg.LedgerRPS,
	})
	if err != nil {
		return nil, err
	}

	registry, err := mediator.OpenRegistry(cfg.RegistryPath())
	if err != nil {
		return nil, apperror.New(apperror.CodeInternalError, apperror.WithContext("open escrow registry"), apperror.WithCause(err))
	}

	store, err := wallet.NewStore(cfg.AccountPath())
	if err != nil {
		registry.Close()
		return nil, err
	}

	return &session{
		cfg:      cfg,
		ledger:   ledger,
		registry: registry,
		escrows:  mediator.NewFactory(ledger, registry, cfg.FeeReserve),
		wallet:   wallet.New(wallet.Config{Secret: cfg.WalletSecret, ConnectURL: cfg.WalletConnectURL}, store),
	}, nil
}

// activeAccount returns the connected account or WALLET_NOT_CONNECTED.
func (s *session) activeAccount() (*wallet.Account, error) {
	account, err := s.wallet.GetActiveAccount()
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperror.New(apperror.CodeWalletNotConnected)
	}
	return account, nil
}

func (s *session) balances(address string) *balance.Tracker {
	return balance.NewTracker(s.ledger, address, time.Second)
}

// recoverObsolete disposes leftover escrow agents of address, retrying up to
// attempts times. It reports whether anything was recovered.
func (s *session) recoverObsolete(ctx context.Context, address string, attempts int) bool {
	if !s.escrows.HasObsoleteMediators(address) {
		return false
	}
	sign := s.wallet.SignTransaction
	for i := 0; i < attempts && s.escrows.HasObsoleteMediators(address); i++ {
		if err := s.escrows.DisposeObsoleteMediators(ctx, address, sign); err != nil {
			log.Error().Err(err).Int("attempt", i+1).Msg("Failed to dispose obsolete mediators")
		}
	}
	return true
}

// serveMetrics starts the metrics listener when configured.
func (s *session) serveMetrics(ctx context.Context) {
	if s.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, s.cfg.MetricsAddr); err != nil {
			log.Error().Err(err).Str("addr", s.cfg.MetricsAddr).Msg("Metrics listener failed")
		}
	}()
}

func (s *session) close() {
	s.wallet.Close()
	if err := s.registry.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close escrow registry")
	}
}
