package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"broker-swap/pkg/amount"
	"broker-swap/pkg/apperror"
)

const (
	DefaultBrokerURL     = "wss://api.stellar.broker/ws"
	DefaultBrokerAccount = "GBW7T3IVZWUF5AEUYUFG5FXBFJNEJCJYEMCG23NIZI36CNUBOPLDKBPA"
	DefaultHorizonURL    = "https://horizon.stellar.org"
	DefaultExplorerURL   = "https://api.stellar.expert"
)

// Config holds the application configuration
type Config struct {
	BrokerURL     string
	PartnerKey    string
	BrokerAccount string

	HorizonURL  string
	ExplorerURL string
	Network     string
	LedgerRPS   float64

	DataDir          string
	WalletProvider   string
	WalletSecret     string
	WalletConnectURL string

	Slippage   float64
	Fee        string
	FeeReserve string

	QuoteDebounce time.Duration
	FinishTimeout time.Duration
	FinishPoll    time.Duration
	DisposeDelay  time.Duration

	MetricsAddr string
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".broker-swap")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	home, _ := os.UserHomeDir()

	// Set default values
	viper.SetDefault("broker_url", DefaultBrokerURL)
	viper.SetDefault("broker_account", DefaultBrokerAccount)
	viper.SetDefault("horizon_url", DefaultHorizonURL)
	viper.SetDefault("explorer_url", DefaultExplorerURL)
	viper.SetDefault("network", "public")
	viper.SetDefault("ledger_rps", 5)
	viper.SetDefault("data_dir", filepath.Join(home, ".broker-swap"))
	viper.SetDefault("slippage", 1)
	viper.SetDefault("fee", "normal")
	viper.SetDefault("fee_reserve", "5")
	viper.SetDefault("quote_debounce", 800*time.Millisecond)
	viper.SetDefault("finish_timeout", 60*time.Second)
	viper.SetDefault("finish_poll", time.Second)
	viper.SetDefault("dispose_delay", 2*time.Second)

	// Read from environment variables
	viper.SetEnvPrefix("BROKER_SWAP")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		BrokerURL:        viper.GetString("broker_url"),
		PartnerKey:       viper.GetString("partner_key"),
		BrokerAccount:    viper.GetString("broker_account"),
		HorizonURL:       viper.GetString("horizon_url"),
		ExplorerURL:      viper.GetString("explorer_url"),
		Network:          viper.GetString("network"),
		LedgerRPS:        viper.GetFloat64("ledger_rps"),
		DataDir:          viper.GetString("data_dir"),
		WalletProvider:   viper.GetString("wallet_provider"),
		WalletSecret:     viper.GetString("wallet_secret"),
		WalletConnectURL: viper.GetString("wallet_connect_url"),
		Slippage:         viper.GetFloat64("slippage"),
		Fee:              viper.GetString("fee"),
		FeeReserve:       viper.GetString("fee_reserve"),
		QuoteDebounce:    viper.GetDuration("quote_debounce"),
		FinishTimeout:    viper.GetDuration("finish_timeout"),
		FinishPoll:       viper.GetDuration("finish_poll"),
		DisposeDelay:     viper.GetDuration("dispose_delay"),
		MetricsAddr:      viper.GetString("metrics_addr"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperror.New(apperror.CodeConfigurationError, apperror.WithContext(fmt.Sprintf(format, args...)))
	}

	if c.Slippage < 0 || c.Slippage >= 100 {
		return invalid("slippage must be in [0, 100), got %v", c.Slippage)
	}
	if !amount.IsPositive(c.FeeReserve) {
		return invalid("fee_reserve must be positive, got %q", c.FeeReserve)
	}
	if c.LedgerRPS <= 0 {
		return invalid("ledger_rps must be positive, got %v", c.LedgerRPS)
	}
	for name, d := range map[string]time.Duration{
		"quote_debounce": c.QuoteDebounce,
		"finish_timeout": c.FinishTimeout,
		"finish_poll":    c.FinishPoll,
		"dispose_delay":  c.DisposeDelay,
	} {
		if d <= 0 {
			return invalid("%s must be positive, got %v", name, d)
		}
	}
	if c.BrokerURL == "" || c.HorizonURL == "" {
		return invalid("broker_url and horizon_url are required")
	}
	return nil
}

// RegistryPath is the bbolt file holding escrow agents.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "mediators.db")
}

// AccountPath is the file holding the active account.
func (c *Config) AccountPath() string {
	return filepath.Join(c.DataDir, "account.json")
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
