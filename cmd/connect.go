package cmd

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"broker-swap/config"
	"broker-swap/pkg/wallet"
)

var connectCmd = &cobra.Command{
	Use:   "connect [provider]",
	Short: "Connect a wallet",
	Long: `Connect a wallet and remember it for later commands.

Providers:
  stellar_wallets   local keystore, secret from BROKER_SWAP_WALLET_SECRET
  wallet_connect    remote wallet session at BROKER_SWAP_WALLET_CONNECT_URL

Without an argument the provider from the wallet_provider setting is used.

Examples:
  broker-swap connect stellar_wallets
  broker-swap connect wallet_connect`,
	Args: cobra.MaximumNArgs(1),
	Run:  runConnect,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the connected wallet",
	Args:  cobra.NoArgs,
	Run:   runDisconnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
}

func runConnect(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	id := cfg.WalletProvider
	if len(args) == 1 {
		id = args[0]
	}
	provider, err := wallet.ParseProvider(id)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	sess, err := openSession(cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer sess.close()

	account, err := sess.wallet.Connect(context.Background(), provider)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	printSuccess(wallet.ConnectedMessage)
	color.Cyan("  Account:  %s", account.Address)
	color.Cyan("  Provider: %s\n", account.Provider)
}

func runDisconnect(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	sess, err := openSession(cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer sess.close()

	if err := sess.wallet.Disconnect(); err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess("Wallet disconnected")
}
