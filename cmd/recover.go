package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"broker-swap/config"
)

var recoverAttemptsFlag int

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Return funds left in escrow accounts by interrupted swaps",
	Long: `Find escrow accounts created by earlier swaps that never finished (for
example after a crash) and sweep their funds back to the connected wallet.

Examples:
  broker-swap recover
  broker-swap recover --attempts 5`,
	Args: cobra.NoArgs,
	Run:  runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)

	recoverCmd.Flags().IntVar(&recoverAttemptsFlag, "attempts", recoverAttempts, "Maximum disposal rounds")
}

func runRecover(cmd *cobra.Command, args []string) {
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

	account, err := sess.activeAccount()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if !sess.recoverObsolete(ctx, account.Address, recoverAttemptsFlag) {
		printInfo("No pending escrow accounts")
		return
	}
	if sess.escrows.HasObsoleteMediators(account.Address) {
		printWarning("Some escrow accounts could not be disposed yet, run recover again later")
		os.Exit(1)
	}

	tracker := sess.balances(account.Address)
	if _, err := tracker.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to refresh balances")
	}
	printSuccess("Funds have been returned to your account")
	displayBalances(account.Address, tracker.Snapshot())
}
