package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"broker-swap/config"
	"broker-swap/pkg/apperror"
	"broker-swap/pkg/mediator"
	"broker-swap/pkg/negotiator"
	"broker-swap/pkg/parser"
)

const recoverAttempts = 3

var (
	swapSlippage float64
	swapFee      string
	noConfirm    bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <selling-asset> to <buying-asset>",
	Short: "Swap assets through StellarBroker",
	Long: `Quote and execute a swap from the connected wallet.

The selling amount is moved into a temporary escrow account which the broker
trades through. Whatever happens, the escrow is swept back to your wallet when
the swap ends, or after a timeout.

Examples:
  broker-swap swap 1000 XLM to AQUA-GBNZILSTVQZ4R7IKQDGHYGY2QXL5QOFJYQMXPKWRRM5PAV7Y4M67AQUA
  broker-swap swap 25 USDC-GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN to XLM --slippage 0.5

  # Skip the confirmation prompt
  broker-swap swap 1000 XLM to AQUA-GBNZ... --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().Float64Var(&swapSlippage, "slippage", -1, "Slippage tolerance in percent (default from config)")
	swapCmd.Flags().StringVar(&swapFee, "fee", "", "Fee tier passed to the broker (default from config)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSwap(cmd *cobra.Command, args []string) {
	swapReq, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	slippage, fee := swapPreferences(cfg)

	sess, err := openSession(cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer sess.close()

	account, err := sess.activeAccount()
	if err != nil {
		printError(err)
		color.Yellow("Connect a wallet first: broker-swap connect stellar_wallets\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	sess.serveMetrics(ctx)

	if sess.recoverObsolete(ctx, account.Address, recoverAttempts) {
		printSuccess("Funds have been returned to your account")
	}

	tracker := sess.balances(account.Address)
	n, err := dialNegotiator(ctx, cfg, negotiator.Deps{
		Wallet:   sess.wallet,
		Balances: tracker,
		Escrows: func(p mediator.Params) negotiator.Escrow {
			return sess.escrows.New(p)
		},
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer n.Close()
	go func() {
		if err := n.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Negotiator stopped")
		}
	}()

	if err := applyRequest(n, swapReq, slippage, fee); err != nil {
		printError(err)
		os.Exit(1)
	}

	state, err := waitForQuote(ctx, n, !jsonOutput)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if !jsonOutput {
		displayQuote(state.Display())
	}
	if !state.ConversionFeasible {
		printError(apperror.New(apperror.CodeQuoteFailed, apperror.WithContext("no executable path for this swap")))
		os.Exit(1)
	}

	if !noConfirm && !jsonOutput {
		if !confirmSwap() {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	err = n.ConfirmSwap(ctx, account.Address)
	final := n.State()

	if jsonOutput {
		output := map[string]interface{}{
			"selling_asset": swapReq.SellingAsset,
			"buying_asset":  swapReq.BuyingAsset,
			"amount":        swapReq.Amount,
			"bought":        final.Bought,
			"error":         final.ErrorMessage,
			"status":        "finished",
		}
		if err != nil {
			output["status"] = string(apperror.GetCode(err))
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
	}

	switch {
	case err == nil:
		if final.ErrorMessage != "" && !jsonOutput {
			color.Red("\nSwap failed: %s\n", final.ErrorMessage)
		}
	case apperror.GetCode(err) == apperror.CodeSettlementTimeout:
		// funds were already sent back
	default:
		if !jsonOutput {
			printError(err)
		}
		os.Exit(1)
	}

	if !jsonOutput {
		displayBalances(account.Address, tracker.Snapshot(), swapReq.SellingAsset, swapReq.BuyingAsset)
	}
}

func swapPreferences(cfg *config.Config) (float64, string) {
	slippage := cfg.Slippage
	if swapSlippage >= 0 {
		slippage = swapSlippage
	}
	fee := cfg.Fee
	if swapFee != "" {
		fee = swapFee
	}
	return slippage, fee
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
