package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"broker-swap/config"
	"broker-swap/pkg/negotiator"
	"broker-swap/pkg/parser"
)

var (
	watchQuote    bool
	quoteSlippage float64
	quoteFee      string
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <selling-asset> to <buying-asset>",
	Short: "Get a swap quote without executing it",
	Long: `Ask the broker for a quote. With --watch the quote is re-printed every
time the broker updates it, until interrupted.

Examples:
  broker-swap quote 1000 XLM to AQUA-GBNZILSTVQZ4R7IKQDGHYGY2QXL5QOFJYQMXPKWRRM5PAV7Y4M67AQUA
  broker-swap quote 1000 XLM to AQUA-GBNZ... --watch`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().BoolVarP(&watchQuote, "watch", "w", false, "Keep printing quote updates")
	quoteCmd.Flags().Float64Var(&quoteSlippage, "slippage", -1, "Slippage tolerance in percent (default from config)")
	quoteCmd.Flags().StringVar(&quoteFee, "fee", "", "Fee tier passed to the broker (default from config)")
}

func runQuote(cmd *cobra.Command, args []string) {
	swapReq, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	slippage, fee := cfg.Slippage, cfg.Fee
	if quoteSlippage >= 0 {
		slippage = quoteSlippage
	}
	if quoteFee != "" {
		fee = quoteFee
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	updates := make(chan negotiator.State, 1)
	n, err := dialNegotiator(ctx, cfg, negotiator.Deps{
		OnUpdate: func(s negotiator.State) {
			if !watchQuote || !s.PathLoaded {
				return
			}
			select {
			case updates <- s:
			default:
			}
		},
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer n.Close()
	go n.Run(ctx)

	if err := applyRequest(n, swapReq, slippage, fee); err != nil {
		printError(err)
		os.Exit(1)
	}

	if watchQuote {
		if jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		fmt.Printf("\nWatching quotes for %s %s → %s. Press Ctrl+C to stop.\n",
			swapReq.Amount, color.YellowString(swapReq.SellingAsset), color.YellowString(swapReq.BuyingAsset))
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-updates:
				displayQuote(s.Display())
			}
		}
	}

	state, err := waitForQuote(ctx, n, !jsonOutput)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if jsonOutput {
		jsonData, _ := json.MarshalIndent(state.Display(), "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayQuote(state.Display())
}
