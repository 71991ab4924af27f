package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"broker-swap/pkg/apperror"
	"broker-swap/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "broker-swap",
	Short: "A CLI for non-custodial swaps through StellarBroker",
	Long: `broker-swap quotes and executes asset swaps through the StellarBroker
routing service. Funds move through a short-lived escrow account that is
always swept back to your wallet once the swap ends.

Examples:
  broker-swap connect stellar_wallets
  broker-swap quote 1000 XLM to AQUA-GBNZILSTVQZ4R7IKQDGHYGY2QXL5QOFJYQMXPKWRRM5PAV7Y4M67AQUA
  broker-swap swap 1000 XLM to AQUA-GBNZILSTVQZ4R7IKQDGHYGY2QXL5QOFJYQMXPKWRRM5PAV7Y4M67AQUA --slippage 0.5
  broker-swap balances
  broker-swap recover`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		logger.Configure(verbose, jsonOutput)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\n%s %s\n\n", color.RedString("Error:"), apperror.UserMessage(err))
	if code := apperror.GetCode(err); code != apperror.CodeUnknownError {
		fmt.Printf("  %s\n\n", color.HiBlackString("%s: %v", code, err))
	}
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", color.GreenString(message))
}

func printWarning(message string) {
	fmt.Printf("\n%s\n", color.YellowString(message))
}

func printInfo(message string) {
	fmt.Printf("\n%s\n", color.CyanString(message))
}
