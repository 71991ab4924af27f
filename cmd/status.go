package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"broker-swap/config"
	"broker-swap/pkg/mediator"
	"broker-swap/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connected account and pending escrow accounts",
	Long: `Show the connected wallet and every escrow account that still holds
funds from an unfinished swap. Pending escrow accounts can be swept back with
"broker-swap recover".

Examples:
  broker-swap status
  broker-swap status --json`,
	Args: cobra.NoArgs,
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Load configuration
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

	pending, err := sess.registry.ListObsolete(account.Address)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		// secrets never leave the registry
		type escrow struct {
			ID        string `json:"id"`
			Escrow    string `json:"escrow"`
			Selling   string `json:"sellingAsset"`
			Buying    string `json:"buyingAsset"`
			Amount    string `json:"amount"`
			CreatedAt string `json:"createdAt"`
		}
		out := struct {
			Address  string   `json:"address"`
			Provider string   `json:"provider"`
			Pending  []escrow `json:"pending"`
		}{Address: account.Address, Provider: string(account.Provider), Pending: []escrow{}}
		for _, rec := range pending {
			out.Pending = append(out.Pending, escrow{rec.ID, rec.Escrow, rec.SellingAsset, rec.BuyingAsset, rec.Amount, rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00")})
		}
		jsonData, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayStatus(account.Address, string(account.Provider), pending)
}

func displayStatus(address, provider string, pending []mediator.Record) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        ACCOUNT STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Account:         %s\n", color.CyanString(address))
	fmt.Printf("  Provider:        %s\n", provider)
	fmt.Printf("  Pending escrows: %s\n", getColoredCount(len(pending)))

	for _, rec := range pending {
		fmt.Printf("\n  Escrow:          %s\n", color.HiBlackString(rec.Escrow))
		fmt.Printf("  Swap:            %s %s → %s\n", rec.Amount, types.AssetCode(rec.SellingAsset), types.AssetCode(rec.BuyingAsset))
		fmt.Printf("  Created:         %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if len(pending) > 0 {
		color.Yellow("\n  Run \"broker-swap recover\" to return these funds.")
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredCount(n int) string {
	if n == 0 {
		return color.GreenString("none")
	}
	return color.YellowString("%d", n)
}
