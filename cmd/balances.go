package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"broker-swap/config"
	"broker-swap/pkg/balance"
	"broker-swap/pkg/types"
)

var balancesAccount string

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Show the balances of the connected account",
	Long: `Show every balance line of the connected account, or of --account.

Examples:
  broker-swap balances
  broker-swap balances --account GB...`,
	Args: cobra.NoArgs,
	Run:  runBalances,
}

func init() {
	rootCmd.AddCommand(balancesCmd)

	balancesCmd.Flags().StringVar(&balancesAccount, "account", "", "Account to inspect instead of the connected one")
}

func runBalances(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

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

	address := balancesAccount
	if address == "" {
		account, err := sess.activeAccount()
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		address = account.Address
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Loading balances..."
		s.Start()
	}
	tracker := sess.balances(address)
	snapshot, err := tracker.Refresh(context.Background())
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(snapshot, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayBalances(address, snapshot)
}

// displayBalances prints the snapshot. When only is set, other assets are
// skipped.
func displayBalances(address string, snapshot balance.Snapshot, only ...string) {
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		if len(only) > 0 && !slices.Contains(only, id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		// native first
		if ids[i] == types.NativeCode || ids[j] == types.NativeCode {
			return ids[i] == types.NativeCode
		}
		return ids[i] < ids[j]
	})

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        BALANCES")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n  Account: %s\n\n", color.CyanString(address))

	if len(ids) == 0 {
		fmt.Println("  No balances found")
	}
	for _, id := range ids {
		b := snapshot[id]
		label := types.AssetCode(id)
		if b.IsLiquidityPoolShare {
			label = "pool " + id[:min(8, len(id))]
		}
		fmt.Printf("  %-14s %s\n", color.YellowString(label), b.Balance)
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
