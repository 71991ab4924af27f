package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"broker-swap/config"
	"broker-swap/pkg/explorer"
	"broker-swap/pkg/types"
)

var (
	assetSearch string
	assetLimit  int
)

var assetsCmd = &cobra.Command{
	Use:     "assets",
	Aliases: []string{"list-assets", "ls"},
	Short:   "List tradable assets",
	Long: `List the top rated assets known to the explorer, with the identifiers
to use in swap and quote commands.

Examples:
  broker-swap assets
  broker-swap assets --search usdc
  broker-swap assets --limit 50`,
	Run: runListAssets,
}

func init() {
	rootCmd.AddCommand(assetsCmd)

	assetsCmd.Flags().StringVar(&assetSearch, "search", "", "Filter by code, issuer or domain")
	assetsCmd.Flags().IntVar(&assetLimit, "limit", 20, "Maximum number of assets")
}

func runListAssets(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	apiClient := explorer.New(cfg.ExplorerURL, cfg.Network)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching assets..."
		s.Start()
	}

	assets, err := apiClient.ListAssets(context.Background(), assetSearch, assetLimit)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(assets, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayAssets(assets)
	}
}

func displayAssets(assets []explorer.AssetInfo) {
	if len(assets) == 0 {
		fmt.Println("\nNo assets found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                               ASSETS")
	fmt.Println(strings.Repeat("=", 90))

	// Group assets by home domain
	byDomain := make(map[string][]explorer.AssetInfo)
	for _, a := range assets {
		domain := a.Domain
		if domain == "" {
			domain = "unknown domain"
		}
		byDomain[domain] = append(byDomain[domain], a)
	}

	domains := make([]string, 0, len(byDomain))
	for domain := range byDomain {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	for _, domain := range domains {
		color.Cyan("\n%s", domain)
		fmt.Println(strings.Repeat("-", 90))

		for _, a := range byDomain[domain] {
			id := a.Asset
			// explorer ids carry a type suffix, the broker does not need it
			if parsed, err := types.ParseAsset(id); err == nil {
				id = parsed.String()
			}
			fmt.Printf("  %-12s  rating %4.1f  %s\n",
				color.YellowString(types.AssetCode(id)),
				a.Rating.Average,
				color.HiBlackString(id))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d assets\n\n", len(assets))
}
