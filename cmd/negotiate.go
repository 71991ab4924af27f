package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"broker-swap/config"
	"broker-swap/pkg/apperror"
	"broker-swap/pkg/client"
	"broker-swap/pkg/negotiator"
	"broker-swap/pkg/quote"
	"broker-swap/pkg/types"
)

const quoteWaitTimeout = 30 * time.Second

// dialNegotiator connects to the broker and wraps it in a negotiator. The
// caller runs the returned negotiator and closes it.
func dialNegotiator(ctx context.Context, cfg *config.Config, deps negotiator.Deps) (*negotiator.Negotiator, error) {
	broker := client.NewBrokerClient(client.Config{
		URL:        cfg.BrokerURL,
		PartnerKey: cfg.PartnerKey,
		Account:    cfg.BrokerAccount,
		Passphrase: types.NetworkPassphrase(cfg.Network),
	})
	if err := broker.Connect(ctx); err != nil {
		return nil, err
	}

	deps.Quotes = quote.NewChannel(broker, cfg.QuoteDebounce)
	if deps.Notifier == nil {
		deps.Notifier = negotiator.NotifierFunc(printNotification)
	}
	return negotiator.New(deps, negotiator.Config{
		Slippage:      cfg.Slippage,
		Fee:           cfg.Fee,
		FinishTimeout: cfg.FinishTimeout,
		PollInterval:  cfg.FinishPoll,
		DisposeDelay:  cfg.DisposeDelay,
	}), nil
}

// applyRequest pushes the parsed swap into the negotiator.
func applyRequest(n *negotiator.Negotiator, req *types.SwapRequest, slippage float64, fee string) error {
	if err := n.SetSlippage(slippage); err != nil {
		return err
	}
	n.SetFee(fee)
	n.SetSellingAsset(req.SellingAsset)
	n.SetBuyingAsset(req.BuyingAsset)
	n.SetAmount(req.Amount)
	if s := n.State(); !s.IsValid() {
		return apperror.New(apperror.CodeInvalidParameters, apperror.WithContext(s.ValidationStatus))
	}
	return nil
}

// waitForQuote blocks until the first quote or error arrives.
func waitForQuote(ctx context.Context, n *negotiator.Negotiator, showSpinner bool) (negotiator.State, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if showSpinner {
		s.Suffix = " Fetching quote..."
		s.Start()
		defer s.Stop()
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(quoteWaitTimeout)

	for {
		select {
		case <-ctx.Done():
			return negotiator.State{}, ctx.Err()
		case <-deadline:
			return negotiator.State{}, apperror.New(apperror.CodeQuoteFailed, apperror.WithContext("no quote received"))
		case <-ticker.C:
			state := n.State()
			if state.ErrorMessage != "" {
				return state, apperror.New(apperror.CodeQuoteFailed, apperror.WithContext(state.ErrorMessage))
			}
			if state.PathLoaded {
				return state, nil
			}
		}
	}
}

func printNotification(note negotiator.Notification) {
	switch note.Level {
	case negotiator.LevelSuccess:
		printSuccess(note.Message)
	case negotiator.LevelWarning:
		printWarning(note.Message)
	case negotiator.LevelError:
		color.Red("\n%s", note.Message)
	default:
		printInfo(note.Message)
	}
}

func displayQuote(d types.QuoteDisplay) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  You sell:          %s %s\n", d.SellingAmount, color.YellowString(types.AssetCode(d.SellingAsset)))
	fmt.Printf("  You receive:       ~%s %s\n", d.BuyingAmount, color.YellowString(types.AssetCode(d.BuyingAsset)))
	fmt.Printf("  Slippage:          %s\n", d.Slippage)
	if d.Path != "" {
		fmt.Printf("  Direct path:       %s\n", d.Path)
	}
	if d.Profit != "" {
		fmt.Printf("  Routing profit:    %s\n", d.Profit)
	}
	if !d.Feasible {
		fmt.Printf("  Status:            %s\n", color.RedString("no executable path"))
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
