package parser

import (
	"fmt"
	"regexp"
	"strings"

	"broker-swap/pkg/types"
)

// Pattern: <amount> <selling_asset> to <buying_asset>
// Matches: "1000 XLM to AQUA-GBNZ...", "swap 1.5 USDC-GA5Z... to XLM"
var swapPattern = regexp.MustCompile(`(?i)^(\d+\.?\d*)\s+(\S+)\s+to\s+(\S+)$`)

// ParseSwapCommand parses a swap command
// Examples:
//   - "swap 1000 XLM to AQUA-GBNZILSTVQZ4R7IKQDGHYGY2QXL5QOFJYQMXPKWRRM5PAV7Y4M67AQUA"
//   - "25 USDC-GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN to XLM"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	command = strings.Join(strings.Fields(command), " ")
	if len(command) >= 5 && strings.EqualFold(command[:5], "swap ") {
		command = command[5:]
	}

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: '<amount> <asset> to <asset>' (e.g., '1000 XLM to AQUA-GBNZ...')")
	}

	req := &types.SwapRequest{
		Amount:       matches[1],
		SellingAsset: NormalizeAsset(matches[2]),
		BuyingAsset:  NormalizeAsset(matches[3]),
	}
	if err := ValidateSwapRequest(req); err != nil {
		return nil, err
	}
	return req, nil
}

// ValidateSwapRequest validates that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if _, err := types.ParseAsset(req.SellingAsset); err != nil {
		return fmt.Errorf("selling asset: %w", err)
	}
	if _, err := types.ParseAsset(req.BuyingAsset); err != nil {
		return fmt.Errorf("buying asset: %w", err)
	}
	if req.SellingAsset == req.BuyingAsset {
		return fmt.Errorf("selling and buying assets must differ")
	}
	return nil
}

// NormalizeAsset upper-cases asset codes and maps native aliases to XLM.
// Issuers are left untouched.
func NormalizeAsset(id string) string {
	id = strings.TrimSpace(id)
	switch strings.ToLower(id) {
	case "xlm", "native", "lumens":
		return types.NativeCode
	}
	code, rest, found := strings.Cut(id, "-")
	if !found {
		return strings.ToUpper(id)
	}
	return strings.ToUpper(code) + "-" + rest
}
