package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const aqua = "AQUA-GBNZILSTVQZ4R7IKQDGHYGY2QXL5QOFJYQMXPKWRRM5PAV7Y4M67AQUA"

func TestParseSwapCommand(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		amount  string
		selling string
		buying  string
		wantErr bool
	}{
		{name: "plain", in: "1000 XLM to " + aqua, amount: "1000", selling: "XLM", buying: aqua},
		{name: "with swap prefix", in: "swap 1.5 native TO " + aqua, amount: "1.5", selling: "XLM", buying: aqua},
		{name: "extra spaces", in: "  25   " + aqua + "   to  xlm ", amount: "25", selling: aqua, buying: "XLM"},
		{name: "same asset", in: "1 XLM to XLM", wantErr: true},
		{name: "missing amount", in: "XLM to " + aqua, wantErr: true},
		{name: "bad asset", in: "1 XLM to AQUA", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseSwapCommand(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.amount, req.Amount)
			require.Equal(t, tt.selling, req.SellingAsset)
			require.Equal(t, tt.buying, req.BuyingAsset)
		})
	}
}

func TestNormalizeAsset(t *testing.T) {
	require.Equal(t, "XLM", NormalizeAsset(" Lumens "))
	require.Equal(t, "AQUA-GbNz9", NormalizeAsset("aqua-GbNz9"))
	require.Equal(t, "USDC", NormalizeAsset("usdc"))
}
