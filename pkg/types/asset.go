package types

import (
	"fmt"
	"strings"
)

// NativeCode identifies the network's native asset.
const NativeCode = "XLM"

// Asset is a ledger asset, either native or CODE issued by ISSUER.
type Asset struct {
	Code   string `json:"code"`
	Issuer string `json:"issuer,omitempty"`
}

// NativeAsset returns the native asset.
func NativeAsset() Asset {
	return Asset{Code: NativeCode}
}

// IsNative reports whether a is the native asset.
func (a Asset) IsNative() bool {
	return a.Issuer == "" && a.Code == NativeCode
}

// String renders the asset in broker notation: XLM or CODE-ISSUER.
func (a Asset) String() string {
	if a.IsNative() {
		return NativeCode
	}
	return a.Code + "-" + a.Issuer
}

// ParseAsset accepts "XLM", "native", "CODE-ISSUER" and "CODE-ISSUER-TYPE".
func ParseAsset(s string) (Asset, error) {
	s = strings.TrimSpace(s)
	if s == NativeCode || s == "native" {
		return NativeAsset(), nil
	}
	parts := strings.Split(s, "-")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return Asset{}, fmt.Errorf("invalid asset identifier %q", s)
	}
	if len(parts[0]) > 12 {
		return Asset{}, fmt.Errorf("asset code %q is too long", parts[0])
	}
	return Asset{Code: parts[0], Issuer: parts[1]}, nil
}

// ParsePath converts a broker path into assets.
func ParsePath(path []string) ([]Asset, error) {
	assets := make([]Asset, 0, len(path))
	for _, p := range path {
		a, err := ParseAsset(p)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// AssetCode returns the code part of an identifier without parsing it.
func AssetCode(id string) string {
	code, _, _ := strings.Cut(id, "-")
	return code
}
