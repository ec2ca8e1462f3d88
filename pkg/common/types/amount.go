package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const NativeCurrencyCode = "XRP"

// ParsedAmount is a normalized XRPL amount. Native amounts carry the
// value in drops; issued amounts carry the issuer's decimal value.
type ParsedAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
	Issuer   string `json:"issuer,omitempty"`
	IsNative bool   `json:"is_native"`
}

type issuedAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
}

// ParseAmount normalizes an amount field from either wire shape: a plain
// numeric string (XRP, in drops) or a {value, currency, issuer} object.
func ParseAmount(raw json.RawMessage) (*ParsedAmount, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty amount")
	}

	var drops string
	if err := json.Unmarshal(raw, &drops); err == nil {
		return parseDrops(drops)
	}

	var issued issuedAmount
	if err := json.Unmarshal(raw, &issued); err != nil {
		return nil, fmt.Errorf("unrecognized amount shape: %w", err)
	}
	return parseIssued(issued.Value, issued.Currency, issued.Issuer)
}

// ParseAmountValue normalizes an amount pulled out of a metadata-diff
// field map, where it surfaces as string or map[string]any.
func ParseAmountValue(v any) (*ParsedAmount, error) {
	switch a := v.(type) {
	case string:
		return parseDrops(a)
	case map[string]any:
		value, _ := a["value"].(string)
		currency, _ := a["currency"].(string)
		issuer, _ := a["issuer"].(string)
		return parseIssued(value, currency, issuer)
	default:
		return nil, fmt.Errorf("unrecognized amount type %T", v)
	}
}

func parseDrops(drops string) (*ParsedAmount, error) {
	d, err := decimal.NewFromString(drops)
	if err != nil {
		return nil, fmt.Errorf("invalid drops amount %q: %w", drops, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative drops amount %q", drops)
	}
	return &ParsedAmount{
		Value:    drops,
		Currency: NativeCurrencyCode,
		IsNative: true,
	}, nil
}

func parseIssued(value, currency, issuer string) (*ParsedAmount, error) {
	if value == "" || currency == "" {
		return nil, fmt.Errorf("issued amount missing value or currency")
	}
	if _, err := decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("invalid issued amount %q: %w", value, err)
	}
	return &ParsedAmount{
		Value:    value,
		Currency: DecodeCurrency(currency),
		Issuer:   issuer,
		IsNative: false,
	}, nil
}

// DecodeCurrency resolves a currency code to its display form. XRPL
// encodes codes longer than three characters as 40-char hex with zero
// padding; anything that doesn't decode to printable ASCII is returned
// as-is.
func DecodeCurrency(code string) string {
	if len(code) != 40 {
		return strings.ToUpper(code)
	}
	b, err := hex.DecodeString(code)
	if err != nil {
		return code
	}
	end := len(b)
	for end > 0 && b[end-1] == 0x00 {
		end--
	}
	b = b[:end]
	if len(b) == 0 {
		return code
	}
	for _, c := range b {
		if c < 32 || c > 126 {
			return code
		}
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return code
	}
	return strings.ToUpper(s)
}
