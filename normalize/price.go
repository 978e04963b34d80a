package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/ysmood/gson"
)

// ZeroPrice is the price reported when the upstream value is unusable.
const ZeroPrice = "0"

// FormatAmount renders a non-negative amount with a fixed number of decimals.
func FormatAmount(amount float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(amount, 'f', decimals, 64)
}

// Price reads a major-unit price and formats it with two decimals.
// Unparseable or negative values yield ZeroPrice.
func Price(v gson.JSON) string {
	if s, ok := OptionalPrice(v); ok {
		return s
	}
	return ZeroPrice
}

// OptionalPrice is Price without the ZeroPrice fallback.
func OptionalPrice(v gson.JSON) (string, bool) {
	f, ok := ParseAmount(v)
	if !ok {
		return "", false
	}
	return FormatAmount(f, 2), true
}

// MinorUnitPrice converts an integer minor-unit amount ("2900" with
// minorUnit 2) into a decimal string ("29.00").
func MinorUnitPrice(v gson.JSON, minorUnit int) (string, bool) {
	f, ok := ParseAmount(v)
	if !ok {
		return "", false
	}
	if minorUnit < 0 {
		minorUnit = 0
	}
	return FormatAmount(f/math.Pow10(minorUnit), minorUnit), true
}

// StringList reads a list of labels. It accepts a comma separated string,
// an array of strings or an array of objects with a "name" field. Entries
// are trimmed and empty ones dropped.
func StringList(v gson.JSON) []string {
	var parts []string
	switch raw := v.Val().(type) {
	case string:
		parts = strings.Split(raw, ",")
	case []interface{}:
		for _, item := range v.Arr() {
			if label, ok := item.Val().(string); ok {
				parts = append(parts, label)
				continue
			}
			if name, ok := Field(item, "name").Val().(string); ok {
				parts = append(parts, name)
			}
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
