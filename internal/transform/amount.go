package transform

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// NormalizeAmount converts a decimal currency string to signed minor units
// (value × 100, truncated toward zero). Unparsable or out-of-range input
// yields 0.
//
//	"-999.99" → -99999
//	"12.345"  → 1234
//	"abc"     → 0
func NormalizeAmount(raw string) int64 {
	v, ok := ParseAmount(raw)
	if !ok {
		return 0
	}
	return v
}

// ParseAmount is NormalizeAmount that also reports whether raw parsed.
func ParseAmount(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	minor := d.Mul(hundred).Truncate(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, false
	}
	return minor.IntPart(), true
}
