package summary

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Rounding picks how totals are cut to two decimals.
type Rounding int

const (
	// HalfUp rounds halves away from zero: 10.005 -> 10.01.
	HalfUp Rounding = iota
	// Bankers rounds halves to even: 10.005 -> 10.00.
	Bankers
)

// ParseRounding maps "half_up" and "bankers"; empty means HalfUp.
func ParseRounding(s string) (Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "half_up":
		return HalfUp, nil
	case "bankers":
		return Bankers, nil
	default:
		return HalfUp, fmt.Errorf("unknown rounding mode %q", s)
	}
}

func (r Rounding) String() string {
	if r == Bankers {
		return "bankers"
	}
	return "half_up"
}

// Round cuts d to two decimals.
func (r Rounding) Round(d decimal.Decimal) decimal.Decimal {
	if r == Bankers {
		return d.RoundBank(2)
	}
	return d.Round(2)
}

// RenderMessage builds the digest text for day (YYYY-MM-DD).
// A day without payments gets the ERROR sentinel instead of zeros.
func RenderMessage(day string, count int, total decimal.Decimal, r Rounding) string {
	if count == 0 {
		return fmt.Sprintf("On %s there were ERROR PayPal transactions with a total income of USD ERROR.", day)
	}
	return fmt.Sprintf("On %s there were %d PayPal transactions with a total income of USD %s.",
		day, count, r.Round(total).StringFixed(2))
}
