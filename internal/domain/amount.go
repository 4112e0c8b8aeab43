package domain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountPattern accepts whole numbers with an optional 1-2 digit decimal part.
var amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// ParseAmount parses a user-entered monetary string. Thousands separators
// (commas) are stripped before format checking. The empty string and any
// value with more than two decimal places are rejected.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if !amountPattern.MatchString(cleaned) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// FormatAmount renders a decimal with two fractional digits for display
// and for outbound payloads.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
