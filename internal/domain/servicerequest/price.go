package servicerequest

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/moving-hub/moving-hub/internal/apperror"
)

// MaxPriceScale is the number of fractional digits a price may carry.
const MaxPriceScale = 2

var maxPrice = decimal.New(1, 10)

// ParsePrice parses a decimal price. Prices must be strictly positive, carry at
// most two fractional digits and stay below 10^10.
func ParsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, apperror.Validation("amount", "is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperror.Validation("amount", "%q is not a decimal", raw)
	}
	return d, ValidatePrice(d)
}

// ValidatePrice checks an already-parsed price.
func ValidatePrice(d decimal.Decimal) error {
	if !d.IsPositive() {
		return apperror.Validation("amount", "must be strictly positive")
	}
	if !d.Equal(d.Truncate(MaxPriceScale)) {
		return apperror.Validation("amount", "must have at most %d fractional digits", MaxPriceScale)
	}
	if d.GreaterThanOrEqual(maxPrice) {
		return apperror.Validation("amount", "is too large")
	}
	return nil
}

// FormatPrice renders a price with exactly two fractional digits.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(MaxPriceScale)
}
