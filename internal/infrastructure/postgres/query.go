package postgres

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/moving-hub/moving-hub/internal/domain/servicerequest"
)

func itoa(i int) string {
	return strconv.Itoa(i)
}

func addWhere(query string) string {
	if strings.Contains(query, " WHERE ") {
		return " AND"
	}
	return " WHERE"
}

// priceArg renders a price for a `$n::text::numeric` placeholder.
func priceArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := servicerequest.FormatPrice(*d)
	return &s
}

// priceValue parses a numeric column selected as text.
func priceValue(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
