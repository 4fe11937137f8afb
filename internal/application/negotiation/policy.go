package negotiation

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/shopspring/decimal"

	"github.com/moving-hub/moving-hub/internal/apperror"
)

// Offer kinds exposed to the price policy as the `kind` parameter.
const (
	OfferProposal = "proposal"
	OfferCounter  = "counter"
)

// PricePolicy is a boolean expression every proposed or countered price must
// satisfy, e.g. `amount >= 10 && amount <= 100000`. Parameters: amount (number),
// kind ("proposal" or "counter") and serviceType (string).
type PricePolicy struct {
	source string
	expr   *govaluate.EvaluableExpression
}

// NewPricePolicy compiles expression. An empty expression accepts every price.
func NewPricePolicy(expression string) (*PricePolicy, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return &PricePolicy{}, nil
	}
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid price policy %q: %w", expression, err)
	}
	return &PricePolicy{source: expression, expr: expr}, nil
}

// Check evaluates the policy for one offer.
func (p *PricePolicy) Check(amount decimal.Decimal, kind, serviceType string) error {
	if p == nil || p.expr == nil {
		return nil
	}
	params := map[string]interface{}{
		"amount":      amount.InexactFloat64(),
		"kind":        kind,
		"serviceType": serviceType,
	}
	result, err := p.expr.Evaluate(params)
	if err != nil {
		return fmt.Errorf("evaluate price policy: %w", err)
	}
	ok, isBool := result.(bool)
	if !isBool {
		return fmt.Errorf("price policy %q did not evaluate to boolean", p.source)
	}
	if !ok {
		return apperror.Validation("amount", "%s is not allowed by the price policy", amount.StringFixed(2))
	}
	return nil
}

func (p *PricePolicy) String() string {
	if p == nil {
		return ""
	}
	return p.source
}
