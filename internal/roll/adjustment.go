package roll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Adjustment selects how prices are corrected across roll boundaries.
type Adjustment string

const (
	// AdjustRatio scales prior history multiplicatively, preserving
	// percentage returns across rolls.
	AdjustRatio Adjustment = "ratio"
	// AdjustDifference shifts prior history additively, preserving absolute
	// point moves across rolls.
	AdjustDifference Adjustment = "difference"
	// AdjustNone concatenates raw prices, leaving the exchange-visible jump
	// at each roll.
	AdjustNone Adjustment = "none"
)

// ParseAdjustment validates an adjustment policy name from configuration.
func ParseAdjustment(name string) (Adjustment, error) {
	switch Adjustment(name) {
	case AdjustRatio, AdjustDifference, AdjustNone:
		return Adjustment(name), nil
	}
	return "", fmt.Errorf("unknown adjustment policy %q", name)
}

// Identity returns the neutral accumulator value for the policy.
func (a Adjustment) Identity() decimal.Decimal {
	if a == AdjustDifference {
		return decimal.Zero
	}
	return decimal.NewFromInt(1)
}

// Compose folds a pair-local factor into a running accumulator.
func (a Adjustment) Compose(acc, factor decimal.Decimal) decimal.Decimal {
	switch a {
	case AdjustRatio:
		return acc.Mul(factor)
	case AdjustDifference:
		return acc.Add(factor)
	}
	return acc
}

// Apply corrects a raw price with an accumulated adjustment.
func (a Adjustment) Apply(price, acc decimal.Decimal) decimal.Decimal {
	switch a {
	case AdjustRatio:
		return price.Mul(acc)
	case AdjustDifference:
		return price.Add(acc)
	}
	return price
}
