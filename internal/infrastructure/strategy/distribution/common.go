package distribution

import (
	"fmt"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NoPropertiesWarning is reported when a cost has nowhere to go
const NoPropertiesWarning = "no properties to distribute the cost across"

func newResult(method billing.DistributionMethod, n int) *billing.DistributionResult {
	return &billing.DistributionResult{
		Allocations: make(map[uuid.UUID]decimal.Decimal, n),
		Order:       make([]uuid.UUID, 0, n),
		Method:      method,
	}
}

// checkInput validates the cost and returns an empty result when there are no properties
func checkInput(method billing.DistributionMethod, in billing.DistributionInput) (*billing.DistributionResult, error) {
	if in.Cost.IsNegative() {
		return nil, fmt.Errorf("%w: cost to distribute cannot be negative (%s)", shared.ErrInvalidInput, in.Cost)
	}
	if len(in.Properties) == 0 {
		r := newResult(method, 0)
		r.Warnings = []string{NoPropertiesWarning}
		return r, nil
	}
	seen := make(map[uuid.UUID]struct{}, len(in.Properties))
	for _, p := range in.Properties {
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: property %s is listed more than once", shared.ErrInvalidInput, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil, nil
}

func assign(r *billing.DistributionResult, properties []billing.Property, parts []valueobject.Money) {
	for i, p := range properties {
		r.Allocations[p.ID] = parts[i].Amount()
		r.Order = append(r.Order, p.ID)
	}
}

// splitEqual floors each share to minor units and puts the remainder on the last property
func splitEqual(method billing.DistributionMethod, in billing.DistributionInput) *billing.DistributionResult {
	r := newResult(method, len(in.Properties))
	parts, _ := valueobject.NewMoneyEUR(in.Cost).SplitEqual(len(in.Properties))
	assign(r, in.Properties, parts)
	return r
}

// splitWeighted shares the cost proportionally to weights. Invalid or
// non-positive weights fall back to an equal split with reason recorded.
func splitWeighted(method billing.DistributionMethod, in billing.DistributionInput, weights []decimal.Decimal, what string) *billing.DistributionResult {
	parts, err := valueobject.NewMoneyEUR(in.Cost).SplitByWeights(weights)
	if err != nil {
		return fallbackEqual(method, in, fmt.Sprintf("%s cannot be used as weights (%v)", what, err))
	}
	r := newResult(method, len(in.Properties))
	assign(r, in.Properties, parts)
	return r
}

func fallbackEqual(method billing.DistributionMethod, in billing.DistributionInput, reason string) *billing.DistributionResult {
	r := splitEqual(method, in)
	r.FallbackReason = reason
	r.Warnings = append(r.Warnings, reason+"; distributed equally instead")
	return r
}
