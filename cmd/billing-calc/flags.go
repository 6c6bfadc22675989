package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/shopspring/decimal"
)

const monthLayout = "2006-01"

// parseConsumption builds consumption from -zones, or from -consumption when
// no zones are given
func parseConsumption(total, zones string) (billing.ConsumptionData, error) {
	if zones == "" {
		if total == "" {
			return billing.ConsumptionData{}, fmt.Errorf("-consumption or -zones is required")
		}
		v, err := decimal.NewFromString(total)
		if err != nil {
			return billing.ConsumptionData{}, fmt.Errorf("-consumption %q: %w", total, err)
		}
		return billing.SingleZoneConsumption(v)
	}

	values := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(zones, ",") {
		name, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return billing.ConsumptionData{}, fmt.Errorf("-zones entry %q must be zone=value", pair)
		}
		if _, dup := values[name]; dup {
			return billing.ConsumptionData{}, fmt.Errorf("-zones repeats zone %q", name)
		}
		v, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return billing.ConsumptionData{}, fmt.Errorf("-zones %s: %w", name, err)
		}
		values[name] = v
	}
	return billing.NewConsumptionData(values)
}

func parsePeriod(month string) (billing.BillingPeriod, error) {
	m, err := time.Parse(monthLayout, month)
	if err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("-month %q must be YYYY-MM", month)
	}
	return billing.FullMonth(m.Year(), m.Month()), nil
}
