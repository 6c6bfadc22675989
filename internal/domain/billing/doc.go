// Package billing provides the domain model of the utility billing
// calculation core.
//
// This package implements the calculation bounded context, which is responsible for:
//   - Describing how a utility service is priced (ServiceConfiguration and its RateSchedule variants)
//   - Turning validated meter readings into consumption figures for a billing period
//   - Season classification and pro-ration of monthly amounts
//   - Capturing every calculation as an auditable CalculationResult with a tariff snapshot
//
// Key Aggregates:
//   - ServiceConfiguration: pricing model, rate schedule and distribution settings of a property service
//   - Building: properties sharing a heating system, plus the stored circulation summer average
//
// Value Objects:
//   - ConsumptionData, BillingPeriod, CalculationResult, TariffSnapshot
//   - RateSchedule: one concrete type per PricingModel
//
// Collaborators (configuration store, reading store, building store, result
// cache) are declared as interfaces in repository.go and implemented in the
// infrastructure layer.
package billing
