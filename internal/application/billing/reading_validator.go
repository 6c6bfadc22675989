package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reading rules, in the order they are checked
const (
	ReadingRuleConsumptionLimit    = "consumption_limit"
	ReadingRuleReadingFrequency    = "reading_frequency"
	ReadingRuleDataQuality         = "data_quality"
	ReadingRuleSeasonalExpectation = "seasonal_expectation"
)

// ReadingRejection is returned when a reading fails a hard check
type ReadingRejection struct {
	Rule    string `json:"rule"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (r *ReadingRejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Rule, r.Message)
}

// Unwrap lets errors.Is match shared.ErrValidationFailed
func (r *ReadingRejection) Unwrap() error {
	return shared.ErrValidationFailed
}

func reject(rule, code, format string, args ...any) *ReadingRejection {
	return &ReadingRejection{Rule: rule, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ReadingReport describes an accepted reading
type ReadingReport struct {
	ReadingID   uuid.UUID                    `json:"readingId"`
	MeterID     uuid.UUID                    `json:"meterId"`
	Status      billing.ValidationStatus     `json:"status"`
	Consumption *decimal.Decimal             `json:"consumption,omitempty"`
	DailyRate   *decimal.Decimal             `json:"dailyRate,omitempty"`
	ElapsedDays int                          `json:"elapsedDays"`
	Warnings    []strategy.ValidationWarning `json:"warnings"`
}

func (r *ReadingReport) warn(rule, code, format string, args ...any) {
	r.Warnings = append(r.Warnings, strategy.ValidationWarning{
		Rule:    rule,
		Field:   "value",
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

// readingContext is everything a reading is checked against
type readingContext struct {
	meter    *billing.Meter
	config   *billing.ServiceConfiguration
	previous *billing.MeterReading
	history  []billing.MeterReading
}

// ValidateReading checks reading against its meter, configuration, previous
// validated reading and history. The first failing hard check is returned as
// a *ReadingRejection; soft findings are warnings in the report.
func (v *ValidationEngine) ValidateReading(ctx context.Context, reading billing.MeterReading) (*ReadingReport, error) {
	rc, err := v.loadReadingContext(ctx, reading)
	if err != nil {
		return nil, err
	}
	return v.validateReading(reading, rc)
}

func (v *ValidationEngine) loadReadingContext(ctx context.Context, reading billing.MeterReading) (readingContext, error) {
	var rc readingContext
	if v.meters == nil || v.readings == nil {
		return rc, fmt.Errorf("%w: reading validation needs meter and reading repositories", shared.ErrInvalidConfiguration)
	}

	meter, err := v.meters.FindByID(ctx, reading.MeterID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rc, reject(ReadingRuleDataQuality, "METER_NOT_FOUND", "meter %s does not exist", reading.MeterID)
		}
		return rc, fmt.Errorf("failed to load meter: %w", err)
	}
	rc.meter = meter

	if meter.ServiceConfigurationID != nil && v.configs != nil {
		cfg, err := v.configs.FindByID(ctx, *meter.ServiceConfigurationID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return rc, fmt.Errorf("failed to load service configuration: %w", err)
		}
		rc.config = cfg
	}

	rc.previous, err = v.readings.FindPreviousValidated(ctx, reading.MeterID, reading.ZoneOrDefault(), reading.ReadingDate)
	if err != nil {
		return rc, fmt.Errorf("failed to load previous reading: %w", err)
	}

	since := reading.ReadingDate.AddDate(0, -v.config.HistoryMonths, 0)
	rc.history, err = v.readings.FindValidatedHistory(ctx, reading.MeterID, since)
	if err != nil {
		return rc, fmt.Errorf("failed to load reading history: %w", err)
	}
	return rc, nil
}

func (v *ValidationEngine) validateReading(reading billing.MeterReading, rc readingContext) (*ReadingReport, error) {
	report := &ReadingReport{
		ReadingID: reading.ID,
		MeterID:   reading.MeterID,
		Warnings:  []strategy.ValidationWarning{},
	}

	checks := []func(billing.MeterReading, readingContext, *ReadingReport) *ReadingRejection{
		v.checkConsumptionLimit,
		v.checkReadingFrequency,
		v.checkDataQuality,
		v.checkSeasonalExpectation,
	}
	for _, check := range checks {
		if rejection := check(reading, rc, report); rejection != nil {
			v.metrics.IncReadingValidation(OutcomeRejected)
			v.logger.Info("Reading rejected",
				zap.String("reading_id", reading.ID.String()),
				zap.String("meter_id", reading.MeterID.String()),
				zap.String("rule", rejection.Rule),
				zap.String("code", rejection.Code))
			return nil, rejection
		}
	}

	report.Status = billing.ValidationStatusValidated
	if len(report.Warnings) > 0 {
		report.Status = billing.ValidationStatusRequiresReview
		v.metrics.IncReadingValidation(OutcomeWarning)
		for _, w := range report.Warnings {
			v.logger.Warn("Reading validation warning",
				zap.String("reading_id", reading.ID.String()),
				zap.String("meter_id", reading.MeterID.String()),
				zap.String("rule", w.Rule),
				zap.String("code", w.Code),
				zap.String("message", w.Message))
		}
	} else {
		v.metrics.IncReadingValidation(OutcomeValid)
	}
	return report, nil
}

// checkConsumptionLimit derives consumption since the previous reading and
// checks it against the daily limits and the meter's history
func (v *ValidationEngine) checkConsumptionLimit(reading billing.MeterReading, rc readingContext, report *ReadingReport) *ReadingRejection {
	rule := ReadingRuleConsumptionLimit
	if reading.Value.IsNegative() {
		return reject(rule, "NEGATIVE_VALUE", "reading value %s is negative", reading.Value)
	}
	if reading.Value.GreaterThan(v.config.MaxConsumption) {
		return reject(rule, "VALUE_OUT_OF_RANGE", "reading value %s exceeds %s", reading.Value, v.config.MaxConsumption)
	}
	if rc.previous == nil {
		report.warn(rule, "FIRST_READING", "no previous validated reading; consumption cannot be checked")
		return nil
	}

	consumption := reading.Value.Sub(rc.previous.Value)
	if consumption.IsNegative() {
		high := v.config.MaxConsumption.Mul(v.config.RolloverHigh)
		low := v.config.MaxConsumption.Mul(v.config.RolloverLow)
		if !rc.previous.Value.GreaterThan(high) || !reading.Value.LessThan(low) {
			return reject(rule, "NEGATIVE_CONSUMPTION", "reading %s is below the previous reading %s", reading.Value, rc.previous.Value)
		}
		consumption = v.config.MaxConsumption.Sub(rc.previous.Value).Add(reading.Value)
		report.warn(rule, "METER_ROLLOVER", "meter rolled over from %s to %s", rc.previous.Value, reading.Value)
	}
	consumption = valueobject.RoundConsumption(consumption)
	report.Consumption = &consumption

	elapsed := reading.ElapsedDays(*rc.previous)
	report.ElapsedDays = elapsed
	daily := valueobject.RoundConsumption(consumption.Div(decimal.NewFromInt(int64(max(elapsed, 1)))))
	report.DailyRate = &daily

	minDaily, maxDaily := v.config.MinDailyConsumption, v.config.MaxDailyConsumption
	if rc.config != nil && rc.config.ConsumptionLimits != nil {
		if l := rc.config.ConsumptionLimits.MinDaily; l != nil {
			minDaily = *l
		}
		if l := rc.config.ConsumptionLimits.MaxDaily; l != nil {
			maxDaily = *l
		}
	}
	if daily.GreaterThan(maxDaily) {
		return reject(rule, "EXCEEDS_MAX_DAILY", "daily consumption %s exceeds the limit %s", daily, maxDaily)
	}
	if minDaily.IsPositive() && daily.LessThan(minDaily) {
		report.warn(rule, "BELOW_MIN_DAILY", "daily consumption %s is below the expected minimum %s", daily, minDaily)
	}

	if avg, ok := averageDailyRate(rc.history, reading.ZoneOrDefault()); ok && avg.IsPositive() {
		variance := daily.Sub(avg).Abs().Div(avg)
		if variance.GreaterThan(v.config.VarianceThreshold) {
			report.warn(rule, "HIGH_VARIANCE", "daily consumption %s deviates %s%% from the historical average %s",
				daily, variance.Mul(decimal.NewFromInt(100)).Round(0), avg.Round(3))
		}
	}
	return nil
}

// checkReadingFrequency rejects readings taken too soon after the previous one
func (v *ValidationEngine) checkReadingFrequency(reading billing.MeterReading, rc readingContext, report *ReadingReport) *ReadingRejection {
	if rc.previous == nil {
		return nil
	}
	rule := ReadingRuleReadingFrequency
	elapsed := reading.ElapsedDays(*rc.previous)
	if elapsed == 0 {
		return reject(rule, "DUPLICATE_READING", "a validated reading already exists for %s", reading.ReadingDate.Format("2006-01-02"))
	}
	if elapsed < v.config.MinReadingIntervalDays {
		return reject(rule, "TOO_FREQUENT", "only %d days since the previous reading; at least %d required", elapsed, v.config.MinReadingIntervalDays)
	}
	if elapsed > v.config.MaxReadingIntervalDays {
		report.warn(rule, "INTERVAL_EXCEEDED", "%d days since the previous reading; expected at most %d", elapsed, v.config.MaxReadingIntervalDays)
	}
	return nil
}

// checkDataQuality covers precision, dates, estimates and photo evidence
func (v *ValidationEngine) checkDataQuality(reading billing.MeterReading, rc readingContext, report *ReadingReport) *ReadingRejection {
	rule := ReadingRuleDataQuality
	if places := decimalPlaces(reading.Value); places > v.config.MaxDecimalPlaces {
		return reject(rule, "TOO_MANY_DECIMALS", "value has %d decimal places; at most %d allowed", places, v.config.MaxDecimalPlaces)
	}
	if reading.ReadingDate.IsZero() {
		return reject(rule, "MISSING_DATE", "reading date is required")
	}
	if reading.ReadingDate.After(v.clock.Now()) {
		return reject(rule, "FUTURE_DATE", "reading date %s is in the future", reading.ReadingDate.Format("2006-01-02"))
	}
	if rc.meter != nil && reading.Zone != "" && !rc.meter.SupportsZones && reading.Zone != billing.DefaultZone {
		return reject(rule, "ZONE_NOT_SUPPORTED", "meter does not support zone %q", reading.Zone)
	}
	if reading.IsEstimated() {
		if !v.config.AllowEstimated {
			return reject(rule, "ESTIMATED_NOT_ALLOWED", "estimated readings are not accepted")
		}
		if reading.ValidationStatus != billing.ValidationStatusRequiresReview {
			report.warn(rule, "ESTIMATE_NOT_FLAGGED", "estimated reading is not marked for review")
		}
	}
	if reading.InputMethod == billing.InputMethodPhotoOCR && v.config.RequirePhotoForOCR && !reading.HasPhoto() {
		return reject(rule, "PHOTO_REQUIRED", "photo OCR readings must include the photo")
	}
	return nil
}

// checkSeasonalExpectation compares monthly consumption with the seasonal
// range of the meter type. The daily rate is scaled to 30 days.
func (v *ValidationEngine) checkSeasonalExpectation(reading billing.MeterReading, rc readingContext, report *ReadingReport) *ReadingRejection {
	if rc.meter == nil || report.DailyRate == nil || v.adjuster == nil {
		return nil
	}
	exp, ok := v.config.SeasonalExpectations[rc.meter.Type]
	if !ok {
		return nil
	}
	season := v.adjuster.Season(reading.ReadingDate)
	lo, hi := exp.SummerMin, exp.SummerMax
	if season == billing.SeasonWinter {
		lo, hi = exp.WinterMin, exp.WinterMax
	}
	c := report.DailyRate.Mul(decimal.NewFromInt(30))
	rule := ReadingRuleSeasonalExpectation
	if lo != nil && c.LessThan(*lo) {
		report.warn(rule, "BELOW_SEASONAL_RANGE", "monthly %s consumption %s is below the %s expectation %s", rc.meter.Type, c, season, lo)
	}
	if hi != nil && c.GreaterThan(*hi) {
		report.warn(rule, "ABOVE_SEASONAL_RANGE", "monthly %s consumption %s is above the %s expectation %s", rc.meter.Type, c, season, hi)
	}
	return nil
}

// averageDailyRate averages the daily consumption between consecutive
// validated readings of zone. history must be ordered by date.
func averageDailyRate(history []billing.MeterReading, zone string) (decimal.Decimal, bool) {
	var prev *billing.MeterReading
	sum := decimal.Zero
	n := 0
	for i := range history {
		r := history[i]
		if r.ZoneOrDefault() != zone || !r.IsValidated() {
			continue
		}
		if prev != nil {
			days := r.ElapsedDays(*prev)
			delta := r.Value.Sub(prev.Value)
			if days > 0 && !delta.IsNegative() {
				sum = sum.Add(delta.Div(decimal.NewFromInt(int64(days))))
				n++
			}
		}
		prev = &history[i]
	}
	if n == 0 {
		return decimal.Zero, false
	}
	return sum.Div(decimal.NewFromInt(int64(n))), true
}

// decimalPlaces counts significant digits after the decimal point
func decimalPlaces(d decimal.Decimal) int {
	s := d.String()
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}
