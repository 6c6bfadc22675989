package billing

import "time"

// MetricsRecorder receives counters and timings from the billing services.
// The Prometheus adapter lives in infrastructure/metrics.
type MetricsRecorder interface {
	ObserveCalculation(model string, outcome string, duration time.Duration)
	IncCacheLookup(cache string, hit bool)
	ObserveDistribution(method string, fallback bool)
	ObserveGyvatukas(season string, duration time.Duration)
	IncReadingValidation(outcome string)
	IncConfigurationValidation(valid bool)
}

// Outcome labels used with ObserveCalculation and IncReadingValidation
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeCached   = "cached"
	OutcomeValid    = "valid"
	OutcomeWarning  = "warning"
	OutcomeRejected = "rejected"
)

type nopMetrics struct{}

func (nopMetrics) ObserveCalculation(string, string, time.Duration) {}
func (nopMetrics) IncCacheLookup(string, bool)                      {}
func (nopMetrics) ObserveDistribution(string, bool)                 {}
func (nopMetrics) ObserveGyvatukas(string, time.Duration)           {}
func (nopMetrics) IncReadingValidation(string)                      {}
func (nopMetrics) IncConfigurationValidation(bool)                  {}

// NopMetrics returns a recorder that discards everything
func NopMetrics() MetricsRecorder {
	return nopMetrics{}
}

func orNop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
