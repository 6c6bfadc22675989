package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchItemResult is the outcome of one reading of a batch
type BatchItemResult struct {
	Index     int               `json:"index"`
	ReadingID uuid.UUID         `json:"readingId"`
	MeterID   uuid.UUID         `json:"meterId"`
	Valid     bool              `json:"valid"`
	Report    *ReadingReport    `json:"report,omitempty"`
	Rejection *ReadingRejection `json:"rejection,omitempty"`
}

// BatchSummary aggregates a batch
type BatchSummary struct {
	Total           int             `json:"total"`
	Valid           int             `json:"valid"`
	Invalid         int             `json:"invalid"`
	WithWarnings    int             `json:"withWarnings"`
	ValidationRate  decimal.Decimal `json:"validationRate"`
	AverageWarnings decimal.Decimal `json:"averageWarnings"`
}

// BatchValidationResult is the outcome of ValidateBatch
type BatchValidationResult struct {
	Items    []BatchItemResult `json:"items"`
	Summary  BatchSummary      `json:"summary"`
	Duration time.Duration     `json:"duration"`
}

// batchPreload holds everything a chunk needs, fetched once. previous holds
// the latest validated reading per zone dated before the earliest reading of
// the chunk; history holds every validated reading from HistoryMonths before
// it. Together they contain the predecessor of any reading in the chunk.
type batchPreload struct {
	meters   map[uuid.UUID]*billing.Meter
	configs  map[uuid.UUID]*billing.ServiceConfiguration
	previous map[uuid.UUID][]billing.MeterReading
	history  map[uuid.UUID][]billing.MeterReading
}

// ValidateBatch validates many readings with one bulk preload per chunk of
// MaxBatchSize readings. A failing reading never affects the others;
// repository failures abort the batch.
func (v *ValidationEngine) ValidateBatch(ctx context.Context, readings []billing.MeterReading) (*BatchValidationResult, error) {
	if v.meters == nil || v.readings == nil {
		return nil, fmt.Errorf("%w: batch validation needs meter and reading repositories", shared.ErrInvalidConfiguration)
	}
	start := v.clock.Now()
	result := &BatchValidationResult{Items: make([]BatchItemResult, 0, len(readings))}

	for offset := 0; offset < len(readings); offset += v.config.MaxBatchSize {
		end := min(offset+v.config.MaxBatchSize, len(readings))
		chunk := readings[offset:end]

		pre, err := v.preload(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for i, r := range chunk {
			result.Items = append(result.Items, v.validateBatchItem(offset+i, r, pre))
		}
	}

	result.Summary = summarize(result.Items)
	result.Duration = v.clock.Now().Sub(start)
	v.logger.Info("Batch validation completed",
		zap.Int("total", result.Summary.Total),
		zap.Int("valid", result.Summary.Valid),
		zap.Int("invalid", result.Summary.Invalid),
		zap.Int("with_warnings", result.Summary.WithWarnings),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (v *ValidationEngine) validateBatchItem(index int, reading billing.MeterReading, pre *batchPreload) BatchItemResult {
	item := BatchItemResult{Index: index, ReadingID: reading.ID, MeterID: reading.MeterID}

	meter, ok := pre.meters[reading.MeterID]
	if !ok {
		item.Rejection = reject(ReadingRuleDataQuality, "METER_NOT_FOUND", "meter %s does not exist", reading.MeterID)
		v.metrics.IncReadingValidation(OutcomeRejected)
		return item
	}
	history := pre.history[reading.MeterID]
	candidates := make([]billing.MeterReading, 0, len(pre.previous[reading.MeterID])+len(history))
	candidates = append(append(candidates, pre.previous[reading.MeterID]...), history...)
	rc := readingContext{
		meter:    meter,
		previous: previousFrom(candidates, reading),
		history:  historySince(history, reading.ReadingDate.AddDate(0, -v.config.HistoryMonths, 0)),
	}
	if meter.ServiceConfigurationID != nil {
		rc.config = pre.configs[*meter.ServiceConfigurationID]
	}

	report, err := v.validateReading(reading, rc)
	if err != nil {
		var rejection *ReadingRejection
		if errors.As(err, &rejection) {
			item.Rejection = rejection
		} else {
			item.Rejection = reject(ReadingRuleDataQuality, "VALIDATION_ERROR", "%v", err)
		}
		return item
	}
	item.Valid = true
	item.Report = report
	return item
}

// preload fetches meters, previous validated readings and history for a chunk
// concurrently, then the configurations the meters point to
func (v *ValidationEngine) preload(ctx context.Context, chunk []billing.MeterReading) (*batchPreload, error) {
	meterIDs := uniqueMeterIDs(chunk)
	earliest := chunk[0].ReadingDate
	for _, r := range chunk[1:] {
		if r.ReadingDate.Before(earliest) {
			earliest = r.ReadingDate
		}
	}
	since := earliest.AddDate(0, -v.config.HistoryMonths, 0)

	pre := &batchPreload{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := v.meters.FindByIDs(gctx, meterIDs)
		if err != nil {
			return fmt.Errorf("failed to preload meters: %w", err)
		}
		pre.meters = m
		return nil
	})
	g.Go(func() error {
		p, err := v.readings.FindPreviousValidatedBulk(gctx, meterIDs, earliest)
		if err != nil {
			return fmt.Errorf("failed to preload previous readings: %w", err)
		}
		pre.previous = p
		return nil
	})
	g.Go(func() error {
		h, err := v.readings.FindValidatedHistoryBulk(gctx, meterIDs, since)
		if err != nil {
			return fmt.Errorf("failed to preload reading history: %w", err)
		}
		pre.history = h
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pre.configs = map[uuid.UUID]*billing.ServiceConfiguration{}
	if v.configs != nil {
		var configIDs []uuid.UUID
		seen := map[uuid.UUID]bool{}
		for _, m := range pre.meters {
			if m.ServiceConfigurationID != nil && !seen[*m.ServiceConfigurationID] {
				seen[*m.ServiceConfigurationID] = true
				configIDs = append(configIDs, *m.ServiceConfigurationID)
			}
		}
		if len(configIDs) > 0 {
			configs, err := v.configs.FindByIDs(ctx, configIDs)
			if err != nil {
				return nil, fmt.Errorf("failed to preload service configurations: %w", err)
			}
			pre.configs = configs
		}
	}
	return pre, nil
}

// previousFrom picks the latest candidate of the same zone dated strictly
// before reading, matching FindPreviousValidated
func previousFrom(candidates []billing.MeterReading, reading billing.MeterReading) *billing.MeterReading {
	var best *billing.MeterReading
	for i := range candidates {
		r := candidates[i]
		if r.ZoneOrDefault() != reading.ZoneOrDefault() || !r.IsValidated() || !r.ReadingDate.Before(reading.ReadingDate) {
			continue
		}
		if best == nil || r.ReadingDate.After(best.ReadingDate) {
			best = &candidates[i]
		}
	}
	return best
}

// historySince narrows the chunk history to what FindValidatedHistory would
// return for one reading. history is ordered by date.
func historySince(history []billing.MeterReading, since time.Time) []billing.MeterReading {
	i := sort.Search(len(history), func(i int) bool { return !history[i].ReadingDate.Before(since) })
	return history[i:]
}

func uniqueMeterIDs(readings []billing.MeterReading) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(readings))
	ids := make([]uuid.UUID, 0, len(readings))
	for _, r := range readings {
		if !seen[r.MeterID] {
			seen[r.MeterID] = true
			ids = append(ids, r.MeterID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func summarize(items []BatchItemResult) BatchSummary {
	s := BatchSummary{Total: len(items), ValidationRate: decimal.Zero, AverageWarnings: decimal.Zero}
	warnings := 0
	for _, item := range items {
		if !item.Valid {
			s.Invalid++
			continue
		}
		s.Valid++
		if n := len(item.Report.Warnings); n > 0 {
			s.WithWarnings++
			warnings += n
		}
	}
	if s.Total > 0 {
		total := decimal.NewFromInt(int64(s.Total))
		s.ValidationRate = decimal.NewFromInt(int64(s.Valid)).Mul(decimal.NewFromInt(100)).Div(total).Round(2)
		s.AverageWarnings = decimal.NewFromInt(int64(warnings)).Div(total).Round(2)
	}
	return s
}
