package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SummerAverageService computes the summer circulation baseline of a building
// and stores it for use during the heating season. It is run by a scheduler
// once the summer months are complete.
type SummerAverageService struct {
	buildings billing.BuildingRepository
	engine    *GyvatukasEngine
	adjuster  *billing.SeasonalAdjuster
	clock     shared.Clock
	logger    *zap.Logger
}

// NewSummerAverageService creates a new SummerAverageService
func NewSummerAverageService(
	buildings billing.BuildingRepository,
	engine *GyvatukasEngine,
	adjuster *billing.SeasonalAdjuster,
	clock shared.Clock,
	logger *zap.Logger,
) *SummerAverageService {
	if clock == nil {
		clock = shared.SystemClock()
	}
	return &SummerAverageService{
		buildings: buildings,
		engine:    engine,
		adjuster:  adjuster,
		clock:     clock,
		logger:    logger,
	}
}

// SummerMonths returns the first day of every month of year that is both a
// summer month and outside the heating season
func (s *SummerAverageService) SummerMonths(year int) []time.Time {
	var months []time.Time
	for m := time.January; m <= time.December; m++ {
		if s.adjuster.IsSummer(m) && !s.adjuster.IsHeatingSeason(m) {
			months = append(months, time.Date(year, m, 1, 0, 0, 0, 0, time.UTC))
		}
	}
	return months
}

// CalculateAndStore averages the circulation energy of the summer months of
// year and persists it on the building. Months with no circulation energy do
// not count towards the average.
func (s *SummerAverageService) CalculateAndStore(ctx context.Context, buildingID uuid.UUID, year int) (decimal.Decimal, error) {
	building, err := s.buildings.FindByID(ctx, buildingID)
	if err != nil {
		return decimal.Zero, err
	}

	sum := decimal.Zero
	counted := 0
	for _, month := range s.SummerMonths(year) {
		calc, err := s.engine.CalculateSummer(ctx, building, month)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to calculate %s: %w", month.Format("2006-01"), err)
		}
		if !calc.CirculationEnergy.IsPositive() {
			s.logger.Warn("Summer month without circulation energy",
				zap.String("building", billing.BuildingRef(buildingID)),
				zap.String("month", calc.Month))
			continue
		}
		sum = sum.Add(calc.CirculationEnergy)
		counted++
	}
	if counted == 0 {
		return decimal.Zero, shared.NewDomainError("NO_SUMMER_DATA", fmt.Sprintf("no summer circulation data for %d", year))
	}

	average := valueobject.RoundMoney(sum.Div(decimal.NewFromInt(int64(counted))))
	if err := s.buildings.UpdateSummerAverage(ctx, buildingID, average, s.clock.Now()); err != nil {
		return decimal.Zero, fmt.Errorf("failed to store summer average: %w", err)
	}

	s.logger.Info("Stored summer circulation average",
		zap.String("building", billing.BuildingRef(buildingID)),
		zap.Int("year", year),
		zap.Int("months", counted),
		zap.String("average", average.String()))
	return average, nil
}
