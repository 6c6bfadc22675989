package handler

import (
	"context"
	"time"

	appbilling "github.com/erp/utility-billing/internal/application/billing"
	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/infrastructure/logger"
	"github.com/erp/utility-billing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BuildingFinder loads a building with its properties
type BuildingFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*billing.Building, error)
}

// CirculationCalculator computes the hot-water circulation fee of a building
type CirculationCalculator interface {
	Calculate(ctx context.Context, building *billing.Building, month time.Time) (*appbilling.GyvatukasCalculation, error)
	CalculateBill(ctx context.Context, building *billing.Building, month time.Time, method billing.DistributionMethod) (*appbilling.GyvatukasBill, error)
	ClearBuildingCache(ctx context.Context, buildingID uuid.UUID) (int, error)
}

// SummerAverageCalculator recomputes the stored summer baseline of a building
type SummerAverageCalculator interface {
	CalculateAndStore(ctx context.Context, buildingID uuid.UUID, year int) (decimal.Decimal, error)
}

// BuildingHandler serves the circulation fee endpoints of a building
type BuildingHandler struct {
	BaseHandler
	buildings     BuildingFinder
	engine        CirculationCalculator
	summerAverage SummerAverageCalculator
}

// NewBuildingHandler creates a new BuildingHandler
func NewBuildingHandler(buildings BuildingFinder, engine CirculationCalculator, summerAverage SummerAverageCalculator) *BuildingHandler {
	return &BuildingHandler{
		buildings:     buildings,
		engine:        engine,
		summerAverage: summerAverage,
	}
}

// loadBuilding resolves the :id path parameter, answering the request on failure
func (h *BuildingHandler) loadBuilding(c *gin.Context) (*billing.Building, bool) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return nil, false
	}
	ctx, _ := logger.WithBuildingID(c.Request.Context(), logger.GetGinLogger(c), id)
	c.Request = c.Request.WithContext(ctx)

	building, err := h.buildings.FindByID(ctx, id)
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	return building, true
}

// Gyvatukas returns the circulation energy of a building for a month
//
//	GET /billing/buildings/:id/gyvatukas?month=YYYY-MM
func (h *BuildingHandler) Gyvatukas(c *gin.Context) {
	var q dto.GyvatukasQuery
	if !h.BindQuery(c, &q) {
		return
	}
	month, err := dto.ParseMonth(q.Month)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	building, ok := h.loadBuilding(c)
	if !ok {
		return
	}

	calc, err := h.engine.Calculate(c.Request.Context(), building, month)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, calc)
}

// GyvatukasBill prices a month's circulation fee and allocates it across the
// building's properties
//
//	POST /billing/buildings/:id/gyvatukas/bill
func (h *BuildingHandler) GyvatukasBill(c *gin.Context) {
	var req dto.GyvatukasBillRequest
	if !h.BindJSON(c, &req) {
		return
	}
	month, err := dto.ParseMonth(req.Month)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	building, ok := h.loadBuilding(c)
	if !ok {
		return
	}

	bill, err := h.engine.CalculateBill(c.Request.Context(), building, month, billing.DistributionMethod(req.Method))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, bill)
}

// SummerAverage recomputes and stores the summer circulation baseline
//
//	POST /billing/buildings/:id/summer-average
func (h *BuildingHandler) SummerAverage(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.SummerAverageRequest
	if !h.BindJSON(c, &req) {
		return
	}

	average, err := h.summerAverage.CalculateAndStore(c.Request.Context(), id, req.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.SummerAverageResponse{BuildingID: id, Year: req.Year, Average: average})
}

// ClearCache drops the cached circulation months of a building
//
//	DELETE /billing/buildings/:id/cache
func (h *BuildingHandler) ClearCache(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	n, err := h.engine.ClearBuildingCache(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.CacheClearResponse{Removed: n})
}
