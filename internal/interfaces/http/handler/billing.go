package handler

import (
	"context"
	"net/http"

	appbilling "github.com/erp/utility-billing/internal/application/billing"
	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/erp/utility-billing/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillCalculator prices consumption and manages the result cache
type BillCalculator interface {
	Calculate(ctx context.Context, req appbilling.CalculationRequest) (*billing.CalculationResult, error)
	CalculateForConfiguration(ctx context.Context, configID uuid.UUID, consumption billing.ConsumptionData, period billing.BillingPeriod) (*billing.CalculationResult, error)
	ClearConfigurationCache(ctx context.Context, configID uuid.UUID) (int, error)
	ClearAll(ctx context.Context) (int, error)
}

// ConfigurationValidator checks service configurations
type ConfigurationValidator interface {
	ValidateConfiguration(ctx context.Context, cfg *billing.ServiceConfiguration) strategy.ValidationResult
}

// CostSplitter distributes a shared cost across properties
type CostSplitter interface {
	Distribute(ctx context.Context, cost decimal.Decimal, properties []billing.Property, method billing.DistributionMethod, opts appbilling.DistributeOptions) (*billing.DistributionResult, error)
}

// BillingHandler serves bill calculation, configuration validation and cost
// distribution
type BillingHandler struct {
	BaseHandler
	calculator  BillCalculator
	validator   ConfigurationValidator
	distributor CostSplitter
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(calculator BillCalculator, validator ConfigurationValidator, distributor CostSplitter) *BillingHandler {
	return &BillingHandler{
		calculator:  calculator,
		validator:   validator,
		distributor: distributor,
	}
}

// Calculate prices consumption for a period. The request names either a
// stored configuration by ID or carries one inline.
//
//	POST /billing/calculate
func (h *BillingHandler) Calculate(c *gin.Context) {
	var req dto.CalculateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if (req.ConfigurationID == "") == (req.Configuration == nil) {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Exactly one of configurationId or configuration is required")
		return
	}

	consumption, err := req.Consumption.ToDomain()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	period, err := req.Period.ToDomain()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var result *billing.CalculationResult
	if req.Configuration != nil {
		result, err = h.calculator.Calculate(c.Request.Context(), appbilling.CalculationRequest{
			Configuration: req.Configuration,
			Consumption:   consumption,
			Period:        period,
		})
	} else {
		result, err = h.calculator.CalculateForConfiguration(c.Request.Context(), uuid.MustParse(req.ConfigurationID), consumption, period)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ValidateConfiguration runs the configuration rule set. An invalid
// configuration is still a 200; the verdict is in the body.
//
//	POST /billing/configurations/validate
func (h *BillingHandler) ValidateConfiguration(c *gin.Context) {
	var cfg billing.ServiceConfiguration
	if !h.BindJSON(c, &cfg) {
		return
	}
	h.Success(c, h.validator.ValidateConfiguration(c.Request.Context(), &cfg))
}

// Distribute splits a shared cost across the listed properties
//
//	POST /billing/distribute
func (h *BillingHandler) Distribute(c *gin.Context) {
	var req dto.DistributeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	overrides, err := req.ConsumptionOverrides()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.distributor.Distribute(c.Request.Context(), req.Cost, req.PropertiesToDomain(),
		billing.DistributionMethod(req.Method), appbilling.DistributeOptions{
			Consumption: overrides,
			Formula:     req.Formula,
		})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ClearConfigurationCache drops cached results of one configuration
//
//	DELETE /billing/cache/configurations/:id
func (h *BillingHandler) ClearConfigurationCache(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	n, err := h.calculator.ClearConfigurationCache(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.CacheClearResponse{Removed: n})
}

// ClearCache drops every cached calculation result
//
//	DELETE /billing/cache
func (h *BillingHandler) ClearCache(c *gin.Context) {
	n, err := h.calculator.ClearAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.CacheClearResponse{Removed: n})
}
