package handler

import (
	"context"
	"errors"
	"net/http"

	appbilling "github.com/erp/utility-billing/internal/application/billing"
	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/interfaces/http/dto"
	"github.com/erp/utility-billing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ReadingValidator checks meter readings
type ReadingValidator interface {
	ValidateReading(ctx context.Context, reading billing.MeterReading) (*appbilling.ReadingReport, error)
	ValidateBatch(ctx context.Context, readings []billing.MeterReading) (*appbilling.BatchValidationResult, error)
}

// ReadingHandler serves meter reading validation
type ReadingHandler struct {
	BaseHandler
	validator ReadingValidator
}

// NewReadingHandler creates a new ReadingHandler
func NewReadingHandler(validator ReadingValidator) *ReadingHandler {
	return &ReadingHandler{validator: validator}
}

// Validate checks one reading. A rejected reading answers 422 with the
// failing rule.
//
//	POST /billing/readings/validate
func (h *ReadingHandler) Validate(c *gin.Context) {
	var req dto.MeterReadingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	reading, err := req.ToDomain()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	report, err := h.validator.ValidateReading(c.Request.Context(), reading)
	var rejection *appbilling.ReadingRejection
	if errors.As(err, &rejection) {
		resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeReadingRejected, rejection.Message, middleware.GetRequestID(c))
		resp.Error.Details = []dto.ValidationDetail{{Field: rejection.Rule, Message: rejection.Message, Code: rejection.Code}}
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// ValidateBatch checks many readings. Individual rejections are reported per
// item; only infrastructure failures fail the request.
//
//	POST /billing/readings/validate-batch
func (h *ReadingHandler) ValidateBatch(c *gin.Context) {
	var req dto.BatchValidateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	readings := make([]billing.MeterReading, 0, len(req.Readings))
	for _, r := range req.Readings {
		reading, err := r.ToDomain()
		if err != nil {
			h.HandleError(c, err)
			return
		}
		readings = append(readings, reading)
	}

	result, err := h.validator.ValidateBatch(c.Request.Context(), readings)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
