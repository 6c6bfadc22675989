package logger

import (
	"context"

	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// contextKey is a type for context keys used by the logger package
type contextKey string

const (
	// LoggerKey is the context key for the logger
	LoggerKey contextKey = "logger"
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// CalculationIDKey is the context key for the calculation being run
	CalculationIDKey contextKey = "calculation_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context, returns a no-op logger if
// not found
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID adds request ID to context and returns enriched logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// WithCalculationID tags the context and logger with a calculation ID
func WithCalculationID(ctx context.Context, logger *zap.Logger, calculationID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, CalculationIDKey, calculationID)
	enriched := logger.With(zap.String("calculation_id", calculationID))
	return WithContext(ctx, enriched), enriched
}

// WithBuildingID tags the logger with the building reference. The raw ID is
// never logged.
func WithBuildingID(ctx context.Context, logger *zap.Logger, buildingID uuid.UUID) (context.Context, *zap.Logger) {
	enriched := logger.With(zap.String("building_ref", billing.BuildingRef(buildingID)))
	return WithContext(ctx, enriched), enriched
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetCalculationID retrieves calculation ID from context
func GetCalculationID(ctx context.Context) string {
	if id, ok := ctx.Value(CalculationIDKey).(string); ok {
		return id
	}
	return ""
}
