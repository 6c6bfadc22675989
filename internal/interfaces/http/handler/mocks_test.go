package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	appbilling "github.com/erp/utility-billing/internal/application/billing"
	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared/strategy"
	"github.com/erp/utility-billing/internal/interfaces/http/dto"
	"github.com/erp/utility-billing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type mockCalculator struct{ mock.Mock }

func (m *mockCalculator) Calculate(ctx context.Context, req appbilling.CalculationRequest) (*billing.CalculationResult, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*billing.CalculationResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCalculator) CalculateForConfiguration(ctx context.Context, configID uuid.UUID, consumption billing.ConsumptionData, period billing.BillingPeriod) (*billing.CalculationResult, error) {
	args := m.Called(ctx, configID, consumption, period)
	if r := args.Get(0); r != nil {
		return r.(*billing.CalculationResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCalculator) ClearConfigurationCache(ctx context.Context, configID uuid.UUID) (int, error) {
	args := m.Called(ctx, configID)
	return args.Int(0), args.Error(1)
}

func (m *mockCalculator) ClearAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockConfigValidator struct{ mock.Mock }

func (m *mockConfigValidator) ValidateConfiguration(ctx context.Context, cfg *billing.ServiceConfiguration) strategy.ValidationResult {
	return m.Called(ctx, cfg).Get(0).(strategy.ValidationResult)
}

type mockSplitter struct{ mock.Mock }

func (m *mockSplitter) Distribute(ctx context.Context, cost decimal.Decimal, properties []billing.Property, method billing.DistributionMethod, opts appbilling.DistributeOptions) (*billing.DistributionResult, error) {
	args := m.Called(ctx, cost, properties, method, opts)
	if r := args.Get(0); r != nil {
		return r.(*billing.DistributionResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockReadingValidator struct{ mock.Mock }

func (m *mockReadingValidator) ValidateReading(ctx context.Context, reading billing.MeterReading) (*appbilling.ReadingReport, error) {
	args := m.Called(ctx, reading)
	if r := args.Get(0); r != nil {
		return r.(*appbilling.ReadingReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockReadingValidator) ValidateBatch(ctx context.Context, readings []billing.MeterReading) (*appbilling.BatchValidationResult, error) {
	args := m.Called(ctx, readings)
	if r := args.Get(0); r != nil {
		return r.(*appbilling.BatchValidationResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockBuildings struct{ mock.Mock }

func (m *mockBuildings) FindByID(ctx context.Context, id uuid.UUID) (*billing.Building, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*billing.Building), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockCirculation struct{ mock.Mock }

func (m *mockCirculation) Calculate(ctx context.Context, building *billing.Building, month time.Time) (*appbilling.GyvatukasCalculation, error) {
	args := m.Called(ctx, building, month)
	if r := args.Get(0); r != nil {
		return r.(*appbilling.GyvatukasCalculation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCirculation) CalculateBill(ctx context.Context, building *billing.Building, month time.Time, method billing.DistributionMethod) (*appbilling.GyvatukasBill, error) {
	args := m.Called(ctx, building, month, method)
	if r := args.Get(0); r != nil {
		return r.(*appbilling.GyvatukasBill), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCirculation) ClearBuildingCache(ctx context.Context, buildingID uuid.UUID) (int, error) {
	args := m.Called(ctx, buildingID)
	return args.Int(0), args.Error(1)
}

type mockSummerAverage struct{ mock.Mock }

func (m *mockSummerAverage) CalculateAndStore(ctx context.Context, buildingID uuid.UUID, year int) (decimal.Decimal, error) {
	args := m.Called(ctx, buildingID, year)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// serve runs one request through a router holding only route
func serve(t *testing.T, method, route, path string, body any, h gin.HandlerFunc) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	router := gin.New()
	router.Handle(method, route, h)

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp dto.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
