package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appbilling "github.com/erp/utility-billing/internal/application/billing"
	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/infrastructure/cache"
	"github.com/erp/utility-billing/internal/infrastructure/config"
	"github.com/erp/utility-billing/internal/infrastructure/metrics"
	"github.com/erp/utility-billing/internal/infrastructure/persistence"
	"github.com/erp/utility-billing/internal/infrastructure/strategy"
	"github.com/erp/utility-billing/internal/interfaces/http/dto"
	"github.com/erp/utility-billing/internal/interfaces/http/handler"
	"github.com/erp/utility-billing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

var apiNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type apiFixture struct {
	engine   *gin.Engine
	repos    *persistence.Repositories
	recorder *metrics.Recorder
}

// newAPIFixture serves the billing API over a migrated in-memory SQLite
// database with every service wired as in the server binary
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := zap.NewNop()

	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", AutoMigrate: true}, log, gormlogger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repos := db.Repositories()

	resultCache := cache.NewInMemoryResultCache(time.Minute)
	t.Cleanup(func() { _ = resultCache.Close() })
	recorder := metrics.NewRecorder(metrics.Config{Namespace: "test"})

	strategies, err := strategy.NewRegistryWithDefaults()
	require.NoError(t, err)
	adjuster, err := billing.NewSeasonalAdjuster(billing.DefaultSeasonConfig())
	require.NoError(t, err)
	clock := shared.FixedClock(apiNow)

	calculator := appbilling.NewPricingCalculator(strategies, adjuster, nil, clock, log, appbilling.DefaultPricingCalculatorConfig())
	validation := appbilling.NewValidationEngine(repos.Configurations, repos.Tariffs, repos.Meters, repos.Readings,
		adjuster, clock, log, recorder, appbilling.DefaultValidationConfig())
	calculation := appbilling.NewCalculationService(repos.Configurations, validation, calculator,
		resultCache, repos.Audits, clock, log, recorder, appbilling.DefaultCalculationServiceConfig())
	distributor := appbilling.NewCostDistributor(strategies, log, recorder)
	gyvatukas, err := appbilling.NewGyvatukasEngine(repos.Meters, repos.Readings, adjuster, distributor,
		resultCache, repos.Audits, clock, log, recorder, appbilling.DefaultGyvatukasConfig())
	require.NoError(t, err)
	summer := appbilling.NewSummerAverageService(repos.Buildings, gyvatukas, adjuster, clock, log)

	middleware.SetupValidator()
	engine := gin.New()
	engine.Use(middleware.HTTPMetrics(recorder))
	engine.GET("/metrics", gin.WrapH(recorder.Handler()))

	r := NewRouter(engine)
	r.Register(NewBillingGroup(BillingHandlers{
		Billing:  handler.NewBillingHandler(calculation, validation, distributor),
		Readings: handler.NewReadingHandler(validation),
		Building: handler.NewBuildingHandler(repos.Buildings, gyvatukas, summer),
	})).Setup()

	return &apiFixture{engine: engine, repos: repos, recorder: recorder}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (int, dto.Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func amount(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "amount %v is not a string", v)
	return decimal.RequireFromString(s)
}

func TestBillingAPI_CalculateStoredConfiguration(t *testing.T) {
	f := newAPIFixture(t)
	rate := decimal.RequireFromString("0.5")
	cfg, err := billing.NewServiceConfiguration(billing.ServiceConfigurationParams{
		PropertyID:       uuid.New(),
		UtilityServiceID: uuid.New(),
		ServiceType:      "electricity",
		PricingModel:     billing.PricingModelConsumptionBased,
		RateSchedule:     &billing.ConsumptionBasedSchedule{UnitRate: &rate},
		EffectiveFrom:    time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	}, apiNow)
	require.NoError(t, err)
	require.NoError(t, f.repos.Configurations.Save(context.Background(), cfg))

	body := map[string]any{
		"configurationId": cfg.ID.String(),
		"consumption":     map[string]any{"total": "100"},
		"period":          map[string]any{"month": "2024-03"},
	}

	status, resp := f.do(t, http.MethodPost, "/api/v1/billing/calculate", body)
	require.Equal(t, http.StatusOK, status)
	first := resp.Data.(map[string]any)
	assert.True(t, amount(t, first["totalAmount"]).Equal(decimal.NewFromInt(50)))
	assert.Equal(t, false, first["fromCache"])

	status, resp = f.do(t, http.MethodPost, "/api/v1/billing/calculate", body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp.Data.(map[string]any)["fromCache"])

	status, resp = f.do(t, http.MethodDelete, "/api/v1/billing/cache/configurations/"+cfg.ID.String(), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), resp.Data.(map[string]any)["removed"])

	status, resp = f.do(t, http.MethodPost, "/api/v1/billing/calculate", body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, resp.Data.(map[string]any)["fromCache"])

	t.Run("unknown configuration", func(t *testing.T) {
		missing := map[string]any{
			"configurationId": uuid.NewString(),
			"consumption":     map[string]any{"total": "1"},
			"period":          map[string]any{"month": "2024-03"},
		}
		status, resp := f.do(t, http.MethodPost, "/api/v1/billing/calculate", missing)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})

	t.Run("request metrics are labelled by route", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `route="/api/v1/billing/calculate"`)
		assert.Contains(t, w.Body.String(), `route="/api/v1/billing/cache/configurations/:id"`)
	})
}

func TestBillingAPI_Distribute(t *testing.T) {
	f := newAPIFixture(t)
	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	props := make([]map[string]any, len(ids))
	for i, id := range ids {
		props[i] = map[string]any{"id": id, "areaSqm": "50"}
	}

	status, resp := f.do(t, http.MethodPost, "/api/v1/billing/distribute", map[string]any{
		"cost":       "100",
		"method":     "equal",
		"properties": props,
	})
	require.Equal(t, http.StatusOK, status)

	allocations := resp.Data.(map[string]any)["allocations"].(map[string]any)
	require.Len(t, allocations, 3)
	total := decimal.Zero
	for _, id := range ids {
		share := amount(t, allocations[id])
		assert.True(t, share.Sub(decimal.RequireFromString("33.33")).Abs().LessThanOrEqual(decimal.RequireFromString("0.01")), share.String())
		total = total.Add(share)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(100)), total.String())
}

func TestBillingAPI_ValidateConfiguration(t *testing.T) {
	f := newAPIFixture(t)
	body := map[string]any{
		"id":               uuid.NewString(),
		"propertyId":       uuid.NewString(),
		"utilityServiceId": uuid.NewString(),
		"pricingModel":     "consumption_based",
		"rateSchedule":     map[string]any{"unitRate": "0.12"},
		"effectiveFrom":    "2024-04-01T00:00:00Z",
		"isActive":         true,
		"rules": []map[string]any{
			{"name": "bad", "condition": "occupants > 2", "kind": "surcharge", "amount": "1"},
		},
	}

	status, resp := f.do(t, http.MethodPost, "/api/v1/billing/configurations/validate", body)
	require.Equal(t, http.StatusOK, status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, false, data["is_valid"])

	var fields []string
	for _, e := range data["errors"].([]any) {
		fields = append(fields, e.(map[string]any)["field"].(string))
	}
	assert.Contains(t, fields, "rules[0].condition")
}
