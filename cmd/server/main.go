package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appbilling "github.com/erp/utility-billing/internal/application/billing"
	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/infrastructure/cache"
	"github.com/erp/utility-billing/internal/infrastructure/config"
	"github.com/erp/utility-billing/internal/infrastructure/logger"
	"github.com/erp/utility-billing/internal/infrastructure/metrics"
	"github.com/erp/utility-billing/internal/infrastructure/persistence"
	"github.com/erp/utility-billing/internal/infrastructure/strategy"
	"github.com/erp/utility-billing/internal/interfaces/http/handler"
	"github.com/erp/utility-billing/internal/interfaces/http/middleware"
	"github.com/erp/utility-billing/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	requestTimeout   = 30 * time.Second
	shutdownTimeout  = 30 * time.Second
	poolStatsPeriod  = 15 * time.Second
	cacheJanitorTick = 5 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		Name:     cfg.App.Name,
		Sampling: cfg.Log.Sampling,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting utility billing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.HTTP.Port),
	)

	// Database, with SQL logging routed to zap
	db, err := persistence.NewDatabase(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully",
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("auto_migrate", cfg.Database.AutoMigrate),
	)
	repos := db.Repositories()

	// Result cache
	var resultCache billing.ResultCache
	if cfg.Cache.Enabled {
		c, err := cache.NewResultCacheFactory(cfg.Cache, cfg.Redis,
			cache.WithLogger(log),
			cache.WithCleanupInterval(cacheJanitorTick),
		).CreateCache()
		if err != nil {
			log.Fatal("Failed to create result cache", zap.Error(err))
		}
		defer func() {
			if err := c.Close(); err != nil {
				log.Error("Error closing result cache", zap.Error(err))
			}
		}()
		resultCache = c
	} else {
		log.Info("Result cache disabled")
	}

	// Metrics. Interface values stay nil when disabled so services fall back
	// to their no-op recorder.
	var (
		recorder       *metrics.Recorder
		billingMetrics appbilling.MetricsRecorder
		httpObserver   middleware.HTTPObserver
	)
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder(metrics.Config{
			Namespace:         cfg.Metrics.Namespace,
			RuntimeCollectors: true,
		})
		billingMetrics = recorder
		httpObserver = recorder
	}

	// Domain services
	strategies, err := strategy.NewRegistryWithDefaults()
	if err != nil {
		log.Fatal("Failed to register billing strategies", zap.Error(err))
	}
	adjuster, err := billing.NewSeasonalAdjuster(cfg.Seasons.SeasonConfig())
	if err != nil {
		log.Fatal("Invalid season configuration", zap.Error(err))
	}
	clock := shared.SystemClock()

	// Application services
	calculator := appbilling.NewPricingCalculator(strategies, adjuster, nil, clock,
		log.Named("pricing"), cfg.PricingCalculatorConfig())
	validationEngine := appbilling.NewValidationEngine(repos.Configurations, repos.Tariffs, repos.Meters,
		repos.Readings, adjuster, clock, log.Named("validation"), billingMetrics, cfg.ValidationConfig())
	calculationService := appbilling.NewCalculationService(repos.Configurations, validationEngine, calculator,
		resultCache, repos.Audits, clock, log.Named("calculation"), billingMetrics, cfg.CalculationServiceConfig())
	distributor := appbilling.NewCostDistributor(strategies, log.Named("distribution"), billingMetrics)
	gyvatukasEngine, err := appbilling.NewGyvatukasEngine(repos.Meters, repos.Readings, adjuster, distributor,
		resultCache, repos.Audits, clock, log.Named("gyvatukas"), billingMetrics, cfg.GyvatukasConfig())
	if err != nil {
		log.Fatal("Invalid gyvatukas configuration", zap.Error(err))
	}
	summerAverage := appbilling.NewSummerAverageService(repos.Buildings, gyvatukasEngine, adjuster, clock,
		log.Named("summer_average"))

	// Gin engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(httpObserver))
	engine.Use(middleware.Secure())
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSOrigins
	engine.Use(middleware.CORS(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.Timeout(requestTimeout))

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, db, strategies)
	engine.GET("/health", systemHandler.Health)
	if recorder != nil {
		engine.GET(cfg.Metrics.Path, gin.WrapH(recorder.Handler()))
	}

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	billingRoutes := router.NewBillingGroup(router.BillingHandlers{
		Billing:  handler.NewBillingHandler(calculationService, validationEngine, distributor),
		Readings: handler.NewReadingHandler(validationEngine),
		Building: handler.NewBuildingHandler(repos.Buildings, gyvatukasEngine, summerAverage),
	})
	r.Register(billingRoutes).
		Register(router.NewSystemGroup(systemHandler))
	r.Setup()
	log.Info("Routes registered", zap.Int("billing_routes", len(billingRoutes.Routes(r.BasePath()))))

	// Connection pool gauges
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if recorder != nil {
		go reportPoolStats(ctx, db, recorder, cfg.Database.Driver, log)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.HTTP.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server exited gracefully")
}

// reportPoolStats publishes connection pool gauges until ctx is done
func reportPoolStats(ctx context.Context, db *persistence.Database, recorder *metrics.Recorder, driver string, log *zap.Logger) {
	ticker := time.NewTicker(poolStatsPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := db.Stats()
			if err != nil {
				log.Warn("Failed to read connection pool stats", zap.Error(err))
				continue
			}
			recorder.SetDBPool(driver, stats.OpenConnections, stats.InUse, stats.Idle)
		}
	}
}
