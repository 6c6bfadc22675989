package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	appbilling "github.com/erp/utility-billing/internal/application/billing"
	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared"
	"github.com/erp/utility-billing/internal/infrastructure/config"
	"github.com/erp/utility-billing/internal/infrastructure/logger"
	"github.com/erp/utility-billing/internal/infrastructure/persistence"
	"github.com/erp/utility-billing/internal/infrastructure/strategy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath  string
		logLevel    string
		serviceFile string
		serviceID   string
		consumption string
		zones       string
		month       string
	)

	flag.StringVar(&configPath, "config", "", "Path to config.toml (default: search ./, ./configs, /app)")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.StringVar(&serviceFile, "service", "", "Service configuration JSON file")
	flag.StringVar(&serviceID, "id", "", "ID of a stored service configuration")
	flag.StringVar(&consumption, "consumption", "", "Total consumption, e.g. 123.45")
	flag.StringVar(&zones, "zones", "", "Per-zone consumption, e.g. day=70,night=30")
	flag.StringVar(&month, "month", time.Now().UTC().Format(monthLayout), "Billing month (YYYY-MM)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := persistence.NewDatabase(&cfg.Database, log, logger.MapGormLogLevel(logLevel))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	ctx := context.Background()
	switch command {
	case "migrate":
		if err := db.Migrate(); err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}
		log.Info("Billing tables migrated")

	case "calculate":
		svc, err := newServices(cfg, db, log)
		if err != nil {
			log.Fatal("Failed to initialize services", zap.Error(err))
		}
		data, err := parseConsumption(consumption, zones)
		if err != nil {
			log.Fatal("Invalid consumption", zap.Error(err))
		}
		period, err := parsePeriod(month)
		if err != nil {
			log.Fatal("Invalid month", zap.Error(err))
		}

		var result *billing.CalculationResult
		switch {
		case serviceFile != "" && serviceID != "":
			log.Fatal("Use either -service or -id, not both")
		case serviceFile != "":
			sc, err := readServiceConfiguration(serviceFile)
			if err != nil {
				log.Fatal("Failed to read service configuration", zap.Error(err))
			}
			result, err = svc.calculation.Calculate(ctx, appbilling.CalculationRequest{
				Configuration: sc,
				Consumption:   data,
				Period:        period,
			})
			if err != nil {
				log.Fatal("Calculation failed", zap.Error(err))
			}
		case serviceID != "":
			id, err := uuid.Parse(serviceID)
			if err != nil {
				log.Fatal("Invalid -id", zap.Error(err))
			}
			result, err = svc.calculation.CalculateForConfiguration(ctx, id, data, period)
			if err != nil {
				log.Fatal("Calculation failed", zap.Error(err))
			}
		default:
			log.Fatal("One of -service or -id is required")
		}
		printJSON(log, result)

	case "validate":
		if serviceFile == "" {
			log.Fatal("-service is required")
		}
		svc, err := newServices(cfg, db, log)
		if err != nil {
			log.Fatal("Failed to initialize services", zap.Error(err))
		}
		sc, err := readServiceConfiguration(serviceFile)
		if err != nil {
			log.Fatal("Failed to read service configuration", zap.Error(err))
		}
		verdict := svc.validation.ValidateConfiguration(ctx, sc)
		printJSON(log, verdict)
		if !verdict.IsValid {
			os.Exit(2)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

type services struct {
	calculation *appbilling.CalculationService
	validation  *appbilling.ValidationEngine
}

// newServices wires the calculation stack without a result cache or metrics
func newServices(cfg *config.Config, db *persistence.Database, log *zap.Logger) (*services, error) {
	repos := db.Repositories()
	strategies, err := strategy.NewRegistryWithDefaults()
	if err != nil {
		return nil, err
	}
	adjuster, err := billing.NewSeasonalAdjuster(cfg.Seasons.SeasonConfig())
	if err != nil {
		return nil, err
	}
	clock := shared.SystemClock()

	calculator := appbilling.NewPricingCalculator(strategies, adjuster, nil, clock, log, cfg.PricingCalculatorConfig())
	validation := appbilling.NewValidationEngine(repos.Configurations, repos.Tariffs, repos.Meters, repos.Readings,
		adjuster, clock, log, nil, cfg.ValidationConfig())
	calculation := appbilling.NewCalculationService(repos.Configurations, validation, calculator,
		nil, repos.Audits, clock, log, nil, cfg.CalculationServiceConfig())
	return &services{calculation: calculation, validation: validation}, nil
}

func readServiceConfiguration(path string) (*billing.ServiceConfiguration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc billing.ServiceConfiguration
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &sc, nil
}

func printJSON(log *zap.Logger, v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal("Failed to write output", zap.Error(err))
	}
}

func printUsage() {
	fmt.Println(`Utility Billing Calculator

Usage:
  billing-calc [flags] <command>

Commands:
  calculate   Price consumption for one month
  validate    Check a service configuration file
  migrate     Create or update the billing tables

Flags:
  -config string        Path to config.toml
  -log-level string     Log level: debug, info, warn, error (default: warn)
  -service string       Service configuration JSON file
  -id string            ID of a stored service configuration
  -consumption string   Total consumption
  -zones string         Per-zone consumption, e.g. day=70,night=30
  -month string         Billing month, YYYY-MM (default: current month)

Environment Variables:
  UBC_DATABASE_DRIVER, UBC_DATABASE_PATH, UBC_DATABASE_HOST, ...

Examples:
  # Price 120 kWh against a configuration file
  billing-calc -service electricity.json -consumption 120 -month 2024-03 calculate

  # Price a stored time-of-use configuration
  billing-calc -id 6f1c... -zones day=80,night=40 calculate`)
}
