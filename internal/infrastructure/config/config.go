package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	appbilling "github.com/erp/utility-billing/internal/application/billing"
	"github.com/erp/utility-billing/internal/domain/billing"
	"github.com/erp/utility-billing/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Billing    BillingConfig
	Seasons    SeasonsConfig
	Gyvatukas  GyvatukasConfig
	Validation ValidationConfig
	Metrics    MetricsConfig
	HTTP       HTTPConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, console
	Output   string // stdout, stderr, or file path
	Sampling bool   // thin out repeated entries, e.g. per-reading batch warnings
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file, ":memory:" for tests
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig selects and tunes the result cache
type CacheConfig struct {
	Driver       string // redis, memory
	Enabled      bool
	TTL          time.Duration
	Prefix       string
	GyvatukasTTL time.Duration
}

// BillingConfig holds calculation bounds
type BillingConfig struct {
	Currency       string
	MinConsumption decimal.Decimal
	MaxConsumption decimal.Decimal
}

// SeasonsConfig holds the inclusive month ranges of the seasons
type SeasonsConfig struct {
	HeatingStartMonth int
	HeatingEndMonth   int
	SummerStartMonth  int
	SummerEndMonth    int
}

// GyvatukasConfig holds the circulation fee constants
type GyvatukasConfig struct {
	SpecificHeat       decimal.Decimal
	TemperatureDelta   decimal.Decimal
	EnergyRate         decimal.Decimal
	DistributionMethod string
}

// ValidationConfig holds meter reading and configuration thresholds
type ValidationConfig struct {
	MinDailyConsumption    decimal.Decimal
	MaxDailyConsumption    decimal.Decimal
	VarianceThreshold      decimal.Decimal
	RateChangeMinDays      int
	MinReadingIntervalDays int
	MaxReadingIntervalDays int
	MaxDecimalPlaces       int
	AllowEstimated         bool
	RequirePhotoForOCR     bool
	MaxBatchSize           int
	HistoryMonths          int
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool
	Namespace string
	Path      string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	CORSOrigins    []string // empty disables cross-origin access
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with UBC_ prefix (e.g., UBC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("UBC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans cannot be told apart from "unset" after reading
	v.SetDefault("cache.enabled", true)
	v.SetDefault("validation.allow_estimated", true)
	v.SetDefault("validation.require_photo_for_ocr", true)
	v.SetDefault("metrics.enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:    v.GetString("log.level"),
			Format:   v.GetString("log.format"),
			Output:   v.GetString("log.output"),
			Sampling: v.GetBool("log.sampling"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Cache: CacheConfig{
			Driver:       v.GetString("cache.driver"),
			Enabled:      v.GetBool("cache.enabled"),
			TTL:          v.GetDuration("cache.ttl"),
			Prefix:       v.GetString("cache.prefix"),
			GyvatukasTTL: v.GetDuration("cache.gyvatukas_ttl"),
		},
		Billing: BillingConfig{
			Currency: v.GetString("billing.currency"),
		},
		Seasons: SeasonsConfig{
			HeatingStartMonth: v.GetInt("seasons.heating_start_month"),
			HeatingEndMonth:   v.GetInt("seasons.heating_end_month"),
			SummerStartMonth:  v.GetInt("seasons.summer_start_month"),
			SummerEndMonth:    v.GetInt("seasons.summer_end_month"),
		},
		Gyvatukas: GyvatukasConfig{
			DistributionMethod: v.GetString("gyvatukas.distribution_method"),
		},
		Validation: ValidationConfig{
			RateChangeMinDays:      v.GetInt("validation.rate_change_min_days"),
			MinReadingIntervalDays: v.GetInt("validation.min_reading_interval_days"),
			MaxReadingIntervalDays: v.GetInt("validation.max_reading_interval_days"),
			MaxDecimalPlaces:       v.GetInt("validation.max_decimal_places"),
			AllowEstimated:         v.GetBool("validation.allow_estimated"),
			RequirePhotoForOCR:     v.GetBool("validation.require_photo_for_ocr"),
			MaxBatchSize:           v.GetInt("validation.max_batch_size"),
			HistoryMonths:          v.GetInt("validation.history_months"),
		},
		Metrics: MetricsConfig{
			Enabled:   v.GetBool("metrics.enabled"),
			Namespace: v.GetString("metrics.namespace"),
			Path:      v.GetString("metrics.path"),
		},
		HTTP: HTTPConfig{
			Port:           v.GetString("http.port"),
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			CORSOrigins:    v.GetStringSlice("http.cors_origins"),
		},
	}

	decimals := []struct {
		key      string
		fallback string
		dst      *decimal.Decimal
	}{
		{"billing.min_consumption", "0", &cfg.Billing.MinConsumption},
		{"billing.max_consumption", "999999.99", &cfg.Billing.MaxConsumption},
		{"gyvatukas.specific_heat", "1.163", &cfg.Gyvatukas.SpecificHeat},
		{"gyvatukas.temperature_delta", "45", &cfg.Gyvatukas.TemperatureDelta},
		{"gyvatukas.energy_rate", "0.15", &cfg.Gyvatukas.EnergyRate},
		{"validation.min_daily_consumption", "0", &cfg.Validation.MinDailyConsumption},
		{"validation.max_daily_consumption", "1000", &cfg.Validation.MaxDailyConsumption},
		{"validation.variance_threshold", "0.3", &cfg.Validation.VarianceThreshold},
	}
	for _, d := range decimals {
		value, err := decimalValue(v, d.key, d.fallback)
		if err != nil {
			return nil, err
		}
		*d.dst = value
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decimalValue reads key as a decimal string. Numbers in TOML are read
// through their string form so no float rounding is involved.
func decimalValue(v *viper.Viper, key, fallback string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		raw = fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal number, got %q", key, raw)
	}
	return d, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "utility-billing"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "utility_billing"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "utility_billing.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = "redis"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "universal_billing"
	}
	if cfg.Cache.GyvatukasTTL == 0 {
		cfg.Cache.GyvatukasTTL = 24 * time.Hour
	}
	if cfg.Billing.Currency == "" {
		cfg.Billing.Currency = string(valueobject.DefaultCurrency)
	}
	seasons := billing.DefaultSeasonConfig()
	if cfg.Seasons.HeatingStartMonth == 0 {
		cfg.Seasons.HeatingStartMonth = seasons.HeatingStartMonth
	}
	if cfg.Seasons.HeatingEndMonth == 0 {
		cfg.Seasons.HeatingEndMonth = seasons.HeatingEndMonth
	}
	if cfg.Seasons.SummerStartMonth == 0 {
		cfg.Seasons.SummerStartMonth = seasons.SummerStartMonth
	}
	if cfg.Seasons.SummerEndMonth == 0 {
		cfg.Seasons.SummerEndMonth = seasons.SummerEndMonth
	}
	if cfg.Gyvatukas.DistributionMethod == "" {
		cfg.Gyvatukas.DistributionMethod = string(billing.DistributionEqual)
	}
	if cfg.Validation.RateChangeMinDays == 0 {
		cfg.Validation.RateChangeMinDays = 30
	}
	if cfg.Validation.MinReadingIntervalDays == 0 {
		cfg.Validation.MinReadingIntervalDays = 1
	}
	if cfg.Validation.MaxReadingIntervalDays == 0 {
		cfg.Validation.MaxReadingIntervalDays = 35
	}
	if cfg.Validation.MaxDecimalPlaces == 0 {
		cfg.Validation.MaxDecimalPlaces = 3
	}
	if cfg.Validation.MaxBatchSize == 0 {
		cfg.Validation.MaxBatchSize = 100
	}
	if cfg.Validation.HistoryMonths == 0 {
		cfg.Validation.HistoryMonths = 12
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "utility_billing"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Cache.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("cache.driver must be redis or memory, got %q", c.Cache.Driver)
	}

	if c.Billing.MinConsumption.IsNegative() {
		return fmt.Errorf("billing.min_consumption cannot be negative")
	}
	if !c.Billing.MaxConsumption.GreaterThan(c.Billing.MinConsumption) {
		return fmt.Errorf("billing.max_consumption (%s) must exceed billing.min_consumption (%s)",
			c.Billing.MaxConsumption, c.Billing.MinConsumption)
	}

	if err := c.Seasons.SeasonConfig().Validate(); err != nil {
		return fmt.Errorf("seasons: %w", err)
	}
	if err := c.GyvatukasConfig().Validate(); err != nil {
		return fmt.Errorf("gyvatukas: %w", err)
	}

	if c.Validation.MinReadingIntervalDays > c.Validation.MaxReadingIntervalDays {
		return fmt.Errorf("validation.min_reading_interval_days (%d) cannot exceed validation.max_reading_interval_days (%d)",
			c.Validation.MinReadingIntervalDays, c.Validation.MaxReadingIntervalDays)
	}
	if c.Validation.MinDailyConsumption.GreaterThan(c.Validation.MaxDailyConsumption) {
		return fmt.Errorf("validation.min_daily_consumption cannot exceed validation.max_daily_consumption")
	}
	if !c.Validation.VarianceThreshold.IsPositive() {
		return fmt.Errorf("validation.variance_threshold must be positive")
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// SeasonConfig converts the month ranges for the seasonal adjuster
func (s SeasonsConfig) SeasonConfig() billing.SeasonConfig {
	return billing.SeasonConfig{
		HeatingStartMonth: s.HeatingStartMonth,
		HeatingEndMonth:   s.HeatingEndMonth,
		SummerStartMonth:  s.SummerStartMonth,
		SummerEndMonth:    s.SummerEndMonth,
	}
}

// CalculationServiceConfig returns the orchestrator settings
func (c *Config) CalculationServiceConfig() appbilling.CalculationServiceConfig {
	return appbilling.CalculationServiceConfig{
		CacheEnabled:   c.Cache.Enabled,
		CacheTTL:       c.Cache.TTL,
		CachePrefix:    c.Cache.Prefix,
		MinConsumption: c.Billing.MinConsumption,
		MaxConsumption: c.Billing.MaxConsumption,
	}
}

// PricingCalculatorConfig returns the calculator settings
func (c *Config) PricingCalculatorConfig() appbilling.PricingCalculatorConfig {
	return appbilling.PricingCalculatorConfig{Currency: valueobject.Currency(c.Billing.Currency)}
}

// GyvatukasConfig returns the circulation fee engine settings
func (c *Config) GyvatukasConfig() appbilling.GyvatukasConfig {
	return appbilling.GyvatukasConfig{
		SpecificHeat:       c.Gyvatukas.SpecificHeat,
		TemperatureDelta:   c.Gyvatukas.TemperatureDelta,
		EnergyRate:         c.Gyvatukas.EnergyRate,
		DistributionMethod: billing.DistributionMethod(c.Gyvatukas.DistributionMethod),
		CacheTTL:           c.Cache.GyvatukasTTL,
		Currency:           valueobject.Currency(c.Billing.Currency),
	}
}

// ValidationConfig returns the validation engine thresholds. Values not
// exposed in the file keep their engine defaults.
func (c *Config) ValidationConfig() appbilling.ValidationConfig {
	vc := appbilling.DefaultValidationConfig()
	vc.MaxConsumption = c.Billing.MaxConsumption
	vc.MinDailyConsumption = c.Validation.MinDailyConsumption
	vc.MaxDailyConsumption = c.Validation.MaxDailyConsumption
	vc.VarianceThreshold = c.Validation.VarianceThreshold
	vc.RateChangeMinDays = c.Validation.RateChangeMinDays
	vc.MinReadingIntervalDays = c.Validation.MinReadingIntervalDays
	vc.MaxReadingIntervalDays = c.Validation.MaxReadingIntervalDays
	vc.MaxDecimalPlaces = c.Validation.MaxDecimalPlaces
	vc.AllowEstimated = c.Validation.AllowEstimated
	vc.RequirePhotoForOCR = c.Validation.RequirePhotoForOCR
	vc.MaxBatchSize = c.Validation.MaxBatchSize
	vc.HistoryMonths = c.Validation.HistoryMonths
	return vc
}
