package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/schoolhub/schoolhub/pkg/timeutil"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// BackendKind selects where the store persists.
type BackendKind string

const (
	// BackendLocal is the embedded badger database.
	BackendLocal BackendKind = "local"
	// BackendRemote is PostgreSQL.
	BackendRemote BackendKind = "remote"
)

// Config holds all application configuration.
type Config struct {
	App AppConfig

	// Backend picks Local or Database.
	Backend BackendKind

	Database DatabaseConfig
	Local    LocalConfig
	Redis    RedisConfig

	Academic AcademicConfig
	Store    StoreConfig
	HTTP     HTTPConfig

	Observability ObservabilityConfig
}

// AppConfig contains general application settings.
type AppConfig struct {
	Name            string
	Environment     Environment
	Debug           bool
	Timezone        string
	Location        *time.Location
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains PostgreSQL settings for the remote backend.
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LocalConfig contains settings for the embedded backend.
type LocalConfig struct {
	Dir      string
	InMemory bool
}

// RedisConfig contains the KPI cache connection.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
	Disabled bool
}

// AcademicConfig describes the billing cycle.
type AcademicConfig struct {
	// Periods in cycle order, e.g. "September,October,...,May".
	Periods []string

	// GracePeriods is how many of the most recent periods may still be
	// unpaid without the student counting as late.
	GracePeriods int

	// CurrentPeriod pins the current period instead of following the clock.
	CurrentPeriod string
}

// StoreConfig tunes the write-behind queue and background refresh.
type StoreConfig struct {
	QueueSize       int
	RetryAttempts   int
	WriteTimeout    time.Duration
	RefreshInterval time.Duration
}

// HTTPConfig contains the API listener settings.
type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigin   string
}

// Addr returns the listen address in "host:port" format.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ObservabilityConfig contains logging settings.
type ObservabilityConfig struct {
	LogLevel string
}

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		App:           loadAppConfig(),
		Backend:       BackendKind(strings.ToLower(getEnv("STORE_BACKEND", string(BackendLocal)))),
		Database:      loadDatabaseConfig(),
		Local:         loadLocalConfig(),
		Redis:         loadRedisConfig(),
		Academic:      loadAcademicConfig(),
		Store:         loadStoreConfig(),
		HTTP:          loadHTTPConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))
	timezone := getEnv("APP_TIMEZONE", "UTC")

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	return AppConfig{
		Name:            getEnv("APP_NAME", "schoolhub"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Timezone:        timezone,
		Location:        loc,
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	url := getEnv("DATABASE_URL", "")
	if url == "" {
		host := getEnv("DB_HOST", "")
		port := getEnv("DB_PORT", "5432")
		user := getEnv("DB_USER", "")
		pass := getEnv("DB_PASSWORD", "")
		name := getEnv("DB_NAME", "postgres")
		sslmode := getEnv("DB_SSLMODE", "require")

		if host != "" && user != "" {
			url = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
				user, pass, host, port, name, sslmode)
		}
	}

	return DatabaseConfig{
		URL:             url,
		MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		MinConns:        getEnvInt("DB_MIN_CONNS", 1),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadLocalConfig() LocalConfig {
	return LocalConfig{
		Dir:      getEnv("LOCAL_DATA_DIR", "./data"),
		InMemory: getEnvBool("LOCAL_IN_MEMORY", false),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnvInt("REDIS_PORT", 6379),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
		PoolSize: getEnvInt("REDIS_POOL_SIZE", 5),
		Timeout:  getEnvDuration("REDIS_TIMEOUT", 3*time.Second),
		Disabled: getEnvBool("REDIS_DISABLED", true),
	}
}

func loadAcademicConfig() AcademicConfig {
	return AcademicConfig{
		Periods:       getEnvStringSlice("ACADEMIC_PERIODS", timeutil.MonthNames()),
		GracePeriods:  getEnvInt("ACADEMIC_GRACE_PERIODS", 0),
		CurrentPeriod: getEnv("ACADEMIC_CURRENT_PERIOD", ""),
	}
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		QueueSize:       getEnvInt("STORE_QUEUE_SIZE", 256),
		RetryAttempts:   getEnvInt("STORE_RETRY_ATTEMPTS", 3),
		WriteTimeout:    getEnvDuration("STORE_WRITE_TIMEOUT", 10*time.Second),
		RefreshInterval: getEnvDuration("STORE_REFRESH_INTERVAL", 0),
	}
}

func loadHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Host:         getEnv("HTTP_HOST", "0.0.0.0"),
		Port:         getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		CORSOrigin:   getEnv("HTTP_CORS_ORIGIN", "*"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	switch c.Backend {
	case BackendLocal:
		if !c.Local.InMemory && c.Local.Dir == "" {
			errs = append(errs, "LOCAL_DATA_DIR is required unless LOCAL_IN_MEMORY is set")
		}
	case BackendRemote:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required for the remote backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND must be %q or %q, got %q", BackendLocal, BackendRemote, c.Backend))
	}

	if len(c.Academic.Periods) == 0 {
		errs = append(errs, "ACADEMIC_PERIODS must list at least one period")
	}
	if n := len(c.Academic.Periods); c.Academic.GracePeriods < 0 || (n > 0 && c.Academic.GracePeriods >= n) {
		errs = append(errs, "ACADEMIC_GRACE_PERIODS must be between 0 and the number of periods minus one")
	}
	if c.Academic.CurrentPeriod != "" && !containsFold(c.Academic.Periods, c.Academic.CurrentPeriod) {
		errs = append(errs, fmt.Sprintf("ACADEMIC_CURRENT_PERIOD %q is not one of ACADEMIC_PERIODS", c.Academic.CurrentPeriod))
	}

	if c.Store.QueueSize <= 0 {
		errs = append(errs, "STORE_QUEUE_SIZE must be positive")
	}
	if c.Store.RetryAttempts <= 0 {
		errs = append(errs, "STORE_RETRY_ATTEMPTS must be positive")
	}
	if c.Store.RefreshInterval < 0 {
		errs = append(errs, "STORE_REFRESH_INTERVAL cannot be negative")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, "HTTP_PORT must be 1-65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		result = append(result, p)
	}
	return result
}
