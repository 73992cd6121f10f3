package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	StoreBackendMemory   = "memory"
	StoreBackendPostgres = "postgres"
)

// Config captures runtime configuration for the API service.
type Config struct {
	HTTP        HTTPConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Telemetry   TelemetryConfig
	Service     ServiceConfig
	Routing     RoutingConfig
	Idempotency IdempotencyConfig
}

type HTTPConfig struct {
	Port          int
	MetricsPath   string
	ShutdownGrace int
}

type DatabaseConfig struct {
	Backend        string
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

// NATSConfig enables the NATS notification channel when URL is set. Without
// it notifications are only logged and nothing is forwarded.
type NATSConfig struct {
	URL                 string
	SubjectPrefix       string
	NotificationChannel string
	Forward             bool
}

func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

type TelemetryConfig struct {
	LogLevel         string
	OTelEndpoint     string
	EnableTracing    bool
	EnableMetrics    bool
	EnablePrometheus bool
	SampleRate       float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

type RoutingConfig struct {
	Path string
}

type IdempotencyConfig struct {
	TTL time.Duration
}

const (
	defaultHTTPPort            = 8080
	defaultMetricsPath         = "/metrics"
	defaultShutdownGrace       = 15
	defaultStoreBackend        = StoreBackendMemory
	defaultMigrationsPath      = "migrations"
	defaultAutoMigrate         = true
	defaultSubjectPrefix       = "orderbus"
	defaultNotificationChannel = "orderbus.notifications"
	defaultServiceName         = "orderbus-api"
	defaultServiceVersion      = "0.1.0"
	defaultEnvironment         = "development"
	defaultLogLevel            = "info"
	defaultOTelSampleRate      = 1.0
	defaultIdempotencyTTL      = 24 * time.Hour
)

// Load reads configuration from environment variables, applying defaults when needed.
func Load() (*Config, error) {
	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg, err := loadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("loading database config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	idemCfg, err := loadIdempotencyConfig()
	if err != nil {
		return nil, fmt.Errorf("loading idempotency config: %w", err)
	}

	return &Config{
		HTTP:        httpCfg,
		Database:    dbCfg,
		NATS:        loadNATSConfig(),
		Telemetry:   telCfg,
		Service:     loadServiceConfig(),
		Routing:     RoutingConfig{Path: os.Getenv("ROUTING_CONFIG_PATH")},
		Idempotency: idemCfg,
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port := defaultHTTPPort
	if value, ok := os.LookupEnv("API_HTTP_PORT"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_HTTP_PORT: %w", err)
		}
		port = parsed
	}

	shutdownGrace := defaultShutdownGrace
	if value, ok := os.LookupEnv("API_SHUTDOWN_GRACE_SECONDS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_SHUTDOWN_GRACE_SECONDS: %w", err)
		}
		shutdownGrace = parsed
	}

	return HTTPConfig{
		Port:          port,
		MetricsPath:   getEnvOrDefault("API_METRICS_PATH", defaultMetricsPath),
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	backend := getEnvOrDefault("EVENT_STORE_BACKEND", defaultStoreBackend)
	if backend != StoreBackendMemory && backend != StoreBackendPostgres {
		return DatabaseConfig{}, fmt.Errorf("invalid EVENT_STORE_BACKEND %q: want %s or %s",
			backend, StoreBackendMemory, StoreBackendPostgres)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	return DatabaseConfig{
		Backend:        backend,
		URL:            databaseURL,
		AutoMigrate:    getBoolEnv("AUTO_MIGRATE", defaultAutoMigrate),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath),
	}, nil
}

func loadNATSConfig() NATSConfig {
	return NATSConfig{
		URL:                 os.Getenv("NATS_URL"),
		SubjectPrefix:       getEnvOrDefault("NATS_SUBJECT_PREFIX", defaultSubjectPrefix),
		NotificationChannel: getEnvOrDefault("NOTIFICATION_CHANNEL", defaultNotificationChannel),
		Forward:             getBoolEnv("NATS_FORWARD_EVENTS", false),
	}
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:         getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		OTelEndpoint:     getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EnableTracing:    getBoolEnv("OTEL_ENABLE_TRACING", true),
		EnableMetrics:    getBoolEnv("OTEL_ENABLE_METRICS", true),
		EnablePrometheus: getBoolEnv("PROMETHEUS_ENABLED", true),
		SampleRate:       sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func loadIdempotencyConfig() (IdempotencyConfig, error) {
	ttl := defaultIdempotencyTTL
	if value, ok := os.LookupEnv("IDEMPOTENCY_TTL"); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return IdempotencyConfig{}, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
		}
		ttl = parsed
	}
	return IdempotencyConfig{TTL: ttl}, nil
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "orderbus")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}
