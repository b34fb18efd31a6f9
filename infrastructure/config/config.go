package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

// Lock modes
const (
	LockLocal    = "local"
	LockDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// Storage
	StoreDriver   string
	SQLitePath    string
	AWSRegion     string
	DynamoDBTable string
	LocksTable    string
	LockMode      string

	// Messaging
	EventBusName string
	EventSource  string

	// Lambda configuration
	IsLambda           bool
	LambdaFunctionName string
	ColdStartTimeout   int // milliseconds

	// Logging
	LogLevel string

	// Authentication
	JWTSecret   string
	JWTIssuer   string
	SupabaseURL string
	SupabaseKey string

	// Tunables file merged over the domain defaults
	TunablesFile string
	// Ritual catalog and request templates override
	ContentFile string

	// Circuit breaker around the store
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	// Feature flags
	EnableMetrics    bool
	EnableTracing    bool
	EnableCORS       bool
	EnableMonitor    bool
	EnablePrometheus bool
	MetricsNamespace string
	TracingService   string
	AllowedOrigins   string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		StoreDriver:   getEnv("STORE_DRIVER", StoreMemory),
		SQLitePath:    getEnv("SQLITE_PATH", "companionlife.db"),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "companion-life")),
		LocksTable:    getEnv("LOCKS_TABLE", "companion-life-locks"),
		LockMode:      getEnv("LOCK_MODE", LockLocal),

		EventBusName: getEnv("EVENT_BUS_NAME", ""),
		EventSource:  getEnv("EVENT_SOURCE", "companionlife.engine"),

		// Lambda configuration
		IsLambda:           getEnvBool("IS_LAMBDA", false),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),
		ColdStartTimeout:   getEnvInt("COLD_START_TIMEOUT", 3000),

		// Authentication
		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", ""),
		SupabaseURL: getEnv("SUPABASE_URL", ""),
		SupabaseKey: getEnv("SUPABASE_ANON_KEY", ""),

		TunablesFile: getEnv("CADENCE_CONFIG_FILE", ""),
		ContentFile:  getEnv("CONTENT_FILE", ""),

		BreakerMaxFailures: uint32(getEnvInt("BREAKER_MAX_FAILURES", 5)),
		BreakerOpenTimeout: getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		// Logging and features
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		EnableMetrics:    getEnvBool("ENABLE_METRICS", false),
		EnableTracing:    getEnvBool("ENABLE_TRACING", false),
		EnableCORS:       getEnvBool("ENABLE_CORS", true),
		EnableMonitor:    getEnvBool("ENABLE_ESCALATION_MONITOR", true),
		EnablePrometheus: getEnvBool("ENABLE_PROMETHEUS", false),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "CompanionLife"),
		TracingService:   getEnv("TRACING_SERVICE", "companion-life"),
		AllowedOrigins:   getEnv("ALLOWED_ORIGINS", "*"),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreSQLite, StoreDynamoDB:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.LockMode {
	case LockLocal, LockDynamoDB:
	default:
		return fmt.Errorf("unknown LOCK_MODE %q", c.LockMode)
	}
	if c.StoreDriver == StoreSQLite && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" && c.SupabaseURL == "" {
			return fmt.Errorf("JWT_SECRET or SUPABASE_URL is required in production")
		}
		if c.StoreDriver == StoreDynamoDB && c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
		if c.LockMode == LockDynamoDB && c.LocksTable == "" {
			return fmt.Errorf("LOCKS_TABLE is required")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration parses values like "30s" or "5m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
