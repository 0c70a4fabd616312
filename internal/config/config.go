package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	ListenAddr  string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// StoreTimeout bounds each call against the remote usage store.
	StoreTimeout time.Duration

	// QuotaFailClosed denies charges outright when the remote store is
	// unreachable instead of degrading to the in-process fallback store.
	QuotaFailClosed bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthBaseURL string
	AuthAnonKey string
	// IdentitySecret keys the derivation of anonymous identity tokens.
	IdentitySecret string

	LLMBaseURL   string
	LLMAPIKey    string
	LLMModel     string
	SearchAPIKey string
	SearchURL    string
	HeliusAPIKey string
	HeliusRPCURL string

	Accounting AccountingConfig
}

// AccountingConfig controls the usage accounting push exporter.
type AccountingConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewQuotaPolicyHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "vylin"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "vylin"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 4),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 16),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),

		StoreTimeout:    getenvDuration("QUOTA_STORE_TIMEOUT", 800*time.Millisecond),
		QuotaFailClosed: getenvBool("QUOTA_FAIL_CLOSED", false),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		AuthBaseURL:    strings.TrimSpace(getenv("AUTH_BASE_URL", "")),
		AuthAnonKey:    strings.TrimSpace(getenv("AUTH_ANON_KEY", "")),
		IdentitySecret: strings.TrimSpace(getenv("IDENTITY_SECRET", "")),

		LLMBaseURL:   getenv("LLM_BASE_URL", "https://api.x.ai/v1"),
		LLMAPIKey:    strings.TrimSpace(getenv("LLM_API_KEY", "")),
		LLMModel:     getenv("LLM_MODEL", "grok-4-1-fast-reasoning"),
		SearchAPIKey: strings.TrimSpace(getenv("EXA_API_KEY", "")),
		SearchURL:    getenv("EXA_BASE_URL", "https://api.exa.ai"),
		HeliusAPIKey: strings.TrimSpace(getenv("HELIUS_API_KEY", "")),
		HeliusRPCURL: getenv("HELIUS_RPC_URL", "https://mainnet.helius-rpc.com"),

		Accounting: AccountingConfig{
			Enabled:   getenvBool("ACCOUNTING_METRICS_ENABLED", false),
			Exporter:  strings.ToLower(getenv("ACCOUNTING_METRICS_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("ACCOUNTING_METRICS_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("ACCOUNTING_METRICS_AUTH_TOKEN", "")),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
