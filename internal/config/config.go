package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Mode        string
	Environment string

	HTTPAddr string

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
	DBConnMaxIdleTime int

	Generator GeneratorConfig
	RateLimit RateLimitConfig
}

// GeneratorConfig points the alternative generator at an OpenAI-compatible
// chat completions endpoint. An empty APIKey disables the provider, which
// leaves only the fallback path.
type GeneratorConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

// RateLimitConfig configures the redis token bucket in front of decision
// creation.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DecisionCreateRate  float64
	DecisionCreateBurst int
	LockTTLSeconds      int64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	mode := normalizeMode(getenv("APP_MODE", ModeProd))
	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "zarver"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Mode:              mode,
		Environment:       environment,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "zarver"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),
		Generator: GeneratorConfig{
			BaseURL:     getenv("GENERATOR_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      strings.TrimSpace(getenv("GENERATOR_API_KEY", "")),
			Model:       getenv("GENERATOR_MODEL", "gemini-2.0-flash"),
			Timeout:     time.Duration(getenvInt64("GENERATOR_TIMEOUT_SECONDS", 10)) * time.Second,
			Temperature: getenvFloat("GENERATOR_TEMPERATURE", 0.7),
		},
		RateLimit: RateLimitConfig{
			Enabled:             getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:           strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword:       strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:             getenvInt("REDIS_DB", 0),
			DecisionCreateRate:  getenvFloat("RATE_LIMIT_DECISION_CREATE_RATE", 1),
			DecisionCreateBurst: getenvInt("RATE_LIMIT_DECISION_CREATE_BURST", 5),
			LockTTLSeconds:      getenvInt64("RATE_LIMIT_LOCK_TTL_SECONDS", 10),
		},
	}

	return cfg
}

const (
	ModeDev  = "dev"
	ModeProd = "prod"
)

func (c Config) IsDev() bool {
	return c.Mode == ModeDev
}

func normalizeMode(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case ModeDev, "development", "local":
		return ModeDev
	default:
		return ModeProd
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
