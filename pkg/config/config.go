package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUrl          string
	RedisURL       string
	RedisPassword  string
	JWTSecret      string
	GatewaySecret  string
	GatewayBaseURL string
	Port           string
	Host           string
	Env            string
	AllowedOrigins []string

	// Ledger knobs. Amounts are minor units of DefaultCurrency.
	DefaultCurrency string
	TopupMinAmount  int64
	TopupMaxAmount  int64
	AdjustmentMax   int64
	ApplyMaxRetries int
	PendingTimeout  time.Duration
	SweepInterval   time.Duration
	AllowOverdraft  bool
}

func LoadConfig() Config {
	godotenv.Load()

	return Config{
		DBUrl:          getEnv("DATABASE_URL"),
		RedisURL:       getEnv("REDIS_URL"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		JWTSecret:      getEnv("JWT_SECRET"),
		GatewaySecret:  getEnv("GATEWAY_SECRET"),
		GatewayBaseURL: getEnv("GATEWAY_BASE_URL"),
		Port:           getEnvDefault("PORT", "8080"),
		Host:           getEnv("HOST"),
		Env:            getEnvDefault("ENV", "development"),
		AllowedOrigins: strings.Split(getEnvDefault("ALLOWED_ORIGINS", "*"), ","),

		DefaultCurrency: getEnvDefault("DEFAULT_CURRENCY", "INR"),
		TopupMinAmount:  getEnvInt64("TOPUP_MIN_AMOUNT", 1),               // 0.01
		TopupMaxAmount:  getEnvInt64("TOPUP_MAX_AMOUNT", 10_000_000),      // 100,000.00
		AdjustmentMax:   getEnvInt64("ADJUSTMENT_MAX_AMOUNT", 50_000_000), // 500,000.00
		ApplyMaxRetries: int(getEnvInt64("APPLY_MAX_RETRIES", 5)),
		PendingTimeout:  getEnvDuration("PENDING_TIMEOUT", 30*time.Minute),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		AllowOverdraft:  os.Getenv("ALLOW_OVERDRAFT") == "true",
	}
}

func getEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	panic(fmt.Sprintf("%s is required", key))
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		panic(fmt.Sprintf("%s must be a valid integer", key))
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("%s must be a valid duration", key))
	}
	return parsed
}
