package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	SessionDuration time.Duration
	SessionPrice    string

	PaymentEnabled bool
	PaymentAddress string
	PaymentNetwork string
	FacilitatorURL string

	EthRPCURL string

	RobotTimeout        time.Duration
	CameraFrameInterval time.Duration

	CORSOrigins     []string
	RateLimitPerMin int

	RedisAddr   string
	PostgresDSN string

	IdempotencyTTL     time.Duration
	IdempotencyLockTTL time.Duration

	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment. REDIS_ADDR and POSTGRES_DSN
// are opt-in: leaving them unset keeps the idempotency store and the rover
// catalog in memory.
func Load() Config {
	return Config{
		HTTPAddr:     envOrDefault("ROVERGATE_HTTP_ADDR", ":8000"),
		ReadTimeout:  durationOrDefault("ROVERGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: durationOrDefault("ROVERGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:  durationOrDefault("ROVERGATE_IDLE_TIMEOUT", 60*time.Second),

		SessionDuration: durationOrDefault("ROVERGATE_SESSION_DURATION", 10*time.Minute),
		SessionPrice:    envOrDefault("ROVERGATE_SESSION_PRICE", "$0.10"),

		PaymentEnabled: boolOrDefault("ROVERGATE_PAYMENT_ENABLED", false),
		PaymentAddress: strings.ToLower(strings.TrimSpace(os.Getenv("ROVERGATE_PAYMENT_ADDRESS"))),
		PaymentNetwork: envOrDefault("ROVERGATE_PAYMENT_NETWORK", "base-sepolia"),
		FacilitatorURL: envOrDefault("ROVERGATE_FACILITATOR_URL", "https://x402.org/facilitator"),

		EthRPCURL: envOrDefault("ROVERGATE_ETH_RPC_URL", "https://ethereum-rpc.publicnode.com"),

		RobotTimeout:        durationOrDefault("ROVERGATE_ROBOT_TIMEOUT", 5*time.Second),
		CameraFrameInterval: durationOrDefault("ROVERGATE_CAMERA_FRAME_INTERVAL", 200*time.Millisecond),

		CORSOrigins:     listOrDefault("ROVERGATE_CORS_ORIGINS", []string{"http://localhost:5173"}),
		RateLimitPerMin: intOrDefault("ROVERGATE_RATE_LIMIT_PER_MIN", 30),

		RedisAddr:   os.Getenv("REDIS_ADDR"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		IdempotencyTTL:     durationOrDefault("ROVERGATE_IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyLockTTL: durationOrDefault("ROVERGATE_IDEMPOTENCY_LOCK_TTL", 30*time.Second),

		LogLevel: envOrDefault("ROVERGATE_LOG_LEVEL", "info"),
		LogJSON:  boolOrDefault("ROVERGATE_LOG_JSON", false),
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func intOrDefault(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func boolOrDefault(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func listOrDefault(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
