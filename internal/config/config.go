package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	RedisURL        string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	ExtractTimeout  int // seconds; bound on the extraction-service call
	APIToken        string

	Targets Targets
}

// Targets holds the fixed operational targets the alert rules evaluate
// against, plus the density assumptions used in area estimation. These are
// configuration, not derived values.
type Targets struct {
	DailyPlantingRate float64 // cladodes per day
	AreaHa            float64 // hectares to plant this cycle
	StackHeight       float64 // cladodes per station
	StationsPerHa     float64 // effective stations per hectare with in-fill
	WorkdayHours      float64 // assumed hours when a report omits them
	HourlyLaborRate   float64 // rand per worker-hour, for labor cost estimates
}

func Load() Config {
	return Config{
		Port:            envInt("FIELDOPS_PORT", 8640),
		NatsURL:         envStr("NATS_URL", "nats://gateway:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		RedisURL:        envStr("REDIS_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("FIELDOPS_MODEL", "claude-sonnet-4-20250514"),
		ExtractTimeout:  envInt("EXTRACT_TIMEOUT_SECONDS", 30),
		APIToken:        envStr("FIELDOPS_API_TOKEN", ""),
		Targets: Targets{
			DailyPlantingRate: envFloat("TARGET_DAILY_RATE", 1200),
			AreaHa:            envFloat("TARGET_AREA_HA", 2.0),
			StackHeight:       envFloat("TARGET_STACK_HEIGHT", 4.0),
			StationsPerHa:     envFloat("STATIONS_PER_HA", 600),
			WorkdayHours:      envFloat("WORKDAY_HOURS", 8),
			HourlyLaborRate:   envFloat("HOURLY_LABOR_RATE", 30),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
