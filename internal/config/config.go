// Package config loads process configuration from the environment (and,
// in development, a .env file via godotenv), the way the teacher's
// cmd/server/main.go does for its DB_* variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the parsed, immutable process configuration.
type Config struct {
	Port     string
	LogLevel string
	Env      string // "development" or "production" (NODE_ENV analog)

	CORSAllowedOrigins []string

	RateLimitSMTPTestPerWindow     int
	RateLimitSMTPTestWindow        time.Duration
	RateLimitCampaignStartPerHour int
	RateLimitGenericPerWindow      int
	RateLimitGenericWindow         time.Duration

	MaxConcurrentCampaigns int
	RegistryGCInterval     time.Duration
	RegistryRetention      time.Duration
}

// Load reads environment variables, applying the defaults spec §6 names.
func Load() Config {
	return Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("NODE_ENV", "development"),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		RateLimitSMTPTestPerWindow:     getEnvInt("RATE_LIMIT_SMTP_TEST", 10),
		RateLimitSMTPTestWindow:        15 * time.Minute,
		RateLimitCampaignStartPerHour: getEnvInt("RATE_LIMIT_CAMPAIGN_START", 5),
		RateLimitGenericPerWindow:      getEnvInt("RATE_LIMIT_GENERIC", 100),
		RateLimitGenericWindow:         15 * time.Minute,

		MaxConcurrentCampaigns: getEnvInt("MAX_CONCURRENT_CAMPAIGNS", 3),
		RegistryGCInterval:     time.Hour,
		RegistryRetention:      2 * time.Hour,
	}
}

// IsDevelopment reports whether error bodies should include full detail.
func (c Config) IsDevelopment() bool {
	return c.Env != "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
