// Package config loads process configuration from environment variables
// into an explicit struct at startup. There is no dynamic/runtime config
// object; every recognised option is enumerated here per spec.md §6.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Env is the deployment environment.
type Env string

const (
	EnvDevelopment Env = "development"
	EnvProduction  Env = "production"
	EnvTest        Env = "test"
)

// Config holds every recognised environment option.
type Config struct {
	NodeEnv Env
	Port    int

	DatabaseURL   string
	DatabaseToken string // optional auth token alongside DatabaseURL

	CacheURL string // optional remote cache; empty falls back to in-process map

	AdminAPIKey string // >= 32 chars required

	LLMProvider        string
	LLMAPIKey          string
	LLMModel           string
	LLMMaxTokens       int
	LLMTemperature     float64
	LLMRequestTimeout  time.Duration
	LLMMaxRetries      int

	RequestTimeout time.Duration
	ChatTimeout    time.Duration

	ChatSystemPrompt string
	ChatHistoryWindow int

	RateLimitCapacity   int
	RateLimitRefillRate float64

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	CORSOrigins []string
	Telemetry   bool
}

func envStr(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDurationSeconds(k string, defSeconds int) time.Duration {
	return time.Duration(envInt(k, defSeconds)) * time.Second
}

func envDurationMillis(k string, defMillis int) time.Duration {
	return time.Duration(envInt(k, defMillis)) * time.Millisecond
}

// Load reads configuration from the process environment. It returns an
// error for every required option that is missing or malformed, instead of
// panicking, so callers (main, tests) decide how to fail.
func Load() (*Config, error) {
	// .env is optional: local development loads it if present, a real
	// deployment's environment is already fully populated and this is a
	// silent no-op.
	_ = godotenv.Load()

	cfg := &Config{
		NodeEnv:             Env(envStr("NODE_ENV", "development")),
		Port:                envInt("PORT", 8080),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DatabaseToken:       os.Getenv("DATABASE_AUTH_TOKEN"),
		CacheURL:            os.Getenv("CACHE_URL"),
		AdminAPIKey:         os.Getenv("ADMIN_API_KEY"),
		LLMProvider:         envStr("LLM_PROVIDER", "openai"),
		LLMAPIKey:           os.Getenv("LLM_API_KEY"),
		LLMModel:            envStr("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:        envInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature:      envFloat("LLM_TEMPERATURE", 0.7),
		LLMRequestTimeout:   envDurationSeconds("LLM_REQUEST_TIMEOUT_SECONDS", 30),
		LLMMaxRetries:       envInt("LLM_MAX_RETRIES", 3),
		RequestTimeout:      envDurationSeconds("REQUEST_TIMEOUT_SECONDS", 30),
		ChatTimeout:         envDurationSeconds("CHAT_TIMEOUT_SECONDS", 60),
		ChatSystemPrompt: envStr("CHAT_SYSTEM_PROMPT",
			"You are the assistant embedded in a developer's portfolio site. Answer "+
				"questions about the site owner's projects, skills, and experience using "+
				"the tools available to you. Be concise and factual; do not invent "+
				"details not found in the portfolio content."),
		ChatHistoryWindow: envInt("CHAT_HISTORY_WINDOW", 20),
		RateLimitCapacity:   envInt("RATE_LIMIT_CAPACITY", 10),
		RateLimitRefillRate: envFloat("RATE_LIMIT_REFILL_RATE", 1.0),
		// Defaults mirror spec.md §4.5's circuit breaker parameters exactly.
		BreakerFailureThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 3),
		BreakerSuccessThreshold: envInt("BREAKER_SUCCESS_THRESHOLD", 2),
		BreakerTimeout:          envDurationMillis("BREAKER_TIMEOUT_MS", 1000),
		Telemetry:               envBool("TELEMETRY_ENABLED", false),
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	var errs []string
	if cfg.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if len(cfg.AdminAPIKey) < 32 {
		errs = append(errs, "ADMIN_API_KEY must be set and at least 32 characters")
	}
	switch cfg.NodeEnv {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		errs = append(errs, fmt.Sprintf("NODE_ENV must be one of development|production|test, got %q", cfg.NodeEnv))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.NodeEnv == EnvDevelopment
}
