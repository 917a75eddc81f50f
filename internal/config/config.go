// Package config loads service configuration from the environment, with an
// optional .env file preloaded.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Patient catalog backends.
const (
	PatientStoreDocument = "document"
	PatientStorePostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Insights InsightsConfig
	Session  SessionConfig
	Patients PatientsConfig
	LLM      LLMConfig
	Audit    AuditConfig
	Tracing  TracingConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	// LoginRate is login attempts per minute per client address
	LoginRate  int
	LoginBurst int
}

// Development reports whether ENV=development.
func (s ServerConfig) Development() bool { return s.Env == "development" }

type InsightsConfig struct {
	Path string
}

type SessionConfig struct {
	Secret   string
	TTL      time.Duration
	Store    string
	RedisURL string
}

type PatientsConfig struct {
	Store       string
	DatabaseURL string
}

// LLMConfig selects the derivation backend. Endpoint set means Azure OpenAI.
type LLMConfig struct {
	Enabled    bool
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
	Timeout    time.Duration
	MaxRetries int
	// Concurrency bounds in-flight derivations across all requests
	Concurrency int
}

// AuditConfig enables publishing session transitions when Brokers is set.
type AuditConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether any broker is configured.
func (a AuditConfig) Enabled() bool { return len(a.Brokers) > 0 }

type TracingConfig struct {
	Enabled    bool
	Endpoint   string
	SampleRate float64
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            getEnv("ENV", "production"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			LoginRate:      getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
			LoginBurst:     getEnvInt("LOGIN_BURST", 5),
		},
		Insights: InsightsConfig{
			Path: getEnv("INSIGHTS_PATH", "data/ai_insights.json"),
		},
		Session: SessionConfig{
			Secret:   getEnv("SESSION_SECRET", ""),
			TTL:      getEnvDuration("SESSION_TTL", 12*time.Hour),
			Store:    getEnv("SESSION_STORE", SessionStoreMemory),
			RedisURL: getEnv("REDIS_URL", ""),
		},
		Patients: PatientsConfig{
			Store:       getEnv("PATIENT_STORE", PatientStoreDocument),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		LLM: LLMConfig{
			Enabled:     getEnvBool("LLM_ENABLED", false),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Endpoint:    getEnv("AZURE_OPENAI_ENDPOINT", ""),
			Deployment:  getEnv("DEPLOYMENT", ""),
			APIVersion:  getEnv("OPENAI_API_VERSION", ""),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 20*time.Second),
			MaxRetries:  getEnvInt("LLM_MAX_RETRIES", 2),
			Concurrency: getEnvInt("LLM_CONCURRENCY", 4),
		},
		Audit: AuditConfig{
			Brokers: getEnvSlice("AUDIT_BROKERS", nil),
			Topic:   getEnv("AUDIT_TOPIC", "clinical.session.audit"),
		},
		Tracing: TracingConfig{
			Enabled:    getEnvBool("TRACING_ENABLED", false),
			Endpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
			SampleRate: getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Session.Store {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if c.Session.RedisURL == "" {
			return errors.New("SESSION_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.Session.Store)
	}

	switch c.Patients.Store {
	case PatientStoreDocument:
	case PatientStorePostgres:
		if c.Patients.DatabaseURL == "" {
			return errors.New("PATIENT_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown PATIENT_STORE %q", c.Patients.Store)
	}

	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return errors.New("LLM_ENABLED requires OPENAI_API_KEY")
	}
	if c.Session.TTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE %v out of range [0,1]", c.Tracing.SampleRate)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
