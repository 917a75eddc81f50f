package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q", cfg.Server.Port)
	}
	if cfg.Insights.Path != "data/ai_insights.json" {
		t.Errorf("Insights.Path = %q", cfg.Insights.Path)
	}
	if cfg.Session.TTL != 12*time.Hour || cfg.Session.Store != SessionStoreMemory {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.LLM.Enabled || cfg.LLM.Timeout != 20*time.Second || cfg.LLM.MaxRetries != 2 {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.Concurrency != 4 {
		t.Errorf("LLM.Concurrency = %d", cfg.LLM.Concurrency)
	}
	if cfg.Audit.Enabled() || cfg.Audit.Topic != "clinical.session.audit" {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if cfg.Tracing.Enabled || cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
}

func TestLoadFromEnvAndDotenv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	env := "INSIGHTS_PATH=/srv/insights.json\nSESSION_TTL=30m\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("INSIGHTS_PATH")
		os.Unsetenv("SESSION_TTL")
	})
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LLM_MAX_RETRIES", "not-a-number")
	t.Setenv("AUDIT_BROKERS", "rp-0:9092,rp-1:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q", cfg.Server.Port)
	}
	if cfg.Insights.Path != "/srv/insights.json" {
		t.Errorf("Insights.Path = %q, want value from .env", cfg.Insights.Path)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Errorf("TTL = %v", cfg.Session.TTL)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.LLM.MaxRetries != 2 {
		t.Errorf("invalid int should fall back to default, got %d", cfg.LLM.MaxRetries)
	}
	if !cfg.Audit.Enabled() || len(cfg.Audit.Brokers) != 2 || cfg.Audit.Brokers[0] != "rp-0:9092" {
		t.Errorf("Audit.Brokers = %v", cfg.Audit.Brokers)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Session:  SessionConfig{Store: SessionStoreMemory, TTL: time.Hour},
			Patients: PatientsConfig{Store: PatientStoreDocument},
			Tracing:  TracingConfig{SampleRate: 1},
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"redis without url", func(c *Config) { c.Session.Store = SessionStoreRedis }, false},
		{"redis with url", func(c *Config) {
			c.Session.Store = SessionStoreRedis
			c.Session.RedisURL = "redis://localhost:6379/0"
		}, true},
		{"unknown session store", func(c *Config) { c.Session.Store = "file" }, false},
		{"postgres without dsn", func(c *Config) { c.Patients.Store = PatientStorePostgres }, false},
		{"unknown patient store", func(c *Config) { c.Patients.Store = "csv" }, false},
		{"llm without key", func(c *Config) { c.LLM.Enabled = true }, false},
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }, false},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected an error")
			}
		})
	}
}
