package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimalYAML = `orca:
  name: "TestIngest"
  version: "1.0"
source:
  aisstream:
    api_key: "test-key"
storage:
  postgres:
    host: "localhost"
    user: "orca"
    database: "orca"
`

func TestLoadConfig(t *testing.T) {
	t.Setenv("AISSTREAM_API_KEY", "")
	path := writeTempConfig(t, minimalYAML)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Orca.Name != "TestIngest" {
		t.Errorf("unexpected name: %s", cfg.Orca.Name)
	}
	if cfg.Source.Aisstream.APIKey != "test-key" {
		t.Errorf("unexpected api key: %s", cfg.Source.Aisstream.APIKey)
	}

	// Defaults applied for everything the file omits.
	if cfg.Processor.BatchSize != 1000 {
		t.Errorf("unexpected default batch size: %d", cfg.Processor.BatchSize)
	}
	if cfg.Processor.BatchTimeout != 3*time.Second {
		t.Errorf("unexpected default batch timeout: %v", cfg.Processor.BatchTimeout)
	}
	if cfg.Reaper.FreshnessWindow != 120*time.Second {
		t.Errorf("unexpected default freshness window: %v", cfg.Reaper.FreshnessWindow)
	}
	if cfg.Source.Aisstream.ReconnectBase != 5*time.Second || cfg.Source.Aisstream.ReconnectMax != 60*time.Second {
		t.Errorf("unexpected default reconnect delays: %v/%v",
			cfg.Source.Aisstream.ReconnectBase, cfg.Source.Aisstream.ReconnectMax)
	}
	if len(cfg.Source.Aisstream.BoundingBoxes) != 1 {
		t.Errorf("expected default whole-world bounding box, got %v", cfg.Source.Aisstream.BoundingBoxes)
	}
}

func TestLoadConfigMissingAPIKey(t *testing.T) {
	t.Setenv("AISSTREAM_API_KEY", "")
	content := strings.Replace(minimalYAML, `    api_key: "test-key"`+"\n", "", 1)
	path := writeTempConfig(t, content)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("AISSTREAM_API_KEY", "env-key")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "6543")
	path := writeTempConfig(t, minimalYAML)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Source.Aisstream.APIKey != "env-key" {
		t.Errorf("env override not applied: %s", cfg.Source.Aisstream.APIKey)
	}
	if cfg.Storage.Postgres.Host != "db.internal" {
		t.Errorf("postgres host override not applied: %s", cfg.Storage.Postgres.Host)
	}
	if cfg.Storage.Postgres.Port != 6543 {
		t.Errorf("postgres port override not applied: %d", cfg.Storage.Postgres.Port)
	}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Orca.Name = "" }},
		{"zero raw buffer", func(c *Config) { c.Channels.RawBuffer = 0 }},
		{"zero batch size", func(c *Config) { c.Processor.BatchSize = 0 }},
		{"zero batch timeout", func(c *Config) { c.Processor.BatchTimeout = 0 }},
		{"missing postgres host", func(c *Config) { c.Storage.Postgres.Host = "" }},
		{"invalid postgres port", func(c *Config) { c.Storage.Postgres.Port = 0 }},
		{"zero reaper interval", func(c *Config) { c.Reaper.Interval = 0 }},
		{"zero freshness window", func(c *Config) { c.Reaper.FreshnessWindow = 0 }},
		{"reconnect max below base", func(c *Config) {
			c.Source.Aisstream.ReconnectBase = 10 * time.Second
			c.Source.Aisstream.ReconnectMax = time.Second
		}},
		{"malformed bounding box", func(c *Config) {
			c.Source.Aisstream.BoundingBoxes = [][][]float64{{{-180, -90}}}
		}},
	}

	for _, tc := range cases {
		cfg := defaultConfig()
		cfg.Orca = OrcaConfig{Name: "TestIngest", Version: "1.0"}
		cfg.Source.Aisstream.APIKey = "key"
		cfg.Storage.Postgres.Host = "localhost"
		cfg.Storage.Postgres.User = "orca"
		cfg.Storage.Postgres.Database = "orca"
		tc.mutate(cfg)
		if err := validateConfig(cfg); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if env := AppEnvironment(); env != EnvironmentProduction {
		t.Errorf("unexpected environment: %s", env)
	}
	if !IsProductionLike(EnvironmentStaging) {
		t.Error("staging should be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Error("development should not be production-like")
	}
}
