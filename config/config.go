package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Orca      OrcaConfig      `yaml:"orca"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Source    SourceConfig    `yaml:"source"`
	Processor ProcessorConfig `yaml:"processor"`
	Storage   StorageConfig   `yaml:"storage"`
	Reaper    ReaperConfig    `yaml:"reaper"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type OrcaConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer int `yaml:"raw_buffer"`
}

type SourceConfig struct {
	Aisstream AisstreamConfig `yaml:"aisstream"`
}

// AisstreamConfig describes the upstream feed subscription. BoundingBoxes
// uses the wire layout of the aisstream subscription message: a list of
// boxes, each a pair of [lon, lat] corners.
type AisstreamConfig struct {
	URL           string        `yaml:"url"`
	APIKey        string        `yaml:"api_key"`
	BoundingBoxes [][][]float64 `yaml:"bounding_boxes"`
	ReconnectBase time.Duration `yaml:"reconnect_base"`
	ReconnectMax  time.Duration `yaml:"reconnect_max"`
}

type ProcessorConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type ReaperConfig struct {
	Interval        time.Duration `yaml:"interval"`
	FreshnessWindow time.Duration `yaml:"freshness_window"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{RawBuffer: 10000},
		Source: SourceConfig{
			Aisstream: AisstreamConfig{
				URL:           "wss://stream.aisstream.io/v0/stream",
				BoundingBoxes: [][][]float64{{{-180, -90}, {180, 90}}},
				ReconnectBase: 5 * time.Second,
				ReconnectMax:  60 * time.Second,
			},
		},
		Processor: ProcessorConfig{
			BatchSize:    1000,
			BatchTimeout: 3 * time.Second,
			PollTimeout:  100 * time.Millisecond,
			WriteTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Postgres: PostgresConfig{
				Port:         5432,
				SSLMode:      "disable",
				MaxOpenConns: 4,
			},
		},
		Reaper: ReaperConfig{
			Interval:        60 * time.Second,
			FreshnessWindow: 120 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "0.0.0.0:2112"},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AISSTREAM_API_KEY"); v != "" {
		cfg.Source.Aisstream.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Storage.Postgres.Host = strings.TrimSpace(v)
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Storage.Postgres.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.Storage.Postgres.User = strings.TrimSpace(v)
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Storage.Postgres.Password = strings.TrimSpace(v)
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.Storage.Postgres.Database = strings.TrimSpace(v)
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Orca.Name == "" {
		return fmt.Errorf("orca.name is required")
	}
	if cfg.Orca.Version == "" {
		return fmt.Errorf("orca.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}

	if cfg.Source.Aisstream.URL == "" {
		return fmt.Errorf("source.aisstream.url is required")
	}
	if cfg.Source.Aisstream.APIKey == "" {
		return fmt.Errorf("source.aisstream.api_key is required (set AISSTREAM_API_KEY)")
	}
	if cfg.Source.Aisstream.ReconnectBase <= 0 || cfg.Source.Aisstream.ReconnectMax < cfg.Source.Aisstream.ReconnectBase {
		return fmt.Errorf("source.aisstream reconnect delays must satisfy 0 < reconnect_base <= reconnect_max")
	}
	for _, box := range cfg.Source.Aisstream.BoundingBoxes {
		if len(box) != 2 {
			return fmt.Errorf("source.aisstream.bounding_boxes entries must have exactly two corners")
		}
		for _, corner := range box {
			if len(corner) != 2 {
				return fmt.Errorf("source.aisstream.bounding_boxes corners must be [lon, lat] pairs")
			}
		}
	}

	if cfg.Processor.BatchSize <= 0 {
		return fmt.Errorf("processor.batch_size must be greater than 0")
	}
	if cfg.Processor.BatchTimeout <= 0 {
		return fmt.Errorf("processor.batch_timeout must be greater than 0")
	}
	if cfg.Processor.PollTimeout <= 0 {
		return fmt.Errorf("processor.poll_timeout must be greater than 0")
	}
	if cfg.Processor.WriteTimeout <= 0 {
		return fmt.Errorf("processor.write_timeout must be greater than 0")
	}

	pg := cfg.Storage.Postgres
	if pg.Host == "" {
		return fmt.Errorf("storage.postgres.host is required")
	}
	if pg.User == "" {
		return fmt.Errorf("storage.postgres.user is required")
	}
	if pg.Database == "" {
		return fmt.Errorf("storage.postgres.database is required")
	}
	if pg.Port <= 0 || pg.Port > 65535 {
		return fmt.Errorf("storage.postgres.port '%d' is invalid", pg.Port)
	}

	if cfg.Reaper.Interval <= 0 {
		return fmt.Errorf("reaper.interval must be greater than 0")
	}
	if cfg.Reaper.FreshnessWindow <= 0 {
		return fmt.Errorf("reaper.freshness_window must be greater than 0")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return nil
}
