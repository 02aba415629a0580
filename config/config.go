package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Signalflow SignalflowConfig `yaml:"signalflow"`
	API        APIConfig        `yaml:"api"`
	Stream     StreamConfig     `yaml:"stream"`
	Buffers    BuffersConfig    `yaml:"buffers"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Storage    StorageConfig    `yaml:"storage"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type SignalflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type APIConfig struct {
	BaseURL           string   `yaml:"base_url"`
	Token             string   `yaml:"token"`
	TokenFile         string   `yaml:"token_file"`
	Timeout           Duration `yaml:"timeout"`
	CacheTTL          Duration `yaml:"cache_ttl"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	BurstSize         int      `yaml:"burst_size"`
}

type StreamConfig struct {
	URL               string          `yaml:"url"`
	HeartbeatInterval Duration        `yaml:"heartbeat_interval"`
	Reconnect         ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
}

type BuffersConfig struct {
	Signals         int `yaml:"signals"`
	MarketUpdates   int `yaml:"market_updates"`
	ChannelMessages int `yaml:"channel_messages"`
	Transfers       int `yaml:"transfers"`
	PriceHistory    int `yaml:"price_history"`
}

type ArchiveConfig struct {
	Enabled       bool     `yaml:"enabled"`
	FlushInterval Duration `yaml:"flush_interval"`
	MaxWorkers    int      `yaml:"max_workers"`
	ChannelBuffer int      `yaml:"channel_buffer"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type DashboardConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Address         string   `yaml:"address"`
	LogHistory      int      `yaml:"log_history"`
	RefreshInterval Duration `yaml:"refresh_interval"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Region        string   `yaml:"region"`
	Namespace     string   `yaml:"namespace"`
	FlushInterval Duration `yaml:"flush_interval"`
}

type MarketDataConfig struct {
	BinanceFallback bool   `yaml:"binance_fallback"`
	QuoteAsset      string `yaml:"quote_asset"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		API: APIConfig{
			Timeout:           Duration(10 * time.Second),
			CacheTTL:          Duration(60 * time.Second),
			RequestsPerSecond: 5,
			BurstSize:         10,
		},
		Stream: StreamConfig{
			HeartbeatInterval: Duration(30 * time.Second),
			Reconnect: ReconnectConfig{
				MaxAttempts: 10,
				BaseDelay:   Duration(2 * time.Second),
				MaxDelay:    Duration(30 * time.Second),
			},
		},
		MarketData: MarketDataConfig{
			QuoteAsset: "USDT",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment overrides for secrets and deployment specific values
	if v := os.Getenv("SIGNALFLOW_API_TOKEN"); v != "" {
		config.API.Token = strings.TrimSpace(v)
	}
	if v := os.Getenv("SIGNALFLOW_API_URL"); v != "" {
		config.API.BaseURL = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Signalflow.Name == "" {
		return fmt.Errorf("signalflow.name is required")
	}

	if cfg.Signalflow.Version == "" {
		return fmt.Errorf("signalflow.version is required")
	}

	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if _, err := url.Parse(cfg.API.BaseURL); err != nil {
		return fmt.Errorf("api.base_url '%s' is invalid: %w", cfg.API.BaseURL, err)
	}

	if cfg.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("stream.heartbeat_interval must be greater than 0")
	}
	if cfg.Stream.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("stream.reconnect.max_attempts must be greater than 0")
	}
	if cfg.Stream.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("stream.reconnect.base_delay must be greater than 0")
	}
	if cfg.Stream.Reconnect.MaxDelay < cfg.Stream.Reconnect.BaseDelay {
		return fmt.Errorf("stream.reconnect.max_delay must not be below base_delay")
	}

	if cfg.Archive.Enabled && !cfg.Storage.S3.Enabled {
		return fmt.Errorf("archive.enabled requires storage.s3.enabled")
	}
	if cfg.Archive.Enabled && cfg.Archive.FlushInterval <= 0 {
		return fmt.Errorf("archive.flush_interval must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
