// Package config provides configuration management for the application.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// DefaultBodySizeLimit caps request bodies. A request may carry up to
// 20 inline images of 20MiB decoded each, which is about 534MiB of
// base64; 560MiB leaves headroom for text and JSON framing.
const DefaultBodySizeLimit int64 = 560 << 20

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig
	Bedrock BedrockConfig
	Routing RoutingConfig
	Metrics MetricsConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          string
	MasterKey     string
	BodySizeLimit int64
}

// BedrockConfig holds the provider endpoint configuration.
type BedrockConfig struct {
	Region  string
	APIKey  string
	BaseURL string
}

// RoutingConfig selects the model-mapping backend and refresh cadence.
type RoutingConfig struct {
	File       string
	RedisURL   string
	RefreshTTL time.Duration
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from an optional .env file and the
// environment. Environment variables win.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // .env is optional

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("BODY_SIZE_LIMIT", DefaultBodySizeLimit)
	viper.SetDefault("CONFIG_REFRESH_SECONDS", 300)
	viper.SetDefault("METRICS_ENABLED", true)
	viper.SetDefault("METRICS_ENDPOINT", "/metrics")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:          viper.GetString("PORT"),
			MasterKey:     viper.GetString("MASTER_KEY"),
			BodySizeLimit: viper.GetInt64("BODY_SIZE_LIMIT"),
		},
		Bedrock: BedrockConfig{
			Region:  viper.GetString("AWS_REGION"),
			APIKey:  viper.GetString("BEDROCK_API_KEY"),
			BaseURL: viper.GetString("BEDROCK_BASE_URL"),
		},
		Routing: RoutingConfig{
			File:       viper.GetString("CONFIG_FILE"),
			RedisURL:   viper.GetString("REDIS_URL"),
			RefreshTTL: time.Duration(viper.GetInt("CONFIG_REFRESH_SECONDS")) * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:  viper.GetBool("METRICS_ENABLED"),
			Endpoint: viper.GetString("METRICS_ENDPOINT"),
		},
		Logging: LoggingConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Pretty: viper.GetBool("LOG_PRETTY"),
		},
	}

	if cfg.Bedrock.APIKey == "" {
		return nil, errors.New("BEDROCK_API_KEY is required")
	}
	if cfg.Routing.File != "" && cfg.Routing.RedisURL != "" {
		return nil, errors.New("CONFIG_FILE and REDIS_URL are mutually exclusive")
	}
	return cfg, nil
}
