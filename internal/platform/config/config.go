package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for the sync agent.
type Config struct {
	Service      ServiceConfig      `mapstructure:"service"`
	API          APIConfig          `mapstructure:"api"`
	Push         PushConfig         `mapstructure:"push"`
	Refresh      RefreshConfig      `mapstructure:"refresh"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Version      string             `mapstructure:"version"`
}

// ServiceConfig holds service-specific configuration.
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// APIConfig holds the marketplace REST API configuration.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" envconfig:"API_BASE_URL" default:"http://localhost:8080"`
	Timeout time.Duration `mapstructure:"timeout" envconfig:"API_TIMEOUT" default:"30s"`
}

// PushConfig holds the out-of-band push channel configuration.
type PushConfig struct {
	GatewayURL        string        `mapstructure:"gateway_url" envconfig:"PUSH_GATEWAY_URL" default:"ws://localhost:8080/ws/push"`
	ChannelConfigPath string        `mapstructure:"channel_config_path" envconfig:"PUSH_CHANNEL_CONFIG_PATH" default:"./configs/push-channel.json"`
	ReconnectMin      time.Duration `mapstructure:"reconnect_min" envconfig:"PUSH_RECONNECT_MIN" default:"1s"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max" envconfig:"PUSH_RECONNECT_MAX" default:"30s"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout" envconfig:"PUSH_HANDSHAKE_TIMEOUT" default:"10s"`
}

// RefreshConfig holds the refresh scheduler timings.
type RefreshConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" envconfig:"REFRESH_POLL_INTERVAL" default:"30s"`
	PushDelay    time.Duration `mapstructure:"push_delay" envconfig:"REFRESH_PUSH_DELAY" default:"300ms"`
	DedupWindow  time.Duration `mapstructure:"dedup_window" envconfig:"REFRESH_DEDUP_WINDOW" default:"2s"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" envconfig:"REFRESH_FETCH_TIMEOUT" default:"15s"`
}

// SubscriptionConfig holds push subscription configuration.
type SubscriptionConfig struct {
	PromptTimeout time.Duration `mapstructure:"prompt_timeout" envconfig:"SUBSCRIPTION_PROMPT_TIMEOUT" default:"60s"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// MetricsConfig holds the Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" envconfig:"METRICS_ENABLED" default:"true"`
	Port    int  `mapstructure:"port" envconfig:"METRICS_PORT" default:"9100"`
}

// Load loads configuration from files and environment.
func Load(serviceName string) (*Config, error) {
	var cfg Config

	cfg.Service.Name = serviceName

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("./configs/services/" + serviceName)
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; continue with env vars
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else {
		cfg.Version = "dev"
	}

	return &cfg, nil
}
