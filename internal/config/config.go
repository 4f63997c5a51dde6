package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"qr-scan-station/internal/types"
)

// Config represents the scan station configuration
type Config struct {
	// Control surface configuration
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`

	// Optional bearer token auth for the control API. Empty disables auth.
	APIAuthSecret string `mapstructure:"api_auth_secret"`

	// Decode engine configuration
	Engine         string                 `mapstructure:"engine"`
	EngineSettings map[string]interface{} `mapstructure:"engine_settings"`

	// Camera session configuration
	SettleDelayMs        int    `mapstructure:"settle_delay_ms"`
	PreferredDeviceLabel string `mapstructure:"preferred_device_label"`

	// Capture parameters handed to the decode engine
	CaptureFPS         int     `mapstructure:"capture_fps"`
	CaptureROISize     int     `mapstructure:"capture_roi_size"`
	CaptureAspectRatio float64 `mapstructure:"capture_aspect_ratio"`

	// Result image configuration. Template must contain a single %s verb
	// that receives the scanned id.
	ImageURLTemplate string `mapstructure:"image_url_template"`
	ImageFetchTimeout int   `mapstructure:"image_fetch_timeout"` // seconds

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		ServerHost:           "127.0.0.1",
		ServerPort:           8085,
		APIAuthSecret:        "",
		Engine:               "simulator",
		EngineSettings:       make(map[string]interface{}),
		SettleDelayMs:        150,
		PreferredDeviceLabel: "back",
		CaptureFPS:           10,
		CaptureROISize:       250,
		CaptureAspectRatio:   1.0,
		ImageURLTemplate:     "https://scanstation.blob.core.windows.net/labels/%s.jpg",
		ImageFetchTimeout:    10,
		LogLevel:             "info",
		LogFile:              "",
	}
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	// Set up viper
	v := viper.New()

	// Set default values
	setDefaults(v, cfg)

	// Configure file locations
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		// Look for config in current directory and common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/qr-scan-station")

		// Add user config directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".qr-scan-station"))
		}
	}

	// Environment variable configuration
	v.SetEnvPrefix("SCANSTATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server_host", cfg.ServerHost)
	v.SetDefault("server_port", cfg.ServerPort)
	v.SetDefault("api_auth_secret", cfg.APIAuthSecret)
	v.SetDefault("engine", cfg.Engine)
	v.SetDefault("engine_settings", cfg.EngineSettings)
	v.SetDefault("settle_delay_ms", cfg.SettleDelayMs)
	v.SetDefault("preferred_device_label", cfg.PreferredDeviceLabel)
	v.SetDefault("capture_fps", cfg.CaptureFPS)
	v.SetDefault("capture_roi_size", cfg.CaptureROISize)
	v.SetDefault("capture_aspect_ratio", cfg.CaptureAspectRatio)
	v.SetDefault("image_url_template", cfg.ImageURLTemplate)
	v.SetDefault("image_fetch_timeout", cfg.ImageFetchTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port must be between 1 and 65535")
	}

	if c.Engine == "" {
		return fmt.Errorf("engine is required")
	}

	if c.SettleDelayMs < 0 {
		return fmt.Errorf("settle_delay_ms must not be negative")
	}

	if c.CaptureFPS <= 0 {
		return fmt.Errorf("capture_fps must be positive")
	}

	if c.CaptureROISize <= 0 {
		return fmt.Errorf("capture_roi_size must be positive")
	}

	if c.CaptureAspectRatio <= 0 {
		return fmt.Errorf("capture_aspect_ratio must be positive")
	}

	if strings.Count(c.ImageURLTemplate, "%s") != 1 {
		return fmt.Errorf("image_url_template must contain exactly one %%s placeholder")
	}

	if c.ImageFetchTimeout <= 0 {
		return fmt.Errorf("image_fetch_timeout must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	return nil
}

// SettleDelay returns the configured surface settle delay
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// CaptureConfig converts the configured capture parameters into the form
// handed to the decode engine
func (c *Config) CaptureConfig() types.CaptureConfig {
	return types.CaptureConfig{
		FPS:         c.CaptureFPS,
		ROIWidth:    c.CaptureROISize,
		ROIHeight:   c.CaptureROISize,
		AspectRatio: c.CaptureAspectRatio,
	}
}
