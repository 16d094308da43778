package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort        = 8080
	DefaultWebhookPath = "/webhook"
	DefaultHost        = "https://open.feishu.cn"

	DefaultLogLevel      = "info"
	DefaultLogMaxSize    = 100 // MB
	DefaultLogMaxBackups = 5
	DefaultLogMaxAge     = 30 // days
)

// Config is the bot configuration loaded from a YAML file. ${VAR} patterns
// anywhere in the file are expanded from the environment before parsing.
type Config struct {
	Feishu  FeishuConfig  `yaml:"feishu"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

type FeishuConfig struct {
	// AppID/AppSecret may be omitted; the serve command then falls back to
	// the APP_ID/APP_SECRET environment variables.
	AppID     string `yaml:"app_id"`
	AppSecret string `yaml:"app_secret"`
	Host      string `yaml:"host"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	WebhookPath string `yaml:"webhook_path"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	File         string `yaml:"file"`
	MaxSize      int    `yaml:"max_size"`
	MaxBackups   int    `yaml:"max_backups"`
	MaxAge       int    `yaml:"max_age"`
	Compress     bool   `yaml:"compress"`
	EnableStdout bool   `yaml:"enable_stdout"`
}

// DefaultConfig returns the configuration used when no config file is given.
func DefaultConfig() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

// LoadConfig loads configuration from file and expands environment variables
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

func applyDefaults(config *Config) {
	if config.Feishu.Host == "" {
		config.Feishu.Host = DefaultHost
	}
	if config.Server.Port == 0 {
		config.Server.Port = DefaultPort
	}
	if config.Server.WebhookPath == "" {
		config.Server.WebhookPath = DefaultWebhookPath
	}
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = DefaultLogMaxAge
	}
	if config.Logging.File == "" {
		config.Logging.EnableStdout = true
	}
}

func validateConfig(config *Config) error {
	if !strings.HasPrefix(config.Feishu.Host, "http://") && !strings.HasPrefix(config.Feishu.Host, "https://") {
		return fmt.Errorf("feishu.host must be an http(s) URL, got %q", config.Feishu.Host)
	}
	if !strings.HasPrefix(config.Server.WebhookPath, "/") {
		return fmt.Errorf("server.webhook_path must start with '/', got %q", config.Server.WebhookPath)
	}
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", config.Server.Port)
	}
	return nil
}
