package config

import (
	"os"
	"regexp"
	"time"

	"github.com/tabbridge/tabbridge/internal/common/cnst"
	"github.com/tabbridge/tabbridge/pkg/helper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the top-level daemon configuration
	Config struct {
		Server  ServerConfig  `yaml:"server"`
		Backend BackendConfig `yaml:"backend"`
		Cache   CacheConfig   `yaml:"cache"`
		Logger  LoggerConfig  `yaml:"logger"`
		Metrics MetricsConfig `yaml:"metrics"`
	}

	// ServerConfig represents the HTTP/WebSocket surface configuration
	ServerConfig struct {
		Port int `yaml:"port"`
	}

	// BackendConfig represents the remote conversational backend
	BackendConfig struct {
		SessionURL      string        `yaml:"session_url"`
		ConversationURL string        `yaml:"conversation_url"`
		LoginURL        string        `yaml:"login_url"`
		Model           string        `yaml:"model"`
		Timeout         time.Duration `yaml:"timeout"` // session fetch only; streams have no deadline
	}

	// CacheConfig represents the ephemeral cache configuration
	CacheConfig struct {
		Type  string           `yaml:"type"` // "memory" or "redis"
		TTL   time.Duration    `yaml:"ttl"`
		Redis RedisCacheConfig `yaml:"redis"`
	}

	// RedisCacheConfig represents the Redis configuration for the cache
	RedisCacheConfig struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
	}

	// MetricsConfig represents the Prometheus metrics configuration
	MetricsConfig struct {
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}
)

// Load loads configuration from a YAML file with environment variable support
func Load(filename string) (*Config, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	setDefaults(&cfg)
	return &cfg, cfgPath, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Backend.Model == "" {
		cfg.Backend.Model = "text-davinci-002-render"
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "memory"
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = cnst.DefaultCacheTTL
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "tabbridge"
	}
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
