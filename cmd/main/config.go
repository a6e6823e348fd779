package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/CTAG07/Vellum/pkg/csrf"
	"github.com/CTAG07/Vellum/pkg/templating"
	"github.com/natefinch/atomic"
	"github.com/spf13/cast"
)

// Environment variables that override values from config.json.
const (
	envDebug         = "VELLUM_DEBUG"
	envLogLevel      = "VELLUM_LOG_LEVEL"
	envServerAddr    = "VELLUM_SERVER_ADDR"
	envApiAddr       = "VELLUM_API_ADDR"
	envApiKey        = "VELLUM_API_KEY"
	envPruneInterval = "VELLUM_PRUNE_INTERVAL_SEC"
)

// ServerConfig holds the configuration for the HTTP servers.
type ServerConfig struct {
	ServerAddr       string `json:"server_addr"`
	ApiAddr          string `json:"api_addr"`
	LogLevel         string `json:"log_level"`
	Debug            bool   `json:"debug"`
	DataDir          string `json:"data_dir"`
	DatabasePath     string `json:"database_path"`
	TemplateDir      string `json:"template_dir"`
	PublicDir        string `json:"public_dir"`
	PostsPerPage     int    `json:"posts_per_page"`
	PruneIntervalSec int    `json:"prune_interval_sec"`

	// ApiKey is only ever read from the environment so it never lands in
	// config.json or in API responses.
	ApiKey string `json:"-"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    *ServerConfig              `json:"server_config"`
	Templates *templating.TemplateConfig `json:"template_config"`
	CSRF      *csrf.Config               `json:"csrf_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerAddr:       ":7380",
		ApiAddr:          ":7381",
		LogLevel:         "info",
		Debug:            false,
		DataDir:          "./data",
		DatabasePath:     "./data/vellum.db?_journal_mode=WAL&_busy_timeout=5000",
		TemplateDir:      "./data/templates",
		PublicDir:        "./data/public",
		PostsPerPage:     10,
		PruneIntervalSec: 600,
	}
}

// DefaultAppConfig returns a complete configuration with every section set
// to its defaults.
func DefaultAppConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Templates: templating.DefaultConfig(),
		CSRF:      csrf.DefaultConfig(),
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values. Sections
// missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultAppConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	fillDefaults(config)
	return config, nil
}

// fillDefaults replaces sections a config file set to null.
func fillDefaults(config *Config) {
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Templates == nil {
		config.Templates = templating.DefaultConfig()
	}
	if config.CSRF == nil {
		config.CSRF = csrf.DefaultConfig()
	}
}

// applyEnvOverrides copies recognised environment variables over config.
// getenv is os.Getenv outside of tests.
func applyEnvOverrides(config *Config, getenv func(string) string) error {
	if v := getenv(envDebug); v != "" {
		debug, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envDebug, err)
		}
		config.Server.Debug = debug
	}
	if v := getenv(envPruneInterval); v != "" {
		interval, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envPruneInterval, err)
		}
		config.Server.PruneIntervalSec = interval
	}
	if v := getenv(envLogLevel); v != "" {
		config.Server.LogLevel = strings.ToLower(v)
	}
	if v := getenv(envServerAddr); v != "" {
		config.Server.ServerAddr = v
	}
	if v := getenv(envApiAddr); v != "" {
		config.Server.ApiAddr = v
	}
	config.Server.ApiKey = getenv(envApiKey)
	return nil
}

// ConfigManager handles thread-safe access to configuration.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
	tm         *templating.TemplateManager
}

// NewConfigManager loads the config, applies environment overrides and
// initializes the manager.
func NewConfigManager(path string, getenv func(string) string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err = applyEnvOverrides(cfg, getenv); err != nil {
		return nil, err
	}

	return &ConfigManager{
		config:     cfg,
		configPath: path,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetTemplateManager registers the template manager to receive config updates.
func (cm *ConfigManager) SetTemplateManager(tm *templating.TemplateManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tm = tm
	if tm != nil {
		tm.SetConfig(cm.config.Templates)
	}
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns a copy of the current configuration. The section pointers are
// copied too, so callers may modify the result freely.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	server := *cm.config.Server
	templates := *cm.config.Templates
	tokens := *cm.config.CSRF
	return Config{Server: &server, Templates: &templates, CSRF: &tokens}
}

// IsDebug reports whether debug mode is on. It is safe to call on every request.
func (cm *ConfigManager) IsDebug() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config.Server.Debug
}

// ApiKey returns the configured admin API key, or "" when the API is open.
func (cm *ConfigManager) ApiKey() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config.Server.ApiKey
}

// Update validates and applies newConfig, then saves it to disk. The template
// section is tried against the template manager first; if the templates no
// longer parse the old section is restored and the update is rejected.
func (cm *ConfigManager) Update(newConfig Config) error {
	if newConfig.Server == nil || newConfig.Templates == nil || newConfig.CSRF == nil {
		return fmt.Errorf("server_config, template_config and csrf_config are all required")
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tm != nil {
		oldTmplConfig := cm.config.Templates

		cm.tm.SetConfig(newConfig.Templates)
		if err := cm.tm.Refresh(); err != nil {
			cm.tm.SetConfig(oldTmplConfig)
			_ = cm.tm.Refresh()
			return fmt.Errorf("template configuration rejected: %w", err)
		}
	}

	// The key is environment-only and survives updates.
	newConfig.Server.ApiKey = cm.config.Server.ApiKey
	cm.config = &newConfig

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	cm.logger.Info("Configuration updated", "path", cm.configPath)
	return nil
}

// parseLogLevel maps a config string to a slog level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
