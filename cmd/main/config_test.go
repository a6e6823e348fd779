package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/CTAG07/Vellum/pkg/csrf"
	"github.com/CTAG07/Vellum/pkg/templating"
	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(DefaultAppConfig(), config); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config file was not written: %v", err)
	}
	var saved Config
	if err = json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("saved config is not valid JSON: %v", err)
	}
	if saved.Server.ServerAddr != DefaultServerConfig().ServerAddr {
		t.Errorf("saved server address = %q", saved.Server.ServerAddr)
	}
}

func TestLoadConfig_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"server_config": {"server_addr": ":9000"}, "csrf_config": null}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.Server.ServerAddr != ":9000" {
		t.Errorf("server address = %q, want :9000", config.Server.ServerAddr)
	}
	if config.Server.ApiAddr != DefaultServerConfig().ApiAddr {
		t.Errorf("unset fields should keep their defaults, got api address %q", config.Server.ApiAddr)
	}
	if diff := cmp.Diff(templating.DefaultConfig(), config.Templates); diff != "" {
		t.Errorf("template config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(csrf.DefaultConfig(), config.CSRF); diff != "" {
		t.Errorf("a null section should fall back to defaults (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server_config": `), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(*ServerConfig) bool
		wantErr bool
	}{
		{"no overrides", nil, func(c *ServerConfig) bool { return *c == *DefaultServerConfig() }, false},
		{"debug on", map[string]string{envDebug: "true"}, func(c *ServerConfig) bool { return c.Debug }, false},
		{"debug numeric", map[string]string{envDebug: "1"}, func(c *ServerConfig) bool { return c.Debug }, false},
		{"debug invalid", map[string]string{envDebug: "maybe"}, nil, true},
		{"log level is lowercased", map[string]string{envLogLevel: "DEBUG"}, func(c *ServerConfig) bool { return c.LogLevel == "debug" }, false},
		{"addresses", map[string]string{envServerAddr: ":1", envApiAddr: ":2"}, func(c *ServerConfig) bool {
			return c.ServerAddr == ":1" && c.ApiAddr == ":2"
		}, false},
		{"api key", map[string]string{envApiKey: "k"}, func(c *ServerConfig) bool { return c.ApiKey == "k" }, false},
		{"prune interval", map[string]string{envPruneInterval: "30"}, func(c *ServerConfig) bool { return c.PruneIntervalSec == 30 }, false},
		{"prune interval invalid", map[string]string{envPruneInterval: "soon"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultAppConfig()
			err := applyEnvOverrides(config, func(k string) string { return tt.env[k] })
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("applyEnvOverrides failed: %v", err)
			}
			if !tt.check(config.Server) {
				t.Errorf("unexpected server config %+v", *config.Server)
			}
		})
	}
}

func TestConfigManager_GetReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cm, err := NewConfigManager(path, func(string) string { return "" })
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}

	got := cm.Get()
	got.Server.Debug = true
	got.Templates.ExcerptLength = 1
	if cm.IsDebug() || cm.Get().Templates.ExcerptLength == 1 {
		t.Error("modifying the result of Get must not change the manager")
	}
}

func TestConfigManager_Update(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cm, err := NewConfigManager(path, func(k string) string {
		if k == envApiKey {
			return "from-env"
		}
		return ""
	})
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}
	cm.SetLogger(slog.Default())

	if err = cm.Update(Config{Server: DefaultServerConfig()}); err == nil {
		t.Error("an update missing sections should be rejected")
	}

	next := cm.Get()
	next.Server.PostsPerPage = 3
	next.Server.ApiKey = "from-request"
	if err = cm.Update(next); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if cm.ApiKey() != "from-env" {
		t.Errorf("API key should come from the environment only, got %q", cm.ApiKey())
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if reloaded.Server.PostsPerPage != 3 {
		t.Errorf("update was not persisted, posts per page = %d", reloaded.Server.PostsPerPage)
	}
	if reloaded.Server.ApiKey != "" {
		t.Error("the API key must not be written to disk")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
