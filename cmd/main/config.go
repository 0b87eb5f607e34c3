package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/loomkit/loom/pkg/loom"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP servers and the on-disk
// layout.
type ServerConfig struct {
	PageAddr       string `json:"page_addr"`
	ApiAddr        string `json:"api_addr"`
	LogLevel       string `json:"log_level"`
	TemplateDir    string `json:"template_dir"`
	TemplateExt    string `json:"template_ext"`
	DatabasePath   string `json:"database_path"`
	WatchTemplates bool   `json:"watch_templates"`
	RenderMarkdown bool   `json:"render_markdown"`
}

// EngineConfig holds the template engine settings. The delimiter fields map
// onto loom.Delims; empty fields fall back to the engine defaults.
type EngineConfig struct {
	OpenDelim      string         `json:"open_delim"`
	CloseDelim     string         `json:"close_delim"`
	EscapeMarker   string         `json:"escape_marker"`
	UnescapeMarker string         `json:"unescape_marker"`
	ImportMarker   string         `json:"import_marker"`
	CommentMarker  string         `json:"comment_marker"`
	Modules        []string       `json:"modules"`
	Globals        map[string]any `json:"globals"`
}

// Options converts the engine configuration into compile options. The Loader
// field stays nil; the template Manager owns it.
func (c *EngineConfig) Options() loom.Options {
	return loom.Options{
		Delims: loom.Delims{
			Open:     c.OpenDelim,
			Close:    c.CloseDelim,
			Escape:   c.EscapeMarker,
			Unescape: c.UnescapeMarker,
			Import:   c.ImportMarker,
			Comment:  c.CommentMarker,
		},
		Modules: c.Modules,
		Globals: c.Globals,
	}
}

// Config is the top-level configuration struct that aggregates all other
// configs.
type Config struct {
	Server *ServerConfig `json:"server_config"`
	Engine *EngineConfig `json:"engine_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		PageAddr:       ":8277",
		ApiAddr:        ":8278",
		LogLevel:       "info",
		TemplateDir:    "./data/templates",
		TemplateExt:    ".loom",
		DatabasePath:   "./data/loom.db?_journal_mode=WAL&_busy_timeout=5000",
		WatchTemplates: true,
		RenderMarkdown: true,
	}
}

// DefaultEngineConfig creates an engine configuration with default values.
// Delimiters are left empty so the engine defaults apply; the Tengo "text"
// and "times" modules are importable out of the box.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Modules: []string{"text", "times"},
		Globals: map[string]any{},
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		Server: DefaultServerConfig(),
		Engine: DefaultEngineConfig(),
	}

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults, so only warn.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig persists the configuration to disk atomically, so a crash mid
// write cannot leave a truncated config behind.
func SaveConfig(path string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
