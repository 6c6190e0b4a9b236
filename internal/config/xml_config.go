// Package config provides XML-based configuration management for the
// import gateway.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"ImportGateway"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Upstream API configuration
	Upstream UpstreamConfig `xml:"Upstream"`

	// Import pipeline configuration
	Import ImportConfig `xml:"Import"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file and data storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	DraftsDirectory  string `xml:"DraftsDirectory"`
	HistoryDatabase  string `xml:"HistoryDatabase"`
	TokenFile        string `xml:"TokenFile"`
}

// UpstreamConfig describes how the upstream inventory API is reached.
// In deployed mode every request goes through the fixed prefix; in
// development mode the address comes from the persisted server settings
// file with a hard-coded localhost fallback.
type UpstreamConfig struct {
	Deployed     bool   `xml:"Deployed"`
	Prefix       string `xml:"Prefix"`
	SettingsFile string `xml:"SettingsFile"`
}

// ImportConfig contains import pipeline settings
type ImportConfig struct {
	SessionTimeoutMinutes  int    `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes"`
	RuleOverridesFile      string `xml:"RuleOverridesFile"`
	EnableHistory          bool   `xml:"EnableHistory"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                  string `xml:"LogLevel"`
	EnableRequestLogging      bool   `xml:"EnableRequestLogging"`
	SessionStoreCheckMinutes  int    `xml:"SessionStoreCheckMinutes"`
	SessionStoreStatusFile    string `xml:"SessionStoreStatusFile"`
	WebSocketPollMilliseconds int    `xml:"WebSocketPollMilliseconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "16M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			DraftsDirectory:  "./data/drafts",
			HistoryDatabase:  "./data/history.duckdb",
			TokenFile:        "./data/token.json",
		},
		Upstream: UpstreamConfig{
			Deployed:     false,
			Prefix:       "/prod-api",
			SettingsFile: "./data/server-settings.json",
		},
		Import: ImportConfig{
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			RuleOverridesFile:      "",
			EnableHistory:          true,
		},
		Advanced: AdvancedConfig{
			LogLevel:                  "info",
			EnableRequestLogging:      true,
			SessionStoreCheckMinutes:  30,
			SessionStoreStatusFile:    "./data/session-store.json",
			WebSocketPollMilliseconds: 250,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Import Gateway Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	// UPSTREAM_PREFIX forces deployed mode with a fixed prefix
	if prefix := os.Getenv("UPSTREAM_PREFIX"); prefix != "" {
		c.Upstream.Deployed = true
		c.Upstream.Prefix = prefix
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.UploadsDirectory)
	resolve(&c.Storage.DraftsDirectory)
	resolve(&c.Storage.HistoryDatabase)
	resolve(&c.Storage.TokenFile)
	resolve(&c.Upstream.SettingsFile)
	resolve(&c.Import.RuleOverridesFile)
	resolve(&c.Advanced.SessionStoreStatusFile)
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.DraftsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
