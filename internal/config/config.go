package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-project configuration file.
const ProjectConfigName = ".extsearch.yaml"

// Config represents the complete extsearch configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Server  ServerConfig  `yaml:"server" json:"server"`

	// Settings is the static application settings tree. It becomes the
	// django_settings layer of the search settings, so any key of the
	// defaults tree (boost_parts, analyzers, scoring_functions) can be
	// overridden here.
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// SearchConfig configures query building.
type SearchConfig struct {
	// IndexName is the search index; it prefixes query cache keys.
	IndexName string `yaml:"index_name" json:"index_name"`

	// CacheEnabled turns the built-query cache on. When false every
	// search rebuilds its query tree.
	CacheEnabled bool `yaml:"cache_enabled" json:"cache_enabled"`

	// CacheSize bounds the number of cached query trees.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// TieBreaker is the dis_max tie_breaker used by the compiler (0.0-1.0).
	TieBreaker float64 `yaml:"tie_breaker" json:"tie_breaker"`

	// DefaultLimit is the page size when a request does not set one.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// ModelsFile is an optional YAML file of model declarations used
	// instead of the built-in workspace registry.
	ModelsFile string `yaml:"models_file" json:"models_file"`
}

// StorageConfig configures the local SQLite database holding setting
// overrides and telemetry.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" json:"database_path"`
}

// EngineConfig selects and configures the search engine.
type EngineConfig struct {
	// Backend is "bleve" (local index) or "opensearch".
	Backend    string   `yaml:"backend" json:"backend"`
	Addresses  []string `yaml:"addresses" json:"addresses"`
	Username   string   `yaml:"username" json:"username"`
	Password   string   `yaml:"password" json:"-"`
	Timeout    string   `yaml:"timeout" json:"timeout"`
	MaxRetries int      `yaml:"max_retries" json:"max_retries"`
	// BlevePath is the on-disk bleve index (default ~/.extsearch/index.bleve).
	// Empty keeps the index in memory.
	BlevePath string `yaml:"bleve_path" json:"bleve_path"`
}

// TimeoutDuration parses Timeout, falling back to 10s.
func (e EngineConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(e.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// ServerConfig configures process-level behaviour.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a configuration with defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			IndexName:    "workspace",
			CacheEnabled: true,
			CacheSize:    512,
			TieBreaker:   0,
			DefaultLimit: 20,
		},
		Storage: StorageConfig{
			DatabasePath: dataPath("extsearch.db"),
		},
		Engine: EngineConfig{
			Backend:    "bleve",
			Addresses:  []string{"http://localhost:9200"},
			Timeout:    "10s",
			MaxRetries: 3,
			BlevePath:  dataPath("index.bleve"),
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
		Settings: map[string]any{},
	}
}

// dataPath returns name under ~/.extsearch.
func dataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".extsearch", name)
	}
	return filepath.Join(home, ".extsearch", name)
}

// GetUserConfigPath returns the user-level config file:
//   - $XDG_CONFIG_HOME/extsearch/config.yaml if XDG_CONFIG_HOME is set
//   - ~/.config/extsearch/config.yaml otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "extsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "extsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "extsearch", "config.yaml")
}

// UserConfigExists reports whether the user config file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration for dir. Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/extsearch/config.yaml)
//  3. Project config (.extsearch.yaml in dir)
//  4. EXTSEARCH_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if UserConfigExists() {
		if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if dir != "" {
		if path := filepath.Join(dir, ProjectConfigName); fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads defaults, then path, then environment overrides.
// Used by --config.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path on top of c. Keys absent from the file keep their
// current value; the settings tree is merged key by key.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	base := c.Settings
	c.Settings = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		c.Settings = base
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.Settings = mergeSettings(base, c.Settings)
	return nil
}

// mergeSettings deep-merges src into dst and returns dst.
func mergeSettings(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[k] = mergeSettings(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
	return dst
}

// applyEnvOverrides applies EXTSEARCH_* environment variables. These are
// distinct from the SEARCH_EXTENDED__* settings overrides, which feed the
// env layer of the search settings.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EXTSEARCH_INDEX_NAME"); v != "" {
		c.Search.IndexName = v
	}
	if v := os.Getenv("EXTSEARCH_CACHE_ENABLED"); v != "" {
		c.Search.CacheEnabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("EXTSEARCH_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.CacheSize = n
		}
	}
	if v := os.Getenv("EXTSEARCH_TIE_BREAKER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.Search.TieBreaker = f
		}
	}
	if v := os.Getenv("EXTSEARCH_MODELS_FILE"); v != "" {
		c.Search.ModelsFile = v
	}
	if v := os.Getenv("EXTSEARCH_DB_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("EXTSEARCH_ENGINE"); v != "" {
		c.Engine.Backend = v
	}
	if v := os.Getenv("EXTSEARCH_ENGINE_ADDRESSES"); v != "" {
		c.Engine.Addresses = splitList(v)
	}
	if v := os.Getenv("EXTSEARCH_ENGINE_USERNAME"); v != "" {
		c.Engine.Username = v
	}
	if v := os.Getenv("EXTSEARCH_ENGINE_PASSWORD"); v != "" {
		c.Engine.Password = v
	}
	if v := os.Getenv("EXTSEARCH_BLEVE_PATH"); v != "" {
		c.Engine.BlevePath = v
	}
	if v := os.Getenv("EXTSEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Search.IndexName == "" {
		return fmt.Errorf("search.index_name must not be empty")
	}
	if strings.Contains(c.Search.IndexName, "__") {
		return fmt.Errorf("search.index_name must not contain '__', got %s", c.Search.IndexName)
	}
	if c.Search.CacheSize <= 0 {
		return fmt.Errorf("search.cache_size must be positive, got %d", c.Search.CacheSize)
	}
	if c.Search.TieBreaker < 0 || c.Search.TieBreaker > 1 {
		return fmt.Errorf("search.tie_breaker must be between 0 and 1, got %f", c.Search.TieBreaker)
	}
	if c.Search.DefaultLimit < 0 {
		return fmt.Errorf("search.default_limit must be non-negative, got %d", c.Search.DefaultLimit)
	}

	switch strings.ToLower(c.Engine.Backend) {
	case "bleve":
	case "opensearch":
		if len(c.Engine.Addresses) == 0 {
			return fmt.Errorf("engine.addresses must not be empty for the opensearch backend")
		}
	default:
		return fmt.Errorf("engine.backend must be 'bleve' or 'opensearch', got %s", c.Engine.Backend)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be non-negative, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.Timeout != "" {
		if _, err := time.ParseDuration(c.Engine.Timeout); err != nil {
			return fmt.Errorf("engine.timeout: %w", err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
