package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty temp dir so the developer's
// own ~/.config/extsearch does not leak into tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "workspace", cfg.Search.IndexName)
	assert.True(t, cfg.Search.CacheEnabled)
	assert.Equal(t, 512, cfg.Search.CacheSize)
	assert.Equal(t, 0.0, cfg.Search.TieBreaker)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, "bleve", cfg.Engine.Backend)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.True(t, filepath.IsAbs(cfg.Storage.DatabasePath))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	userPath := filepath.Join(xdg, "extsearch", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte(`
search:
  index_name: user_index
  cache_size: 64
settings:
  boost_parts:
    query_types:
      phrase: 20.0
      fuzzy: 0.5
`), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte(`
search:
  index_name: project_index
  cache_enabled: false
settings:
  boost_parts:
    query_types:
      phrase: 30.0
`), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "project_index", cfg.Search.IndexName)
	assert.Equal(t, 64, cfg.Search.CacheSize, "user value survives when project omits it")
	assert.False(t, cfg.Search.CacheEnabled, "explicit false is honoured")

	qt := cfg.Settings["boost_parts"].(map[string]any)["query_types"].(map[string]any)
	assert.Equal(t, 30.0, qt["phrase"])
	assert.Equal(t, 0.5, qt["fuzzy"])
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("search:\n  index_name: from_file\n"), 0o644))

	t.Setenv("EXTSEARCH_INDEX_NAME", "from_env")
	t.Setenv("EXTSEARCH_CACHE_ENABLED", "0")
	t.Setenv("EXTSEARCH_ENGINE", "opensearch")
	t.Setenv("EXTSEARCH_ENGINE_ADDRESSES", "http://a:9200, http://b:9200")
	t.Setenv("EXTSEARCH_TIE_BREAKER", "0.3")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Search.IndexName)
	assert.False(t, cfg.Search.CacheEnabled)
	assert.Equal(t, "opensearch", cfg.Engine.Backend)
	assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.Engine.Addresses)
	assert.Equal(t, 0.3, cfg.Search.TieBreaker)
}

func TestLoad_InvalidEnvIgnored(t *testing.T) {
	isolate(t)
	t.Setenv("EXTSEARCH_CACHE_SIZE", "lots")
	t.Setenv("EXTSEARCH_TIE_BREAKER", "7")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Search.CacheSize)
	assert.Equal(t, 0.0, cfg.Search.TieBreaker)
}

func TestLoad_MalformedYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("search: [unclosed"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  backend: bleve\n  timeout: 2s\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Engine.TimeoutDuration())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty index", func(c *Config) { c.Search.IndexName = "" }, "index_name"},
		{"separator in index", func(c *Config) { c.Search.IndexName = "a__b" }, "'__'"},
		{"zero cache size", func(c *Config) { c.Search.CacheSize = 0 }, "cache_size"},
		{"tie breaker range", func(c *Config) { c.Search.TieBreaker = 1.5 }, "tie_breaker"},
		{"unknown backend", func(c *Config) { c.Engine.Backend = "solr" }, "engine.backend"},
		{"opensearch without addresses", func(c *Config) {
			c.Engine.Backend = "opensearch"
			c.Engine.Addresses = nil
		}, "engine.addresses"},
		{"bad timeout", func(c *Config) { c.Engine.Timeout = "soon" }, "engine.timeout"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestTimeoutDuration_Fallback(t *testing.T) {
	assert.Equal(t, 10*time.Second, EngineConfig{}.TimeoutDuration())
	assert.Equal(t, 10*time.Second, EngineConfig{Timeout: "-1s"}.TimeoutDuration())
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	isolate(t)
	cfg := NewConfig()
	cfg.Search.IndexName = "written"
	cfg.Settings["boost_parts"] = map[string]any{"extras": map[string]any{"x": 1.0}}

	dir := t.TempDir()
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectConfigName)))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "written", loaded.Search.IndexName)
	assert.Equal(t, 1.0, loaded.Settings["boost_parts"].(map[string]any)["extras"].(map[string]any)["x"])
}
