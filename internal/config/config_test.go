package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gundog", cfg.Name)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)
}

func TestLoadParsesYAML(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GUNDOG_DB_PATH", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm:
  api_key: file-key
  model: gemini-2.5-pro
store:
  driver: redis
  redis:
    addr: redis.internal:6379
scenario:
  id: cristobal
  mission_path: scenarios/cristobal.xml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.LLM.APIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "redis.internal:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "cristobal", cfg.Scenario.ID)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestTimeoutDefaults(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 120*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 720*time.Hour, cfg.TokenTTL())

	cfg.LLM.Timeout = "45s"
	cfg.Auth.TokenTTL = "24h"
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "key"
	assert.NoError(t, cfg.Validate())

	cfg.Store.Driver = "dynamo"
	assert.Error(t, cfg.Validate())

	cfg.Store.Driver = "sqlite"
	cfg.LLM.APIKey = ""
	assert.Error(t, cfg.Validate())
}
