package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CRM_AUTH_PEPPER", "pepper")
	t.Setenv("PORT", "")

	cfg, err := loadConfig(nil, true)
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "https://dummyjson.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 30, cfg.Catalog.PageSize)
	assert.Equal(t, 1, cfg.Catalog.WarmPages)
	assert.Equal(t, 16, cfg.Catalog.EventBuffer)
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("CRM_AUTH_PEPPER", "pepper")
	t.Setenv("CRM_ADDR", "127.0.0.1:9090")
	t.Setenv("CRM_UPSTREAM_TIMEOUT", "2s")
	t.Setenv("CRM_CATALOG_PAGE_SIZE", "12")

	cfg, err := loadConfig(nil, true)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr)
	assert.Equal(t, 2*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 12, cfg.Catalog.PageSize)
}

func TestLoadConfig_PepperRequired(t *testing.T) {
	t.Setenv("CRM_AUTH_PEPPER", "")

	_, err := loadConfig(nil, true)
	require.Error(t, err)
}

func TestLoadConfig_Port(t *testing.T) {
	t.Setenv("CRM_AUTH_PEPPER", "pepper")
	t.Setenv("PORT", "3000")

	cfg, err := loadConfig(nil, true)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3000", cfg.Addr)

	t.Setenv("CRM_ADDR", "127.0.0.1:9090")
	cfg, err = loadConfig(nil, true)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr, "explicit address wins over PORT")
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: 127.0.0.1:7070\nauth:\n  pepper: from-file\n"), 0o600))

	cfg, err := loadConfig([]string{path}, true)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7070", cfg.Addr)
	assert.Equal(t, "from-file", cfg.Auth.Pepper)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Auth:     AuthConfig{Pepper: "p"},
			Catalog:  CatalogConfig{PageSize: 30},
			Upstream: UpstreamConfig{Timeout: time.Second},
		}
	}
	cfg := valid()
	require.NoError(t, cfg.validate())

	cfg = valid()
	cfg.Catalog.PageSize = 0
	require.Error(t, cfg.validate())

	cfg = valid()
	cfg.Catalog.WarmPages = -1
	require.Error(t, cfg.validate())

	cfg = valid()
	cfg.Upstream.Timeout = 0
	require.Error(t, cfg.validate())
}
