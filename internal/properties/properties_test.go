package properties

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"COPERNICUS_CLIENT_ID", "COPERNICUS_CLIENT_SECRET", "COPERNICUS_TOKEN_URL",
		"COPERNICUS_BASE_URL", "SENTINEL_MAX_ATTEMPTS", "SENTINEL_RETRY_DELAY",
		"FETCH_WORKERS", "CACHE_BACKEND", "STORE_DSN", "API_ADDR", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultTokenURL, cfg.TokenURL)
	assert.Equal(t, defaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 1, cfg.MaxAttempts)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, "file", cfg.CacheBackend)
	assert.False(t, cfg.HasCredentials())
}

func TestLoad_CredentialLists(t *testing.T) {
	t.Setenv("COPERNICUS_CLIENT_ID", "a, b")
	t.Setenv("COPERNICUS_CLIENT_SECRET", "x,y")
	t.Setenv("COPERNICUS_BASE_URL", "http://localhost:9000/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cfg.ClientIDs)
	assert.Equal(t, []string{"x", "y"}, cfg.ClientSecrets)
	assert.Equal(t, "http://localhost:9000", cfg.BaseURL)
	assert.True(t, cfg.HasCredentials())
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string][2]string{
		"mismatched credentials": {"COPERNICUS_CLIENT_ID", "a,b"},
		"bad workers":            {"FETCH_WORKERS", "zero"},
		"bad attempts":           {"SENTINEL_MAX_ATTEMPTS", "-1"},
		"bad delay":              {"SENTINEL_RETRY_DELAY", "soon"},
		"bad cache":              {"CACHE_BACKEND", "redis"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("COPERNICUS_CLIENT_SECRET", "x")
			t.Setenv("COPERNICUS_CLIENT_ID", "a")
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PROPERTIES_TEST_KEY=loaded\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("PROPERTIES_TEST_KEY") })

	used := LoadEnv(filepath.Join(dir, "missing.env"), envFile)
	assert.Equal(t, envFile, used)
	assert.Equal(t, "loaded", os.Getenv("PROPERTIES_TEST_KEY"))
}

func TestDataPath(t *testing.T) {
	t.Setenv("ROOT_PATH", "/srv/stats")
	assert.Equal(t, "/srv/stats/data/result/x.csv", DataPath("result", "x.csv"))
}
