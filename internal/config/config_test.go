package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/cartsync/internal/testutil"
)

var configEnv = []string{
	"CARTSYNC_DB_PATH", "CARTSYNC_DB_PATH_FILE", "CARTSYNC_API_URL", "CARTSYNC_API_TOKEN",
	"CARTSYNC_API_TOKEN_FILE", "CARTSYNC_SERVER_TOKEN", "CARTSYNC_SERVER_TOKEN_FILE",
	"CARTSYNC_FETCH_FAILURE", "CARTSYNC_LOG_LEVEL", "CARTSYNC_LOG_FORMAT", "CARTSYNC_OUTPUT",
	"CARTSYNC_SERVER_ADDR", "CARTSYNC_REQUEST_TIMEOUT", "CARTSYNC_PUSH_DEBOUNCE",
	"CARTSYNC_SERVER_RATE", "CARTSYNC_SERVER_BURST",
}

// isolate points HOME and the working directory at fresh temp dirs and
// clears every CARTSYNC_ variable.
func isolate(t *testing.T) (home, work string) {
	t.Helper()
	home = t.TempDir()
	work = filepath.Join(home, "project", "sub")
	require.NoError(t, os.MkdirAll(work, 0755))
	t.Setenv("HOME", home)
	for _, name := range configEnv {
		t.Setenv(name, "")
	}
	t.Chdir(work)
	return home, work
}

func TestLoad_Defaults(t *testing.T) {
	home, _ := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, "abort", cfg.FetchFailure)
	assert.Equal(t, "table", cfg.Output)
	assert.Equal(t, DefaultServerAddr, cfg.ServerAddr)
	assert.Equal(t, filepath.Join(home, ".local", "share", "cartsync", "cartsync.db"), cfg.DBPath)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	home, _ := isolate(t)
	testutil.WriteFile(t, home, ".config/cartsync/config.yaml", `
api_url: http://shop.example/api/v1
request_timeout: 3s
push_debounce: 250ms
output: json
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://shop.example/api/v1", cfg.APIURL)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.PushDebounce)
	assert.Equal(t, "json", cfg.Output)

	t.Setenv("CARTSYNC_OUTPUT", "yaml")
	t.Setenv("CARTSYNC_REQUEST_TIMEOUT", "1s")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.Output)
	assert.Equal(t, time.Second, cfg.RequestTimeout)
}

func TestLoad_EnvLocalInParent(t *testing.T) {
	home, _ := isolate(t)
	testutil.WriteFile(t, home, "project/.env.local", "CARTSYNC_FETCH_FAILURE=empty\n")
	// godotenv sets variables for the process; clear it again afterwards.
	t.Cleanup(func() { os.Unsetenv("CARTSYNC_FETCH_FAILURE") })
	os.Unsetenv("CARTSYNC_FETCH_FAILURE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "empty", cfg.FetchFailure)
}

func TestLoad_FileVariants(t *testing.T) {
	home, _ := isolate(t)
	tokenPath := testutil.WriteFile(t, home, "secrets/token", "s3cret\n")
	t.Setenv("CARTSYNC_API_TOKEN_FILE", tokenPath)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.APIToken)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, env, value string
	}{
		{"fetch failure", "CARTSYNC_FETCH_FAILURE", "retry"},
		{"output", "CARTSYNC_OUTPUT", "xml"},
		{"timeout", "CARTSYNC_REQUEST_TIMEOUT", "soon"},
		{"rate", "CARTSYNC_SERVER_RATE", "fast"},
		{"burst", "CARTSYNC_SERVER_BURST", "-x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.env, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	home, _ := isolate(t)
	testutil.WriteFile(t, home, ".config/cartsync/config.yaml", "api_url: [unterminated\n")
	_, err := Load()
	assert.Error(t, err)
}

func TestFindEnvLocal_StopsAtHome(t *testing.T) {
	home, _ := isolate(t)
	assert.Empty(t, findEnvLocal())

	testutil.WriteFile(t, home, ".env.local", "X=1\n")
	found := findEnvLocal()
	expected, _ := filepath.EvalSymlinks(filepath.Join(home, ".env.local"))
	got, _ := filepath.EvalSymlinks(found)
	assert.Equal(t, expected, got)
}
