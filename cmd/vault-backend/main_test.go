package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/vaultbackend/internal/config"
	"github.com/vyrodovalexey/vaultbackend/internal/observability"
	"github.com/vyrodovalexey/vaultbackend/internal/vaultbackend"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newFakeVault answers LIST secrets/metadata/team with one key and
// reports itself healthy.
func newFakeVault(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/secrets/metadata/team" && r.URL.Query().Get("list") == "true":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"keys": []string{"db"}},
			})
		case r.URL.Path == "/v1/sys/health":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"initialized": true, "sealed": false, "standby": false, "version": "1.15.0",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = config.Duration(5 * time.Second)
	cfg.Metrics.Enabled = true
	return cfg
}

func vaultConfig(baseURL string) *config.Config {
	cfg := baseConfig()
	cfg.Vault = &config.VaultConfig{
		BaseURL:  baseURL,
		Auth:     &config.VaultAuthConfig{Type: config.AuthTypeStatic, Secret: "s.test"},
		Schedule: config.ScheduleConfig{Kind: config.ScheduleDefault},
	}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *application {
	t.Helper()

	app, err := newApplication(context.Background(), cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.shutdown(ctx)
	})
	return app
}

func get(app *application, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	app.server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestParseFlags(t *testing.T) {
	t.Setenv("VAULT_BACKEND_CONFIG_PATH", "/etc/vault-backend.yaml")
	t.Setenv("VAULT_BACKEND_LOG_LEVEL", "debug")

	flags := parseFlags(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	assert.Equal(t, "/etc/vault-backend.yaml", flags.configPath)
	assert.Equal(t, "debug", flags.logLevel)
	assert.Empty(t, flags.logFormat)
	assert.False(t, flags.showVersion)

	flags = parseFlags(flag.NewFlagSet("test", flag.ContinueOnError),
		[]string{"-config", "local.yaml", "-log-format", "console", "-version"})
	assert.Equal(t, "local.yaml", flags.configPath)
	assert.Equal(t, "console", flags.logFormat)
	assert.True(t, flags.showVersion)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("VAULT_BACKEND_TEST_VALUE", "set")

	assert.Equal(t, "set", getEnvOrDefault("VAULT_BACKEND_TEST_VALUE", "default"))
	assert.Equal(t, "default", getEnvOrDefault("VAULT_BACKEND_TEST_UNSET", "default"))
}

func TestInitLogger(t *testing.T) {
	t.Parallel()

	logger, err := initLogger(cliFlags{}, config.LoggingConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = initLogger(cliFlags{logLevel: "verbose"}, config.LoggingConfig{Level: "info"})
	assert.Error(t, err)
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
server:
  port: 7100
vault:
  baseUrl: http://vault:8200
  auth:
    type: static
    secret: s.test
  schedule: true
`), 0o600))

	cfg, err := loadAndValidateConfig(valid)
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.Port)
	assert.Equal(t, config.DefaultBasePath, cfg.Server.BasePath)
	assert.Equal(t, config.ScheduleDefault, cfg.Vault.Schedule.Kind)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("vault:\n  baseUrl: not-a-url\n  token: x\n"), 0o600))
	_, err = loadAndValidateConfig(invalid)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid configuration"))

	_, err = loadAndValidateConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to load configuration"))
}

func TestApplication_WithoutVault(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, baseConfig())

	w := get(app, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, get(app, "/api/vault/v1/secrets/team").Code)
	assert.Equal(t, http.StatusNotFound, get(app, "/api/vault/health").Code)
	assert.Equal(t, http.StatusOK, get(app, "/readyz").Code)
	assert.Empty(t, app.scheduler.Tasks())
}

func TestApplication_WithVault(t *testing.T) {
	t.Parallel()

	fake := newFakeVault(t)
	app := newTestApp(t, vaultConfig(fake.URL))

	w := get(app, "/api/vault/v1/secrets/team")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"db"`)

	assert.JSONEq(t, `{"status":"ok"}`, get(app, "/api/vault/health").Body.String())
	assert.Equal(t, http.StatusOK, get(app, "/readyz").Code)
	assert.Equal(t, []string{vaultbackend.RenewTaskID}, app.scheduler.Tasks())

	metrics := get(app, "/metrics").Body.String()
	assert.Contains(t, metrics, "vault_backend_vault_requests_total")
	assert.Contains(t, metrics, "vault_backend_build_info")
}

func TestApplication_ApplyConfig(t *testing.T) {
	t.Parallel()

	fake := newFakeVault(t)
	app := newTestApp(t, vaultConfig(fake.URL))
	require.Equal(t, http.StatusOK, get(app, "/api/vault/v1/secrets/team").Code)

	broken := vaultConfig(fake.URL)
	broken.Vault.KVVersion = 7
	app.applyConfig(context.Background(), broken)

	assert.Equal(t, http.StatusOK, get(app, "/api/vault/v1/secrets/team").Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(app.reload.reloadTotal.WithLabelValues("error")))

	app.applyConfig(context.Background(), baseConfig())

	assert.Equal(t, http.StatusNotFound, get(app, "/api/vault/v1/secrets/team").Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(app.reload.reloadTotal.WithLabelValues("success")))
	assert.Nil(t, app.vaultHealth())
	require.Eventually(t, func() bool { return len(app.scheduler.Tasks()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestApplication_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vault-backend.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o600))

	app, err := newApplication(context.Background(), baseConfig(), observability.NopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.run(ctx, path) }()

	require.Eventually(t, func() bool { return app.server.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + app.server.Addr() + "/health")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
