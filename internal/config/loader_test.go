package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfigYAML = `
server:
  port: 8080
  basePath: /vault
logging:
  level: debug
  format: console
vault:
  baseUrl: https://vault.example.com
  publicUrl: https://vault-ui.example.com
  auth:
    type: kubernetes
    role: backstage
    authPath: k8s
  secretEngine: kv
  kvVersion: 1
  listConcurrency: 10
  schedule:
    frequency: 30m
    timeout: 2m
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfigYAML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/vault", cfg.Server.BasePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.HasVault())
	assert.Equal(t, "https://vault.example.com", cfg.Vault.BaseURL)
	assert.Equal(t, "https://vault-ui.example.com", cfg.Vault.PublicURL)
	assert.Equal(t, AuthTypeKubernetes, cfg.Vault.AuthType())
	assert.Equal(t, "backstage", cfg.Vault.Auth.Role)
	assert.Equal(t, "k8s", cfg.Vault.Auth.AuthPath)
	assert.Equal(t, "kv", cfg.Vault.SecretEngine)
	assert.Equal(t, 1, cfg.Vault.KVVersion)
	assert.Equal(t, 10, cfg.Vault.ListConcurrency)
	assert.Equal(t, ScheduleCustom, cfg.Vault.Schedule.Kind)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfigFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromReader(strings.NewReader("vault:\n  baseUrl: http://127.0.0.1:8200\n  token: s.abc\n"))
	require.NoError(t, err)
	require.True(t, cfg.HasVault())
	assert.Equal(t, "s.abc", cfg.Vault.Token)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestParse_EmptyDocument(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.False(t, cfg.HasVault())
	assert.Equal(t, DefaultBasePath, cfg.Server.BasePath)
}

func TestParse_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("vault:\n  baseURL: http://vault:8200\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParse_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("server: [port"))
	assert.Error(t, err)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("VAULT_BACKEND_TEST_ADDR", "http://vault:8200")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "set", input: "${VAULT_BACKEND_TEST_ADDR}", want: "http://vault:8200"},
		{name: "default unused", input: "${VAULT_BACKEND_TEST_ADDR:-x}", want: "http://vault:8200"},
		{name: "default used", input: "${VAULT_BACKEND_TEST_UNSET:-fallback}", want: "fallback"},
		{name: "unset", input: "a${VAULT_BACKEND_TEST_UNSET}b", want: "ab"},
		{name: "escaped", input: "$${VAULT_BACKEND_TEST_ADDR}", want: "${VAULT_BACKEND_TEST_ADDR}"},
		{name: "plain", input: "no references", want: "no references"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteEnvVars(tt.input))
		})
	}
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("VAULT_BACKEND_TEST_TOKEN", "s.fromenv")

	cfg, err := Parse([]byte("vault:\n  baseUrl: http://vault:8200\n  auth:\n    type: static\n    secret: ${VAULT_BACKEND_TEST_TOKEN}\n"))
	require.NoError(t, err)
	assert.Equal(t, "s.fromenv", cfg.Vault.Auth.Secret)
}
