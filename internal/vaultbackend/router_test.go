package vaultbackend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/vaultbackend/internal/config"
	"github.com/vyrodovalexey/vaultbackend/internal/observability"
	"github.com/vyrodovalexey/vaultbackend/internal/vault"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type listCall struct {
	path string
	opts vault.ListOptions
}

type fakeLister struct {
	mu    sync.Mutex
	calls []listCall
	items []vault.Secret
	err   error
}

func (f *fakeLister) ListSecrets(_ context.Context, secretPath string, opts vault.ListOptions) ([]vault.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, listCall{path: secretPath, opts: opts})
	return f.items, f.err
}

func (f *fakeLister) recorded() []listCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]listCall(nil), f.calls...)
}

var sampleItems = []vault.Secret{
	{Name: "db", Path: "team", ShowURL: "http://vault/ui/vault/secrets/secrets/show/team/db", EditURL: "http://vault/ui/vault/secrets/secrets/edit/team/db"},
	{Name: "api", Path: "team/x", ShowURL: "http://vault/ui/vault/secrets/secrets/show/team/x/api", EditURL: "http://vault/ui/vault/secrets/secrets/edit/team/x/api"},
}

func vaultEnabledConfig() *config.Config {
	return &config.Config{Vault: &config.VaultConfig{
		BaseURL: "http://vault:8200",
		Auth:    &config.VaultAuthConfig{Type: config.AuthTypeStatic, Secret: "s.token"},
	}}
}

func newTestRouter(t *testing.T, lister vault.SecretsLister) *gin.Engine {
	t.Helper()

	b := NewBuilder(Env{Config: vaultEnabledConfig(), Logger: observability.NopLogger()})
	b.SetVaultClient(lister)
	router, err := b.Build(context.Background())
	require.NoError(t, err)
	return router
}

func serve(router http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &fakeLister{})
	w := serve(router, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRouter_ListSecrets(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{items: sampleItems}
	router := newTestRouter(t, lister)

	w := serve(router, "/v1/secrets/foo")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []listCall{{path: "foo", opts: vault.ListOptions{SecretEngine: ""}}}, lister.recorded())

	want, err := json.Marshal(map[string]interface{}{"items": sampleItems})
	require.NoError(t, err)
	assert.JSONEq(t, string(want), w.Body.String())
}

func TestRouter_ListSecretsWithEngine(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{items: sampleItems}
	router := newTestRouter(t, lister)

	w := serve(router, "/v1/secrets/foo?engine=kv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []listCall{{path: "foo", opts: vault.ListOptions{SecretEngine: "kv"}}}, lister.recorded())
}

func TestRouter_ListSecretsEncodedNestedPath(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{}
	router := newTestRouter(t, lister)

	w := serve(router, "/v1/secrets/team%2Fbackend%2Fdb")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, lister.recorded(), 1)
	assert.Equal(t, "team/backend/db", lister.recorded()[0].path)
}

func TestRouter_ListSecretsEmptyIsArray(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &fakeLister{})
	w := serve(router, "/v1/secrets/empty")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}

func TestRouter_ListSecretsRepeatedEngine(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{}
	router := newTestRouter(t, lister)

	w := serve(router, "/v1/secrets/foo?engine=kv&engine=v2")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, lister.recorded())

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "InputError", body.Error.Name)
	assert.Equal(t, "Invalid engine: kv,v2", body.Error.Message)
	assert.Equal(t, http.MethodGet, body.Request.Method)
	assert.Equal(t, "/v1/secrets/foo?engine=kv&engine=v2", body.Request.URL)
	assert.Equal(t, http.StatusBadRequest, body.Response.StatusCode)
}

func TestRouter_ListSecretsBlankPath(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{}
	router := newTestRouter(t, lister)

	w := serve(router, "/v1/secrets/%20")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, lister.recorded())
}

func TestRouter_ListSecretsDotSegments(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{}
	router := newTestRouter(t, lister)

	for _, target := range []string{
		"/v1/secrets/team%2F..%2Fother",
		"/v1/secrets/..",
		"/v1/secrets/team%2F.%2Fdb",
	} {
		w := serve(router, target)
		require.Equal(t, http.StatusBadRequest, w.Code, target)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "InputError", body.Error.Name, target)
	}
	assert.Empty(t, lister.recorded())

	w := serve(router, "/v1/secrets/team%2F..db")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ListSecretsClientErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantName   string
	}{
		{
			name:       "not found",
			err:        vault.NewVaultErrorWithCode("list", "secrets/metadata/foo", vault.ErrSecretNotFound, 404),
			wantStatus: http.StatusNotFound,
			wantName:   "NotFoundError",
		},
		{
			name:       "not found error type",
			err:        &NotFoundError{Message: "no secrets"},
			wantStatus: http.StatusNotFound,
			wantName:   "NotFoundError",
		},
		{
			name:       "permission denied",
			err:        vault.NewVaultErrorWithCode("list", "secrets/metadata/foo", vault.ErrPermissionDenied, 403),
			wantStatus: http.StatusForbidden,
			wantName:   "NotAllowedError",
		},
		{
			name:       "unauthenticated",
			err:        vault.ErrNotAuthenticated,
			wantStatus: http.StatusForbidden,
			wantName:   "NotAllowedError",
		},
		{
			name:       "vault status kept",
			err:        vault.NewVaultErrorWithCode("list", "secrets/metadata/foo", errors.New("sealed"), 503),
			wantStatus: http.StatusServiceUnavailable,
			wantName:   "VaultError",
		},
		{
			name:       "invalid path from client",
			err:        vault.NewVaultError("list", "team/../other", vault.ErrInvalidPath),
			wantStatus: http.StatusBadRequest,
			wantName:   "InputError",
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantName:   "Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := newTestRouter(t, &fakeLister{err: tt.err})
			w := serve(router, "/v1/secrets/foo")

			require.Equal(t, tt.wantStatus, w.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantName, body.Error.Name)
			assert.Equal(t, tt.err.Error(), body.Error.Message)
			assert.Equal(t, tt.wantStatus, body.Response.StatusCode)
		})
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &fakeLister{})
	assert.Equal(t, http.StatusNotFound, serve(router, "/v1/secrets").Code)

	w := serve(router, "/v2/secrets/foo")
	require.Equal(t, http.StatusNotFound, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NotFoundError", body.Error.Name)
	assert.Equal(t, "Not found: /v2/secrets/foo", body.Error.Message)
}
