package vault

import (
	"context"
	"sync/atomic"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/vaultbackend/internal/observability"
)

const tracerName = "github.com/vyrodovalexey/vaultbackend/internal/vault"

// SecretsLister lists the secrets below a path.
type SecretsLister interface {
	ListSecrets(ctx context.Context, secretPath string, opts ListOptions) ([]Secret, error)
}

// TokenRenewer renews the token the client is using.
type TokenRenewer interface {
	RenewToken(ctx context.Context) error
}

// Authenticator obtains a token from Vault.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// HealthChecker reports Vault server health.
type HealthChecker interface {
	Health(ctx context.Context) (*HealthStatus, error)
}

// HealthStatus represents Vault health status.
type HealthStatus struct {
	Initialized bool
	Sealed      bool
	Standby     bool
	Version     string
	ClusterName string
}

// Client talks to one Vault server. It is safe for concurrent use.
type Client struct {
	config  *Config
	api     *vaultapi.Client
	logger  observability.Logger
	metrics *Metrics
	tracer  trace.Tracer

	tokenTTL atomic.Int64
	closed   atomic.Bool
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*Client)

// WithMetrics sets the metrics recorder for the client.
func WithMetrics(metrics *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithTracer sets the tracer used for Vault call spans.
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// New creates a client. A static token is applied immediately; other auth
// methods need Authenticate before the first call.
func New(cfg *Config, logger observability.Logger, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, NewConfigurationError("", "configuration is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiConfig := vaultapi.DefaultConfig()
	if apiConfig.Error != nil {
		return nil, NewConfigurationErrorWithCause("", "failed to read vault environment", apiConfig.Error)
	}
	apiConfig.Address = cfg.Address
	// Request handlers and the renewal task report failures instead of retrying.
	apiConfig.MaxRetries = 0

	if cfg.TLS != nil {
		tlsConfig := &vaultapi.TLSConfig{
			CACert:     cfg.TLS.CACert,
			CAPath:     cfg.TLS.CAPath,
			ClientCert: cfg.TLS.ClientCert,
			ClientKey:  cfg.TLS.ClientKey,
			Insecure:   cfg.TLS.SkipVerify,
		}
		if err := apiConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, NewConfigurationErrorWithCause("tls", "failed to configure TLS", err)
		}
	}

	api, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, NewVaultError("init", "", err)
	}
	api.ClearToken()
	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	client := &Client{
		config: cfg,
		api:    api,
		logger: logger.With(observability.String("component", "vault")),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.metrics == nil {
		client.metrics = NewMetrics(nil)
	}
	if client.tracer == nil {
		client.tracer = otel.Tracer(tracerName)
	}

	if cfg.AuthMethod == AuthMethodToken {
		api.SetToken(cfg.Token)
	}

	return client, nil
}

// Config returns the client configuration.
func (c *Client) Config() *Config {
	return c.config
}

// NeedsLogin reports whether Authenticate must run before the first call.
func (c *Client) NeedsLogin() bool {
	return c.config.AuthMethod != AuthMethodToken
}

// TokenTTL returns the TTL reported by the last login or renewal.
func (c *Client) TokenTTL() time.Duration {
	return time.Duration(c.tokenTTL.Load()) * time.Second
}

// Authenticate logs in with the configured auth method.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	ctx, span := c.startSpan(ctx, "vault.authenticate",
		attribute.String("vault.auth_method", string(c.config.AuthMethod)))

	start := time.Now()
	var err error
	switch c.config.AuthMethod {
	case AuthMethodToken:
		err = c.loginWithToken()
	case AuthMethodKubernetes:
		err = c.loginWithKubernetes(ctx)
	case AuthMethodAppRole:
		err = c.loginWithAppRole(ctx)
	default:
		err = NewConfigurationError("authMethod", "unsupported auth method: "+string(c.config.AuthMethod))
	}
	duration := time.Since(start)

	c.metrics.RecordRequest("authenticate", statusOf(err), duration)
	endSpan(span, err)
	if err != nil {
		return err
	}

	c.logger.Info("authenticated with vault",
		observability.String("method", string(c.config.AuthMethod)),
		observability.Duration("duration", duration),
	)
	return nil
}

// RenewToken renews the current token through auth/token/renew-self.
func (c *Client) RenewToken(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.api.Token() == "" {
		return ErrNotAuthenticated
	}

	ctx, span := c.startSpan(ctx, "vault.renew_token")

	start := time.Now()
	secret, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
	c.metrics.RecordRequest("renew_token", statusOf(err), time.Since(start))
	if err != nil {
		err = wrapResponseError("renew_token", "auth/token/renew-self", err)
		endSpan(span, err)
		return err
	}
	endSpan(span, nil)

	if secret != nil && secret.Auth != nil {
		c.storeTTL(secret.Auth.LeaseDuration)
	}

	c.logger.Debug("token renewed",
		observability.Int64("ttl_seconds", c.tokenTTL.Load()),
	)
	return nil
}

// Health returns Vault health status.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	ctx, span := c.startSpan(ctx, "vault.health")

	start := time.Now()
	health, err := c.api.Sys().HealthWithContext(ctx)
	c.metrics.RecordRequest("health", statusOf(err), time.Since(start))
	if err != nil {
		err = wrapResponseError("health", "sys/health", err)
		endSpan(span, err)
		return nil, err
	}
	endSpan(span, nil)

	return &HealthStatus{
		Initialized: health.Initialized,
		Sealed:      health.Sealed,
		Standby:     health.Standby,
		Version:     health.Version,
		ClusterName: health.ClusterName,
	}, nil
}

// Close marks the client closed. Later calls return ErrClientClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Info("vault client closed")
	return nil
}

func (c *Client) storeTTL(seconds int) {
	c.tokenTTL.Store(int64(seconds))
	c.metrics.SetTokenTTL(float64(seconds))
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

var (
	_ SecretsLister = (*Client)(nil)
	_ TokenRenewer  = (*Client)(nil)
	_ Authenticator = (*Client)(nil)
	_ HealthChecker = (*Client)(nil)
)
