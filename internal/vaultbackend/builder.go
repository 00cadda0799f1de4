package vaultbackend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/vaultbackend/internal/config"
	"github.com/vyrodovalexey/vaultbackend/internal/observability"
	"github.com/vyrodovalexey/vaultbackend/internal/retry"
	"github.com/vyrodovalexey/vaultbackend/internal/scheduler"
	"github.com/vyrodovalexey/vaultbackend/internal/vault"
)

// RenewTaskID identifies the token renewal task.
const RenewTaskID = "refresh-vault-token"

var (
	// ErrVaultConfigMissing is returned when a client is needed but the
	// configuration has no vault section.
	ErrVaultConfigMissing = errors.New("vault config is missing")

	// ErrNoScheduler is returned by EnableTokenRenew when neither a runner nor
	// a scheduler is available.
	ErrNoScheduler = errors.New("no task scheduler configured")
)

// TaskScheduler creates task runners for a schedule.
type TaskScheduler interface {
	CreateScheduledTaskRunner(schedule scheduler.Schedule) scheduler.TaskRunner
}

// Env holds what the builder needs from the process.
type Env struct {
	Config    *config.Config
	Logger    observability.Logger
	Scheduler TaskScheduler

	// VaultMetrics is shared by every client the process builds.
	VaultMetrics *vault.Metrics
	Tracer       trace.Tracer

	// LoginRetry bounds the startup login for kubernetes and approle auth.
	LoginRetry *retry.Config
}

// Builder wires the Vault routes and the token renewal task.
type Builder struct {
	env    Env
	logger observability.Logger

	mu     sync.Mutex
	client vault.SecretsLister
	owned  bool
}

// NewBuilder creates a builder for env.
func NewBuilder(env Env) *Builder {
	logger := env.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	if env.Config == nil {
		env.Config = &config.Config{}
	}

	return &Builder{
		env:    env,
		logger: logger.With(observability.String("component", "vault-backend")),
	}
}

// NewRouter builds the Vault routes for env.
func NewRouter(ctx context.Context, env Env) (*gin.Engine, error) {
	return NewBuilder(env).Build(ctx)
}

// SetVaultClient replaces the client the builder would otherwise create.
func (b *Builder) SetVaultClient(client vault.SecretsLister) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.client = client
	b.owned = false
	return b
}

// Client returns the client in use, or nil before one is built.
func (b *Builder) Client() vault.SecretsLister {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// Build returns the Vault router. Without a vault section the router has no
// routes and no error is returned.
func (b *Builder) Build(ctx context.Context) (*gin.Engine, error) {
	b.logger.Info("Initializing Vault backend")

	vaultCfg := b.env.Config.Vault
	if vaultCfg == nil {
		b.logger.Warn("Failed to initialize Vault backend: vault config is missing")
		return newEngine(), nil
	}

	if vaultCfg.Token != "" {
		b.logger.Warn("The 'vault.token' configuration has been deprecated, use 'vault.auth' instead")
	}

	client, err := b.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	return buildRouter(client, b.logger), nil
}

// EnableTokenRenew registers the token renewal task on runner. A nil runner
// is created from vault.schedule. Kubernetes auth is skipped, as is a
// missing schedule when no runner is given.
func (b *Builder) EnableTokenRenew(ctx context.Context, runner scheduler.TaskRunner) error {
	if b.env.Config.Vault.AuthType() == config.AuthTypeKubernetes {
		b.logger.Warn("Token renewal not supported for Kubernetes authentication")
		return nil
	}

	if runner == nil {
		schedule, ok := b.Schedule()
		if !ok {
			b.logger.Info("Token renewal not scheduled: vault.schedule is not set")
			return nil
		}
		if b.env.Scheduler == nil {
			return ErrNoScheduler
		}
		runner = b.env.Scheduler.CreateScheduledTaskRunner(schedule)
	}

	return runner.Run(ctx, scheduler.TaskInvocation{
		ID: RenewTaskID,
		Fn: b.renewToken,
	})
}

// Schedule resolves vault.schedule. ok is false when renewal is not configured.
func (b *Builder) Schedule() (scheduler.Schedule, bool) {
	if b.env.Config.Vault == nil {
		return scheduler.Schedule{}, false
	}
	return scheduler.FromConfig(b.env.Config.Vault.Schedule)
}

func (b *Builder) renewToken(ctx context.Context) error {
	b.logger.Info("Renewing Vault token")

	client, err := b.ensureClient(ctx)
	if err != nil {
		return err
	}

	renewer, ok := client.(vault.TokenRenewer)
	if !ok {
		b.logger.Debug("vault client does not support token renewal")
		return nil
	}
	return renewer.RenewToken(ctx)
}

// ensureClient returns the shared client, creating it on first use.
func (b *Builder) ensureClient(ctx context.Context) (vault.SecretsLister, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return b.client, nil
	}

	vaultCfg := b.env.Config.Vault
	if vaultCfg == nil {
		return nil, ErrVaultConfigMissing
	}

	clientCfg := vault.ConfigFromFile(vaultCfg)
	clientCfg.Retry = b.env.LoginRetry

	opts := []vault.ClientOption{}
	if b.env.VaultMetrics != nil {
		opts = append(opts, vault.WithMetrics(b.env.VaultMetrics))
	}
	if b.env.Tracer != nil {
		opts = append(opts, vault.WithTracer(b.env.Tracer))
	}

	client, err := vault.New(clientCfg, b.env.Logger, opts...)
	if err != nil {
		return nil, err
	}

	if client.NeedsLogin() {
		if err := b.login(ctx, client); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	b.client = client
	b.owned = true
	return client, nil
}

func (b *Builder) login(ctx context.Context, client *vault.Client) error {
	return retry.Do(ctx, client.Config().Retry, func() error {
		return client.Authenticate(ctx)
	}, &retry.Options{
		ShouldRetry: vault.IsRetryable,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			b.logger.Warn("vault login failed, retrying",
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err),
			)
		},
	})
}

// Close closes the client if the builder created it.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.owned || b.client == nil {
		return nil
	}
	if closer, ok := b.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
