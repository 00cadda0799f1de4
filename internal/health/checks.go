package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vyrodovalexey/vaultbackend/internal/vault"
)

// Errors reported by VaultCheck.
var (
	ErrVaultNotInitialized = errors.New("vault is not initialized")
	ErrVaultSealed         = errors.New("vault is sealed")
)

// VaultCheck reports whether the Vault behind current is initialized and
// unsealed. current is called on every check so that a reloaded client is
// picked up; a nil result means Vault is not configured and passes.
func VaultCheck(current func() vault.HealthChecker) HealthCheck {
	return NewHealthCheckFunc("vault", func(ctx context.Context) error {
		checker := current()
		if checker == nil {
			return nil
		}

		status, err := checker.Health(ctx)
		if err != nil {
			return err
		}
		switch {
		case !status.Initialized:
			return ErrVaultNotInitialized
		case status.Sealed:
			return ErrVaultSealed
		}
		return nil
	})
}

// CachedHealthCheck reuses the last result of check for cacheTTL.
type CachedHealthCheck struct {
	check    HealthCheck
	cacheTTL time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastResult error
}

// NewCachedHealthCheck wraps check with a result cache.
func NewCachedHealthCheck(check HealthCheck, cacheTTL time.Duration) *CachedHealthCheck {
	return &CachedHealthCheck{
		check:    check,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Name returns the name of the wrapped check.
func (c *CachedHealthCheck) Name() string {
	return c.check.Name()
}

// Check returns the cached result or runs the wrapped check.
func (c *CachedHealthCheck) Check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastCheck.IsZero() && c.now().Sub(c.lastCheck) < c.cacheTTL {
		return c.lastResult
	}

	c.lastResult = c.check.Check(ctx)
	c.lastCheck = c.now()
	return c.lastResult
}
