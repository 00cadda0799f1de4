package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/robfig/cron/v3"
)

// ErrInvalidConfig is matched by every ValidationError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrInvalidConfig) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Known vault.auth.type values.
const (
	AuthTypeStatic     = "static"
	AuthTypeKubernetes = "kubernetes"
	AuthTypeAppRole    = "approle"
)

// Validate checks the settings the process cannot start without. A missing
// vault section is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("server.port", "must be between 0 and 65535, got %d", c.Server.Port)
	}
	if rl := c.Server.RateLimit; rl != nil && rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			return invalid("server.rateLimit.requestsPerSecond", "must be positive, got %d", rl.RequestsPerSecond)
		}
		if rl.Burst < 0 {
			return invalid("server.rateLimit.burst", "must not be negative, got %d", rl.Burst)
		}
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return invalid("tracing.samplingRate", "must be between 0 and 1")
	}
	if c.Vault == nil {
		return nil
	}
	return c.Vault.Validate()
}

// Validate checks the vault section.
func (v *VaultConfig) Validate() error {
	if v.BaseURL == "" {
		return invalid("vault.baseUrl", "is required")
	}
	if u, err := url.Parse(v.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("vault.baseUrl", "must be an absolute URL, got %q", v.BaseURL)
	}
	if v.PublicURL != "" {
		if u, err := url.Parse(v.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("vault.publicUrl", "must be an absolute URL, got %q", v.PublicURL)
		}
	}
	if v.KVVersion != 0 && v.KVVersion != 1 && v.KVVersion != 2 {
		return invalid("vault.kvVersion", "must be 1 or 2, got %d", v.KVVersion)
	}
	if v.ListConcurrency < 0 {
		return invalid("vault.listConcurrency", "must not be negative")
	}
	if err := v.validateAuth(); err != nil {
		return err
	}
	if err := v.validateTLS(); err != nil {
		return err
	}
	return v.Schedule.validate()
}

func (v *VaultConfig) validateAuth() error {
	if v.Auth == nil {
		if v.Token == "" {
			return invalid("vault.auth", "is required when vault.token is not set")
		}
		return nil
	}

	switch v.Auth.Type {
	case AuthTypeStatic:
		if v.Auth.Secret == "" && v.Token == "" {
			return invalid("vault.auth.secret", "is required for static authentication")
		}
	case AuthTypeKubernetes:
		if v.Auth.Role == "" {
			return invalid("vault.auth.role", "is required for kubernetes authentication")
		}
	case AuthTypeAppRole:
		if v.Auth.RoleID == "" {
			return invalid("vault.auth.roleId", "is required for approle authentication")
		}
		if v.Auth.SecretID == "" {
			return invalid("vault.auth.secretId", "is required for approle authentication")
		}
	default:
		return invalid("vault.auth.type", "unsupported auth type %q", v.Auth.Type)
	}
	return nil
}

func (v *VaultConfig) validateTLS() error {
	if v.TLS == nil {
		return nil
	}
	if v.TLS.ClientCert != "" && v.TLS.ClientKey == "" {
		return invalid("vault.tls.clientKey", "is required when clientCert is set")
	}
	if v.TLS.ClientKey != "" && v.TLS.ClientCert == "" {
		return invalid("vault.tls.clientCert", "is required when clientKey is set")
	}
	return nil
}

func (s ScheduleConfig) validate() error {
	if s.Kind != ScheduleCustom {
		return nil
	}
	if s.Cron != "" {
		if s.Frequency != 0 {
			return invalid("vault.schedule", "frequency and cron are mutually exclusive")
		}
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return invalid("vault.schedule.cron", "invalid cron expression %q: %v", s.Cron, err)
		}
	}
	return nil
}
