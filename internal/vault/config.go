package vault

import (
	"net/url"
	"strings"

	"github.com/vyrodovalexey/vaultbackend/internal/config"
	"github.com/vyrodovalexey/vaultbackend/internal/retry"
)

// AuthMethod selects how the client obtains its token.
type AuthMethod string

// Supported auth methods.
const (
	AuthMethodToken      AuthMethod = "static"
	AuthMethodKubernetes AuthMethod = "kubernetes"
	AuthMethodAppRole    AuthMethod = "approle"
)

// Client defaults.
const (
	DefaultSecretEngine    = "secrets"
	DefaultKVVersion       = 2
	DefaultListConcurrency = 5

	// DefaultServiceAccountTokenPath is the standard projected token location.
	//nolint:gosec // G101: a file path, not a credential
	DefaultServiceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

	DefaultKubernetesMountPath = "kubernetes"
	DefaultAppRoleMountPath    = "approle"
)

// Config configures a Client.
type Config struct {
	// Address is the Vault API address.
	Address string

	// PublicURL is the address used for UI links. Address is used when empty.
	PublicURL string

	Namespace  string
	AuthMethod AuthMethod

	// Token is used by static auth.
	Token string

	Kubernetes *KubernetesAuthConfig
	AppRole    *AppRoleAuthConfig
	TLS        *TLSConfig

	SecretEngine    string
	KVVersion       int
	ListConcurrency int

	// Retry bounds the startup login.
	Retry *retry.Config
}

// KubernetesAuthConfig configures Kubernetes auth.
type KubernetesAuthConfig struct {
	Role      string
	MountPath string
	TokenPath string
}

// AppRoleAuthConfig configures AppRole auth.
type AppRoleAuthConfig struct {
	RoleID    string
	SecretID  string
	MountPath string
}

// TLSConfig configures TLS towards Vault.
type TLSConfig struct {
	CACert     string
	CAPath     string
	ClientCert string
	ClientKey  string
	SkipVerify bool
}

// ConfigFromFile maps the vault section of the configuration file. The
// deprecated token is used as the static secret when no auth block is set.
func ConfigFromFile(v *config.VaultConfig) *Config {
	cfg := &Config{
		Address:         v.BaseURL,
		PublicURL:       v.PublicURL,
		Namespace:       v.Namespace,
		AuthMethod:      AuthMethodToken,
		Token:           v.Token,
		SecretEngine:    v.SecretEngine,
		KVVersion:       v.KVVersion,
		ListConcurrency: v.ListConcurrency,
	}

	if a := v.Auth; a != nil {
		cfg.AuthMethod = AuthMethod(a.Type)
		switch cfg.AuthMethod {
		case AuthMethodToken:
			if a.Secret != "" {
				cfg.Token = a.Secret
			}
		case AuthMethodKubernetes:
			cfg.Kubernetes = &KubernetesAuthConfig{
				Role:      a.Role,
				MountPath: a.AuthPath,
				TokenPath: a.ServiceAccountTokenPath,
			}
		case AuthMethodAppRole:
			cfg.AppRole = &AppRoleAuthConfig{
				RoleID:    a.RoleID,
				SecretID:  a.SecretID,
				MountPath: a.AuthPath,
			}
		}
	}

	if t := v.TLS; t != nil {
		cfg.TLS = &TLSConfig{
			CACert:     t.CACert,
			CAPath:     t.CAPath,
			ClientCert: t.ClientCert,
			ClientKey:  t.ClientKey,
			SkipVerify: t.SkipVerify,
		}
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Address == "" {
		return NewConfigurationError("address", "address is required")
	}
	if _, err := url.Parse(c.Address); err != nil {
		return NewConfigurationErrorWithCause("address", "invalid address", err)
	}
	if c.KVVersion != 0 && c.KVVersion != 1 && c.KVVersion != 2 {
		return NewConfigurationError("kvVersion", "must be 1 or 2")
	}

	switch c.AuthMethod {
	case AuthMethodToken:
		if c.Token == "" {
			return NewConfigurationError("token", "token is required for static auth")
		}
	case AuthMethodKubernetes:
		if c.Kubernetes == nil || c.Kubernetes.Role == "" {
			return NewConfigurationError("kubernetes.role", "role is required for kubernetes auth")
		}
	case AuthMethodAppRole:
		if c.AppRole == nil || c.AppRole.RoleID == "" || c.AppRole.SecretID == "" {
			return NewConfigurationError("approle", "roleId and secretId are required for approle auth")
		}
	default:
		return NewConfigurationError("authMethod", "unsupported auth method: "+string(c.AuthMethod))
	}

	return nil
}

// GetSecretEngine returns the default engine mount.
func (c *Config) GetSecretEngine() string {
	if c.SecretEngine == "" {
		return DefaultSecretEngine
	}
	return strings.Trim(c.SecretEngine, "/")
}

// GetKVVersion returns the KV engine version.
func (c *Config) GetKVVersion() int {
	if c.KVVersion == 0 {
		return DefaultKVVersion
	}
	return c.KVVersion
}

// GetListConcurrency returns the cap on in-flight LIST calls.
func (c *Config) GetListConcurrency() int {
	if c.ListConcurrency <= 0 {
		return DefaultListConcurrency
	}
	return c.ListConcurrency
}

// UIBaseURL returns the address UI links are built on.
func (c *Config) UIBaseURL() string {
	if c.PublicURL != "" {
		return strings.TrimSuffix(c.PublicURL, "/")
	}
	return strings.TrimSuffix(c.Address, "/")
}

// GetMountPath returns the kubernetes mount path.
func (k *KubernetesAuthConfig) GetMountPath() string {
	if k.MountPath == "" {
		return DefaultKubernetesMountPath
	}
	return strings.Trim(k.MountPath, "/")
}

// GetTokenPath returns the service account token file.
func (k *KubernetesAuthConfig) GetTokenPath() string {
	if k.TokenPath == "" {
		return DefaultServiceAccountTokenPath
	}
	return k.TokenPath
}

// GetMountPath returns the approle mount path.
func (a *AppRoleAuthConfig) GetMountPath() string {
	if a.MountPath == "" {
		return DefaultAppRoleMountPath
	}
	return strings.Trim(a.MountPath, "/")
}
