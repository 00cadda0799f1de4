package config

import "time"

// Config is the root of the backend configuration file.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`

	// Vault is nil when the file has no vault section. That disables the
	// Vault routes without failing startup.
	Vault *VaultConfig `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	Port            int      `yaml:"port" json:"port"`
	BasePath        string   `yaml:"basePath" json:"basePath"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`

	// RateLimit throttles requests to the Vault routes. Probes and metrics
	// are never limited.
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`
}

// RateLimitConfig configures the token bucket in front of the Vault routes.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerSecond int  `yaml:"requestsPerSecond" json:"requestsPerSecond"`
	Burst             int  `yaml:"burst" json:"burst"`
	PerClient         bool `yaml:"perClient,omitempty" json:"perClient,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
}

// VaultConfig is the vault section of the configuration file.
type VaultConfig struct {
	BaseURL   string `yaml:"baseUrl" json:"baseUrl"`
	PublicURL string `yaml:"publicUrl,omitempty" json:"publicUrl,omitempty"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// Token is the legacy static token.
	//
	// Deprecated: use Auth with type "static".
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	Auth *VaultAuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`
	TLS  *VaultTLSConfig  `yaml:"tls,omitempty" json:"tls,omitempty"`

	SecretEngine    string `yaml:"secretEngine,omitempty" json:"secretEngine,omitempty"`
	KVVersion       int    `yaml:"kvVersion,omitempty" json:"kvVersion,omitempty"`
	ListConcurrency int    `yaml:"listConcurrency,omitempty" json:"listConcurrency,omitempty"`

	Schedule ScheduleConfig `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

// VaultAuthConfig selects and configures the Vault auth method.
type VaultAuthConfig struct {
	Type string `yaml:"type" json:"type"`

	// Secret is the token for static auth.
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty"`

	Role                    string `yaml:"role,omitempty" json:"role,omitempty"`
	AuthPath                string `yaml:"authPath,omitempty" json:"authPath,omitempty"`
	ServiceAccountTokenPath string `yaml:"serviceAccountTokenPath,omitempty" json:"serviceAccountTokenPath,omitempty"`

	RoleID   string `yaml:"roleId,omitempty" json:"roleId,omitempty"`
	SecretID string `yaml:"secretId,omitempty" json:"secretId,omitempty"`
}

// VaultTLSConfig configures TLS for the Vault connection.
type VaultTLSConfig struct {
	CACert     string `yaml:"caCert,omitempty" json:"caCert,omitempty"`
	CAPath     string `yaml:"caPath,omitempty" json:"caPath,omitempty"`
	ClientCert string `yaml:"clientCert,omitempty" json:"clientCert,omitempty"`
	ClientKey  string `yaml:"clientKey,omitempty" json:"clientKey,omitempty"`
	SkipVerify bool   `yaml:"skipVerify,omitempty" json:"skipVerify,omitempty"`
}

// HasVault reports whether the vault section is present.
func (c *Config) HasVault() bool {
	return c != nil && c.Vault != nil
}

// AuthType returns vault.auth.type, or "" when no auth block is configured.
func (v *VaultConfig) AuthType() string {
	if v == nil || v.Auth == nil {
		return ""
	}
	return v.Auth.Type
}

// Default values applied by ApplyDefaults.
const (
	DefaultPort            = 7007
	DefaultBasePath        = "/api/vault"
	DefaultMetricsPath     = "/metrics"
	DefaultReadTimeout     = Duration(30 * time.Second)
	DefaultWriteTimeout    = Duration(30 * time.Second)
	DefaultIdleTimeout     = Duration(120 * time.Second)
	DefaultShutdownTimeout = Duration(30 * time.Second)
)

// ApplyDefaults fills zero-valued server, logging and metrics settings.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
