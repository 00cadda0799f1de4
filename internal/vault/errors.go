package vault

import (
	"errors"
	"fmt"
	"net/http"

	vaultapi "github.com/hashicorp/vault/api"
)

// Common errors for Vault operations.
var (
	// ErrSecretNotFound indicates the path does not exist in the engine.
	ErrSecretNotFound = errors.New("vault: secret not found")

	// ErrPermissionDenied indicates the token may not list the path.
	ErrPermissionDenied = errors.New("vault: permission denied")

	// ErrNotAuthenticated indicates no token is set on the client.
	ErrNotAuthenticated = errors.New("vault: client not authenticated")

	// ErrAuthenticationFailed indicates a login returned no token.
	ErrAuthenticationFailed = errors.New("vault: authentication failed")

	// ErrTokenExpired indicates the token can no longer be renewed.
	ErrTokenExpired = errors.New("vault: token expired")

	// ErrInvalidPath indicates an empty or malformed secret path.
	ErrInvalidPath = errors.New("vault: invalid secret path")

	// ErrConnectionFailed indicates Vault could not be reached.
	ErrConnectionFailed = errors.New("vault: connection failed")

	// ErrClientClosed indicates the client was closed.
	ErrClientClosed = errors.New("vault: client closed")
)

// VaultError represents a failed Vault call.
//
//nolint:revive // the stutter reads better at call sites than vault.Error
type VaultError struct {
	Op   string // Operation that failed
	Path string // Vault path if applicable
	Err  error  // Underlying error
	Code int    // HTTP status code returned by Vault, if any
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("vault %s on path %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("vault %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *VaultError) Unwrap() error {
	return e.Err
}

// NewVaultError creates a new VaultError.
func NewVaultError(op, path string, err error) *VaultError {
	return &VaultError{Op: op, Path: path, Err: err}
}

// NewVaultErrorWithCode creates a new VaultError with an HTTP status code.
func NewVaultErrorWithCode(op, path string, err error, code int) *VaultError {
	return &VaultError{Op: op, Path: path, Err: err, Code: code}
}

// ConfigurationError reports an invalid client configuration field.
type ConfigurationError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := "vault configuration error"
	if e.Field != "" {
		msg += " at " + e.Field
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// NewConfigurationErrorWithCause creates a new ConfigurationError with a cause.
func NewConfigurationErrorWithCause(field, message string, cause error) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message, Cause: cause}
}

// wrapResponseError converts an error from the Vault API client into a
// VaultError. 403 and 404 responses wrap the matching sentinel.
func wrapResponseError(op, path string, err error) error {
	var respErr *vaultapi.ResponseError
	if !errors.As(err, &respErr) {
		return NewVaultError(op, path, fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}

	switch respErr.StatusCode {
	case http.StatusNotFound:
		return NewVaultErrorWithCode(op, path, fmt.Errorf("%w: %w", ErrSecretNotFound, err), respErr.StatusCode)
	case http.StatusForbidden:
		return NewVaultErrorWithCode(op, path, fmt.Errorf("%w: %w", ErrPermissionDenied, err), respErr.StatusCode)
	default:
		return NewVaultErrorWithCode(op, path, err, respErr.StatusCode)
	}
}

// IsRetryable returns true if the error is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		if vaultErr.Code >= http.StatusInternalServerError || vaultErr.Code == http.StatusTooManyRequests {
			return true
		}
	}

	return errors.Is(err, ErrConnectionFailed)
}

// IsAuthError returns true if the error is an authentication error.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrPermissionDenied) {
		return true
	}

	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		return vaultErr.Code == http.StatusUnauthorized || vaultErr.Code == http.StatusForbidden
	}

	return false
}
