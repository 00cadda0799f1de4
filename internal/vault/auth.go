package vault

import (
	"context"
	"fmt"
	"os"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
)

func (c *Client) loginWithToken() error {
	if c.config.Token == "" {
		return NewConfigurationError("token", "token is required for static auth")
	}
	c.api.SetToken(c.config.Token)
	return nil
}

func (c *Client) loginWithKubernetes(ctx context.Context) error {
	k := c.config.Kubernetes

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("kubernetes auth failed: %w", err)
	}

	jwt, err := os.ReadFile(k.GetTokenPath())
	if err != nil {
		return fmt.Errorf("failed to read service account token: %w", err)
	}

	loginPath := fmt.Sprintf("auth/%s/login", k.GetMountPath())
	return c.login(ctx, loginPath, map[string]interface{}{
		"role": k.Role,
		"jwt":  strings.TrimSpace(string(jwt)),
	})
}

func (c *Client) loginWithAppRole(ctx context.Context) error {
	a := c.config.AppRole

	loginPath := fmt.Sprintf("auth/%s/login", a.GetMountPath())
	return c.login(ctx, loginPath, map[string]interface{}{
		"role_id":   a.RoleID,
		"secret_id": a.SecretID,
	})
}

func (c *Client) login(ctx context.Context, loginPath string, data map[string]interface{}) error {
	// A stale token must not be sent to the login endpoint.
	c.api.ClearToken()

	secret, err := c.api.Logical().WriteWithContext(ctx, loginPath, data)
	if err != nil {
		return wrapResponseError("login", loginPath, err)
	}
	return c.applyAuth(loginPath, secret)
}

func (c *Client) applyAuth(loginPath string, secret *vaultapi.Secret) error {
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return NewVaultError("login", loginPath, ErrAuthenticationFailed)
	}

	c.api.SetToken(secret.Auth.ClientToken)
	c.storeTTL(secret.Auth.LeaseDuration)
	return nil
}
