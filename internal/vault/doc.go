// Package vault is the HashiCorp Vault client used by the backend.
//
// The client lists KV secrets recursively, renews its own token and logs in
// with a static token, a Kubernetes service account or an AppRole. Callers
// depend on the narrow capability interfaces rather than on *Client:
//
//	var lister vault.SecretsLister = client
//	if renewer, ok := lister.(vault.TokenRenewer); ok {
//		err = renewer.RenewToken(ctx)
//	}
package vault
