// Package vaultbackend serves the Vault secrets listing API.
//
// Builder.Build returns a gin engine with two routes:
//
//	GET /health                          {"status":"ok"}
//	GET /v1/secrets/:path?engine=<name>  {"items":[...]}
//
// When the configuration has no vault section the engine has no routes at
// all. Builder.EnableTokenRenew registers the "refresh-vault-token" task that
// renews the client token on vault.schedule.
package vaultbackend
