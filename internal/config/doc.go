// Package config loads the backend configuration file.
//
// The file is YAML. ${VAR} and ${VAR:-default} references are expanded from
// the environment before decoding:
//
//	server:
//	  port: 7007
//	vault:
//	  baseUrl: ${VAULT_ADDR:-http://127.0.0.1:8200}
//	  auth:
//	    type: static
//	    secret: ${VAULT_TOKEN}
//	  secretEngine: secrets
//	  schedule: true
//
// A file without a vault section is valid; the Vault routes are then left
// unregistered. Watcher reloads the file when it changes on disk.
package config
