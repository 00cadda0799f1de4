// Package server provides the HTTP server that hosts the Vault backend.
//
// The server owns the process-level routes (/health, the liveness and
// readiness probes and the metrics endpoint) and mounts the backend handler
// under the configured base path. The backend can be swapped at runtime when
// the configuration is reloaded.
package server
