// Package observability provides the logging and tracing plumbing shared by
// the Vault backend.
//
// Logging goes through the Logger interface, backed by zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("secrets listed", observability.String("path", "team/app"))
//
// Tracing installs an OpenTelemetry provider exporting over OTLP/gRPC when
// enabled, and leaves the global no-op provider otherwise.
package observability
