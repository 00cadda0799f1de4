// Package health provides the liveness and readiness endpoints of the Vault
// backend.
//
// Liveness always answers {"status":"ok"} while the process serves HTTP.
// Readiness runs the registered checks concurrently and answers 503 when any
// of them fails:
//
//	h := health.NewHandler(logger, health.WithMetrics(metrics))
//	h.AddCheck(health.NewCachedHealthCheck(health.VaultCheck(current), 5*time.Second))
//	h.RegisterRoutes(engine)
package health
