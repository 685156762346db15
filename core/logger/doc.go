// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance for production (json) and local
// (colored console) use, and integrates with the Fiber web framework.
//
// # Context Awareness
//
// The WithRayID helper extracts the RayID from a Fiber context and attaches it to the
// log entry, so every log line of a request (ledger adjustments, channel pushes,
// mismatch resolutions) can be correlated.
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info"})
//	log.Info("Server started")
//
//	// In a request handler:
//	l := logger.WithRayID(log, c)
//	l.Error("Adjustment refused", zap.Error(err))
package logger
