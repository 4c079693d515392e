// Package logger provides structured logging for streamkit built on zerolog.
//
// A Logger wraps zerolog.Logger with a service name and convenience methods
// that accept field maps. Packages obtain component-scoped loggers via
// WithComponent so every line carries its origin:
//
//	log := logger.NewDefault("realtime").WithComponent("sse_hub")
//	log.Info("connection registered", logger.Fields("connection_id", id))
//
// A process-wide global logger backs the package-level Debug/Info/Warn/Error
// functions for code paths that have no injected logger.
package logger
