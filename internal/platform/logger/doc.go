// Package logger configures log/slog for the service and carries
// request-scoped loggers through context.
package logger
