// Package logger provides structured logging functionality for the application.
//
// It builds log/slog loggers with configurable levels, emitting JSON in
// production and colored text (via tint) during development, and carries
// request- and task-scoped loggers through context.Context.
package logger
