// Package logger builds configured slog.Logger instances: JSON for
// production, text for development, level and format driven by
// environment variables. Webhook processing logs carry the provider
// event ID on every record, so JSON output is the default to keep those
// fields queryable.
package logger
