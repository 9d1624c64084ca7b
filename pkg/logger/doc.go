// Package logger builds the application's slog logger: colourised text in
// development, JSON in production, optionally written to a rotated file.
package logger
