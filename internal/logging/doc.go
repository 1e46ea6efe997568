// Package logging builds the slog loggers used across pagebind and
// standardizes the attribute vocabulary components log with.
package logging
