// Package logging constructs the service's structured logger from
// configuration. Output is slog with a JSON or text handler; components
// receive the logger explicitly and fall back to slog.Default when given
// none.
package logging
