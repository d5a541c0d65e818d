// Package logging provides structured logging helpers built on log/slog.
//
// Components across the codebase accept a *slog.Logger and default to
// Nop() when none is supplied, so logging is always optional and never
// nil-checked at call sites.
package logging
