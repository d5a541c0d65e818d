// Package id provides unique identifier generation.
package id

import "github.com/google/uuid"

// New generates a UUID v4 (random) string, used for session and event
// identifiers.
func New() string {
	return uuid.NewString()
}
