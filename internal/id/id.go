// Package id declares the identifier source used by import coordination.
package id

import "github.com/google/uuid"

// Generator abstracts ID creation so tests can pin operation and job IDs.
type Generator interface {
	// NewID returns a new identifier in string form.
	NewID() (string, error)
	// NewRawID returns a new identifier as a UUID value.
	NewRawID() (uuid.UUID, error)
}
