// Package uuid wraps github.com/google/uuid with UUIDv7 (time-ordered) as the
// default version. Request IDs sent to the backend are UUIDv7 so that server
// logs sort by issue time.
package uuid

import (
	"github.com/google/uuid"
)

// UUID represents a UUID, aliased from github.com/google/uuid.UUID
type UUID = uuid.UUID

// New returns a new UUIDv7. Falls back to a random v4 UUID if the clock
// sequence cannot be read.
func New() UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// NewRequestId returns a fresh request ID in canonical string form.
func NewRequestId() string {
	return New().String()
}
