package schema

import "github.com/google/uuid"

// NewID returns a time-ordered identifier for tasks and notes.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// v7 only fails when the random source does
		return uuid.NewString()
	}
	return id.String()
}
