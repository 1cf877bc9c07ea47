package utils

import "github.com/google/uuid"

// NewRequestID returns a time-ordered id so access records sort by arrival.
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
