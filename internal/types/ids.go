package types

import (
	"github.com/google/uuid"
)

// DispatchID represents a UUIDv7 identifier of one journaled dispatch.
// UUIDv7 time-ordering keeps journal inserts clustered in the primary key index.
type DispatchID string

// KeyID represents a UUIDv7 identifier of an API key record.
type KeyID string

// NewDispatchID generates a UUIDv7 dispatch identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewDispatchID() DispatchID {
	return DispatchID(uuid.Must(uuid.NewV7()).String())
}

// NewKeyID generates a UUIDv7 API key identifier.
func NewKeyID() KeyID {
	return KeyID(uuid.Must(uuid.NewV7()).String())
}

// ParseDispatchID validates and converts a string to DispatchID.
func ParseDispatchID(s string) (DispatchID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return DispatchID(s), nil
}

// ParseKeyID validates and converts a string to KeyID.
func ParseKeyID(s string) (KeyID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return KeyID(s), nil
}
