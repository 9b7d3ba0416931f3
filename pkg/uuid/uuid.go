// Copyright (c) 2026 NerdHQ. All rights reserved.

/*
Package uuid provides the identifier generators used across Gatekeeper.

It wraps the standard UUID library with two deliberate choices:

  - New (Version 7): time-ordered, used for row primary keys. Prevents index
    fragmentation in PostgreSQL (B-tree optimal).
  - NewRandom (Version 4): fully random, used for identifiers that double as
    secrets (activation token IDs travel inside emailed links, so they must
    not leak creation time).
*/
package uuid

import "github.com/google/uuid"

// # Generators

// New generates a new UUIDv7 string.
func New() string {

	// Create a new version 7 UUID (time-sortable)
	id, err := uuid.NewV7()

	// entropy failure is an unrecoverable system-level error
	if err != nil {
		panic("uuid: failed to generate UUIDv7: " + err.Error())
	}

	return id.String()
}

// NewRandom generates a new UUIDv4 string with no embedded timestamp.
func NewRandom() string {
	return uuid.New().String()
}

// IsValid reports whether value parses as any UUID version.
func IsValid(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
