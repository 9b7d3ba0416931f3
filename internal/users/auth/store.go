// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth

import (
	"context"
)

// # Persistence Port
//
// The services in this package own the rules; they do not own state. All
// durable state lives behind these interfaces, and the storage layer is also
// the serialization point for the one race-critical operation (the
// activation-token claim). Implementations must propagate the caller's
// context deadline into every storage call.

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	// FindByID returns the account with the given ID, or a NotFound error.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByUsername returns the account with the given username. The
	// lookup is case-insensitive; the stored casing is preserved.
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByEmail returns the account with the given email address,
	// case-insensitively.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Create persists a brand-new account. The repository fills CreatedAt
	// and UpdatedAt from the database clock.
	Create(ctx context.Context, user *User) error

	// UpdateFields persists the mutable profile fields (username, email,
	// password) and refreshes UpdatedAt on the passed struct.
	UpdateFields(ctx context.Context, user *User) error

	// UpdateFeatures replaces the account's feature set wholesale and
	// returns the post-update record, including the refreshed UpdatedAt.
	// Last-writer-wins: concurrent replacements are not merged.
	UpdateFeatures(ctx context.Context, userID string, features []Feature) (*User, error)
}

// ActivationTokenRepository defines the data access contract for single-use
// activation tokens. Rows are never deleted — consumed and expired tokens
// remain as an audit trail.
type ActivationTokenRepository interface {

	// Create persists a new token. The repository fills CreatedAt,
	// UpdatedAt, and ExpiresAt is provided by the caller.
	Create(ctx context.Context, token *ActivationToken) error

	// FindValidByID returns the token with the given ID only while it is
	// valid (unused and unexpired). Missing, expired, and already-used
	// tokens are indistinguishable: all return the same NotFound error.
	FindValidByID(ctx context.Context, id string) (*ActivationToken, error)

	// Claim atomically marks the token as used: a single conditional
	// update guarded by `used_at IS NULL AND expires_at > now()`. When no
	// row qualifies (already claimed, expired, or never existed) it
	// returns NotFound; two concurrent claims can never both succeed.
	Claim(ctx context.Context, id string) (*ActivationToken, error)
}

// SessionRepository defines the data access contract for login sessions.
type SessionRepository interface {

	// Create persists a new session for an authenticated login.
	Create(ctx context.Context, session *Session) error

	// FindValidByToken returns the session with the given bearer token
	// while `now < expires_at`. Expired and missing sessions both return
	// the same NotFound error.
	FindValidByToken(ctx context.Context, token string) (*Session, error)

	// Expire rewrites the session's expiry into the past and returns the
	// updated row. Expiring an already-expired session keeps it expired;
	// it can never be resurrected.
	Expire(ctx context.Context, id string) (*Session, error)
}

// SessionCache is the optional read-through cache in front of
// [SessionRepository.FindValidByToken]. Implementations must treat a miss as
// (nil, nil); correctness never depends on the cache.
type SessionCache interface {

	// Get returns the cached session for token, or (nil, nil) on a miss.
	Get(ctx context.Context, token string) (*Session, error)

	// Set stores the session keyed by its token, with a TTL clamped to the
	// session's remaining lifetime.
	Set(ctx context.Context, session *Session) error

	// Delete drops the cache entry for token. Called on explicit expiry.
	Delete(ctx context.Context, token string) error
}
