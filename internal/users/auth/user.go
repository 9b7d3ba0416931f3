// Copyright (c) 2026 NerdHQ. All rights reserved.

/*
Package auth implements the user identity, capability authorization, and
bearer-token lifecycle layer.

It defines the core domain entities (User, ActivationToken, Session), the
authorization engine ([Can], [FilterOutput]), and the services that manage
registration, account activation, and login sessions.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no
transport dependencies; persistence is abstracted behind the repository
interfaces in store.go (the Persistence Port), and outbound email behind
the platform mailer (the Notification Port).
*/
package auth

import "time"

// # Domain Entities

// User represents a registered account.
//
// Features is the user's capability set. Order is irrelevant for
// authorization but preserved for display. The zero value (nil) marks a User
// that was constructed without its feature set loaded; the authorization
// engine refuses such users with an internal error rather than silently
// denying.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"` // bcrypt hash, never serialized.
	Features  []Feature `json:"features"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasFeature reports whether feature is in the user's feature set.
func (u *User) HasFeature(feature Feature) bool {
	for _, granted := range u.Features {
		if granted == feature {
			return true
		}
	}
	return false
}

// AnonymousUser returns the sentinel identity for unauthenticated requests:
// a concrete user with an empty (non-nil) feature set. Handlers always
// operate on a real *User; absence of credentials is never represented by a
// nil viewer.
func AnonymousUser() *User {
	return &User{Features: []Feature{}}
}

// IsAnonymous reports whether u is the anonymous sentinel.
func (u *User) IsAnonymous() bool {
	return u.ID == ""
}

// # Field Identifiers

// Field names shared by validation and the HTTP layer.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldTokenID  = "token_id"
)
