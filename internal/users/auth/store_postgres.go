// Copyright (c) 2026 NerdHQ. All rights reserved.

// # PostgreSQL storage
//
// Repositories in this file are strictly separated from domain logic. They
// implement the Persistence Port interfaces using the [pgxpool.Pool]
// connection manager, and they are the serialization point for the
// race-critical activation-token claim.
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.

package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nerdhq/gatekeeper/internal/platform/apperr"
	"github.com/nerdhq/gatekeeper/internal/platform/dberr"
)

// # User Repository

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// errUserNotFound is returned for every user lookup miss, regardless of
// which identifier was used.
func errUserNotFound() *apperr.AppError {
	return apperr.NotFound(
		"The user was not found in the system.",
		"Check that the username is typed correctly.",
	)
}

/*
Create persists a new user record into the users table.

Description: Inserts the account with its initial feature set; the database
clock fills created_at and updated_at, which are scanned back onto the entity.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: apperr.ValidationError on a unique violation, or execution errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO users (
			id, username, email, password, features
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := repository.pool.QueryRow(context, query,
		user.ID,
		user.Username,
		user.Email,
		user.Password,
		featureStrings(user.Features),
	).Scan(
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.ValidationError("Validation failed", apperr.FieldError{
				Field:   FieldUsername,
				Message: "The username or email provided is already in use",
			})
		}
		return fmt.Errorf("postgres_user_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByEmail retrieves a user record by their unique email address.

Description: Case-insensitive lookup on the users table; the stored casing
of the email is preserved on the returned entity.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	const query = `
		SELECT id, username, email, password, features, created_at, updated_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
		LIMIT 1`

	return repository.scanOne(context, query, email)
}

/*
FindByUsername retrieves a user record by their unique username.

Description: Case-insensitive lookup by username for profile resolution and
authorization resource loading.

Parameters:
  - context: context.Context
  - username: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByUsername(context context.Context, username string) (*User, error) {
	const query = `
		SELECT id, username, email, password, features, created_at, updated_at
		FROM users
		WHERE LOWER(username) = LOWER($1)
		LIMIT 1`

	return repository.scanOne(context, query, username)
}

/*
FindByID retrieves a user record by their unique ID.

Description: Primary key resolution for user accounts.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *User: Hydrated account entity
  - error: Not found or execution errors
*/
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	const query = `
		SELECT id, username, email, password, features, created_at, updated_at
		FROM users
		WHERE id = $1
		LIMIT 1`

	return repository.scanOne(context, query, id)
}

/*
UpdateFields persists changes to a user's mutable profile fields.

Description: Synchronizes username, email, and password hash with the
database, refreshing updated_at from the database clock.

Parameters:
  - context: context.Context
  - user: *User

Returns:
  - error: apperr.ValidationError on a unique violation, or update failures
*/
func (repository *PostgresUserRepository) UpdateFields(context context.Context, user *User) error {
	const query = `
		UPDATE users
		SET username = $2, email = $3, password = $4, updated_at = timezone('utc', now())
		WHERE id = $1
		RETURNING updated_at`

	err := repository.pool.QueryRow(context, query,
		user.ID,
		user.Username,
		user.Email,
		user.Password,
	).Scan(&user.UpdatedAt)

	if err != nil {
		if dberr.IsNoRows(err) {
			return errUserNotFound()
		}
		if dberr.IsUniqueViolation(err) {
			return apperr.ValidationError("Validation failed", apperr.FieldError{
				Field:   FieldUsername,
				Message: "The username or email provided is already in use",
			})
		}
		return fmt.Errorf("postgres_user_repo_update_fields_failed: %w", err)
	}

	return nil
}

/*
UpdateFeatures replaces a user's feature set wholesale.

Description: Overwrites the features array (no merge, last writer wins) and
returns the post-update record with its refreshed updated_at.

Parameters:
  - context: context.Context
  - userID: string
  - features: []Feature

Returns:
  - *User: The post-update account entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresUserRepository) UpdateFeatures(context context.Context, userID string, features []Feature) (*User, error) {
	const query = `
		UPDATE users
		SET features = $2, updated_at = timezone('utc', now())
		WHERE id = $1
		RETURNING id, username, email, password, features, created_at, updated_at`

	user := &User{}
	var stored []string
	err := repository.pool.QueryRow(context, query, userID, featureStrings(features)).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Password,
		&stored,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, errUserNotFound()
		}
		return nil, fmt.Errorf("postgres_user_repo_update_features_failed: %w", err)
	}

	user.Features = toFeatures(stored)
	return user, nil
}

func (repository *PostgresUserRepository) scanOne(context context.Context, query string, argument any) (*User, error) {
	user := &User{}
	var stored []string
	err := repository.pool.QueryRow(context, query, argument).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Password,
		&stored,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, errUserNotFound()
		}
		return nil, fmt.Errorf("postgres_user_repo_find_failed: %w", err)
	}

	user.Features = toFeatures(stored)
	return user, nil
}

// featureStrings converts the typed feature slice to the text[] wire shape.
func featureStrings(features []Feature) []string {
	converted := make([]string, len(features))
	for index, feature := range features {
		converted[index] = string(feature)
	}
	return converted
}

func toFeatures(stored []string) []Feature {
	converted := make([]Feature, len(stored))
	for index, value := range stored {
		converted[index] = Feature(value)
	}
	return converted
}

// # Activation Token Repository

// PostgresActivationTokenRepository implements ActivationTokenRepository
// using pgx. Token rows are append-and-update only: nothing here deletes.
type PostgresActivationTokenRepository struct {
	pool *pgxpool.Pool
}

// NewActivationTokenRepository creates a new PostgreSQL implementation of
// the ActivationTokenRepository.
func NewActivationTokenRepository(pool *pgxpool.Pool) *PostgresActivationTokenRepository {
	return &PostgresActivationTokenRepository{pool: pool}
}

/*
Create persists a new activation token.

Parameters:
  - context: context.Context
  - token: *ActivationToken

Returns:
  - error: Storage failures
*/
func (repository *PostgresActivationTokenRepository) Create(context context.Context, token *ActivationToken) error {
	const query = `
		INSERT INTO user_activation_tokens (
			id, user_id, expires_at
		) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	err := repository.pool.QueryRow(context, query,
		token.ID,
		token.UserID,
		token.ExpiresAt,
	).Scan(
		&token.CreatedAt,
		&token.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_activation_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindValidByID retrieves an activation token that is still claimable.

Description: The validity window (unused, unexpired) is part of the query, so
missing, expired, and consumed tokens all collapse into the same NotFound.

Parameters:
  - context: context.Context
  - id: string (UUIDv4)

Returns:
  - *ActivationToken: Hydrated token entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresActivationTokenRepository) FindValidByID(context context.Context, id string) (*ActivationToken, error) {
	const query = `
		SELECT id, user_id, used_at, expires_at, created_at, updated_at
		FROM user_activation_tokens
		WHERE id = $1
		  AND used_at IS NULL
		  AND expires_at > timezone('utc', now())
		LIMIT 1`

	token := &ActivationToken{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&token.ID,
		&token.UserID,
		&token.UsedAt,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.UpdatedAt,
	)

	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, errActivationTokenNotFound()
		}
		return nil, fmt.Errorf("postgres_activation_repo_find_failed: %w", err)
	}

	return token, nil
}

/*
Claim atomically consumes an activation token.

Description: A single conditional UPDATE performs the test and the state
transition in one statement, so two concurrent claims of the same token can
never both see the affected row. The losing claim gets the same NotFound as
an expired or nonexistent token.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *ActivationToken: The token with used_at stamped
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresActivationTokenRepository) Claim(context context.Context, id string) (*ActivationToken, error) {
	const query = `
		UPDATE user_activation_tokens
		SET used_at = timezone('utc', now()),
		    updated_at = timezone('utc', now())
		WHERE id = $1
		  AND used_at IS NULL
		  AND expires_at > timezone('utc', now())
		RETURNING id, user_id, used_at, expires_at, created_at, updated_at`

	token := &ActivationToken{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&token.ID,
		&token.UserID,
		&token.UsedAt,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.UpdatedAt,
	)

	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, errActivationTokenNotFound()
		}
		return nil, fmt.Errorf("postgres_activation_repo_claim_failed: %w", err)
	}

	return token, nil
}

// # Session Repository

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

// errSessionNotFound covers both missing and expired sessions.
func errSessionNotFound() *apperr.AppError {
	return apperr.NotFound(
		"The session was not found in the system or has expired.",
		"Log in again.",
	)
}

/*
Create persists a new session record into the sessions table.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Storage failures
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO sessions (
			id, user_id, token, expires_at
		) VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := repository.pool.QueryRow(context, query,
		session.ID,
		session.UserID,
		session.Token,
		session.ExpiresAt,
	).Scan(
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindValidByToken retrieves an unexpired session by its bearer token.

Description: Expiry is enforced in the query; expired and missing sessions
are indistinguishable to the caller.

Parameters:
  - context: context.Context
  - token: string (96-char hex)

Returns:
  - *Session: Hydrated session entity
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindValidByToken(context context.Context, token string) (*Session, error) {
	const query = `
		SELECT id, user_id, token, expires_at, created_at, updated_at
		FROM sessions
		WHERE token = $1
		  AND expires_at > timezone('utc', now())
		LIMIT 1`

	session := &Session{}
	err := repository.pool.QueryRow(context, query, token).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, errSessionNotFound()
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

/*
Expire invalidates a session by rewriting its expiry into the past.

Description: The row is kept, not deleted; expiry works on already-expired
sessions too, so logout is idempotent and a session can never be resurrected.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Session: The post-expiry session row
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresSessionRepository) Expire(context context.Context, id string) (*Session, error) {
	const query = `
		UPDATE sessions
		SET expires_at = timezone('utc', now()) - interval '1 year',
		    updated_at = timezone('utc', now())
		WHERE id = $1
		RETURNING id, user_id, token, expires_at, created_at, updated_at`

	session := &Session{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		if dberr.IsNoRows(err) {
			return nil, errSessionNotFound()
		}
		return nil, fmt.Errorf("postgres_session_repo_expire_failed: %w", err)
	}

	return session, nil
}
