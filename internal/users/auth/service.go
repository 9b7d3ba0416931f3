// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth

import (
	"context"

	"github.com/nerdhq/gatekeeper/internal/platform/apperr"
	"github.com/nerdhq/gatekeeper/internal/platform/sec"
	"github.com/nerdhq/gatekeeper/pkg/uuid"
)

// # User Service

// Service implements the user account use cases: registration, lookup,
// profile updates, and the feature mutator used by activation and
// privileged grants.
type Service struct {
	users UserRepository
}

// NewService constructs a user [Service].
func NewService(users UserRepository) *Service {
	return &Service{users: users}
}

// # Registration

// CreateInput holds the data required to enroll a new account.
type CreateInput struct {
	Username string
	Email    string
	Password string
}

// Create validates uniqueness, hashes the password, and persists a new
// account holding only the read:activation_token capability.
//
// Uniqueness failures are ValidationErrors naming the offending field
// category without echoing the submitted value.
func (service *Service) Create(ctx context.Context, input CreateInput) (*User, error) {
	if err := service.validateUniqueEmail(ctx, input.Email); err != nil {
		return nil, err
	}
	if err := service.validateUniqueUsername(ctx, input.Username); err != nil {
		return nil, err
	}

	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := &User{
		ID:       uuid.New(),
		Username: input.Username,
		Email:    input.Email,
		Password: hashedPassword,
		Features: append([]Feature{}, registrationFeatures...),
	}

	if err := service.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// # Lookup

// FindOneByID returns the account with the given ID.
func (service *Service) FindOneByID(ctx context.Context, id string) (*User, error) {
	return service.users.FindByID(ctx, id)
}

// FindOneByUsername returns the account with the given username,
// case-insensitively.
func (service *Service) FindOneByUsername(ctx context.Context, username string) (*User, error) {
	return service.users.FindByUsername(ctx, username)
}

// # Authentication

// Authenticate resolves email+password credentials to an account. Both
// unknown email and wrong password collapse into the same Unauthorized
// outcome to prevent account enumeration.
func (service *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	mismatch := apperr.Unauthorized(
		"The email or password provided does not match.",
		"Check your credentials and try again.",
	)

	user, err := service.users.FindByEmail(ctx, email)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, mismatch
		}
		return nil, err
	}

	if !sec.CheckPasswordHash(password, user.Password) {
		return nil, mismatch
	}

	return user, nil
}

// # Profile Updates

// UpdateInput holds the optional fields of a partial profile update. Nil
// pointers leave the current value untouched.
type UpdateInput struct {
	Username *string
	Email    *string
	Password *string
}

// Update applies a partial update to the account identified by username.
// Changed usernames and emails are re-checked for uniqueness; a changed
// password is re-hashed. Returns the refreshed record.
func (service *Service) Update(ctx context.Context, username string, input UpdateInput) (*User, error) {
	user, err := service.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if input.Email != nil && *input.Email != user.Email {
		if err := service.validateUniqueEmail(ctx, *input.Email); err != nil {
			return nil, err
		}
		user.Email = *input.Email
	}

	if input.Username != nil && *input.Username != user.Username {
		if err := service.validateUniqueUsername(ctx, *input.Username); err != nil {
			return nil, err
		}
		user.Username = *input.Username
	}

	if input.Password != nil {
		hashedPassword, err := sec.HashPassword(*input.Password)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		user.Password = hashedPassword
	}

	if err := service.users.UpdateFields(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// # User Feature Mutator

// SetFeatures replaces the user's feature set wholesale (no merge) and
// returns the post-update record with its refreshed UpdatedAt.
//
// Every feature is validated against the registry first: an unknown feature
// here is a programming error and surfaces as an internal error before any
// write is attempted.
func (service *Service) SetFeatures(ctx context.Context, userID string, features []Feature) (*User, error) {
	for _, feature := range features {
		if !IsKnownFeature(feature) {
			return nil, apperr.Internalf("user: cannot grant unknown feature %q", feature)
		}
	}

	return service.users.UpdateFeatures(ctx, userID, features)
}

// # Uniqueness checks
//
// These pre-checks produce friendly ValidationErrors; the database unique
// indexes remain the backstop for the check-then-insert race.

func (service *Service) validateUniqueEmail(ctx context.Context, email string) error {
	_, err := service.users.FindByEmail(ctx, email)
	if err == nil {
		return apperr.ValidationError("Validation failed", apperr.FieldError{
			Field:   FieldEmail,
			Message: "The email provided is already in use",
		})
	}
	if apperr.IsNotFound(err) {
		return nil
	}
	return err
}

func (service *Service) validateUniqueUsername(ctx context.Context, username string) error {
	_, err := service.users.FindByUsername(ctx, username)
	if err == nil {
		return apperr.ValidationError("Validation failed", apperr.FieldError{
			Field:   FieldUsername,
			Message: "The username provided is already in use",
		})
	}
	if apperr.IsNotFound(err) {
		return nil
	}
	return err
}
