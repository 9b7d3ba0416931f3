// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nerdhq/gatekeeper/internal/platform/apperr"
	"github.com/nerdhq/gatekeeper/internal/users/auth"
)

/*
TestService_Create covers registration: bcrypt hashing, the initial
capability grant, and uniqueness enforcement.
*/
func TestService_Create(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	user, err := env.users.Create(ctx, auth.CreateInput{
		Username: "filipe",
		Email:    "filipe@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	t.Run("password_is_hashed", func(t *testing.T) {
		assert.NotEqual(t, "correct horse battery", user.Password)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("correct horse battery")))
	})

	t.Run("starts_with_activation_capability_only", func(t *testing.T) {
		assert.Equal(t, []auth.Feature{auth.FeatureReadActivationToken}, user.Features)
	})

	t.Run("duplicate_email_rejected_case_insensitively", func(t *testing.T) {
		_, err := env.users.Create(ctx, auth.CreateInput{
			Username: "someone_else",
			Email:    "FILIPE@example.com",
			Password: "irrelevant-pass",
		})
		requireValidation(t, err, "email")
	})

	t.Run("duplicate_username_rejected_case_insensitively", func(t *testing.T) {
		_, err := env.users.Create(ctx, auth.CreateInput{
			Username: "FiLiPe",
			Email:    "fresh@example.com",
			Password: "irrelevant-pass",
		})
		requireValidation(t, err, "username")
	})
}

func requireValidation(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, "VALIDATION_ERROR", appError.Code)
	require.NotEmpty(t, appError.Details)
	assert.Equal(t, field, appError.Details[0].Field)
}

/*
TestService_FindOneByUsername checks case-insensitive resolution and the
NotFound contract.
*/
func TestService_FindOneByUsername(t *testing.T) {
	env := newTestEnv()
	created := env.register(t, "Alice", "alice@example.com", "alice-password")

	found, err := env.users.FindOneByUsername(context.Background(), "aLiCe")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	// Stored casing is preserved, not the query casing.
	assert.Equal(t, "Alice", found.Username)

	_, err = env.users.FindOneByUsername(context.Background(), "nobody")
	assert.True(t, apperr.IsNotFound(err))
}

/*
TestService_Authenticate verifies that wrong email and wrong password are
indistinguishable Unauthorized failures.
*/
func TestService_Authenticate(t *testing.T) {
	env := newTestEnv()
	env.register(t, "bob", "bob@example.com", "bob-password")
	ctx := context.Background()

	t.Run("valid_credentials", func(t *testing.T) {
		user, err := env.users.Authenticate(ctx, "bob@example.com", "bob-password")
		require.NoError(t, err)
		assert.Equal(t, "bob", user.Username)
	})

	t.Run("wrong_password_and_unknown_email_collapse", func(t *testing.T) {
		_, badPassword := env.users.Authenticate(ctx, "bob@example.com", "wrong-password")
		_, badEmail := env.users.Authenticate(ctx, "nobody@example.com", "bob-password")

		for _, err := range []error{badPassword, badEmail} {
			require.Error(t, err)
			appError := apperr.As(err)
			require.NotNil(t, appError)
			assert.Equal(t, "UNAUTHORIZED", appError.Code)
		}
		assert.Equal(t, badPassword.Error(), badEmail.Error())
	})
}

/*
TestService_Update covers partial updates: untouched fields survive, changed
ones are validated for uniqueness, and passwords are re-hashed.
*/
func TestService_Update(t *testing.T) {
	env := newTestEnv()
	env.register(t, "carol", "carol@example.com", "carol-password")
	env.register(t, "dave", "dave@example.com", "dave-password")
	ctx := context.Background()

	t.Run("partial_update_keeps_other_fields", func(t *testing.T) {
		newEmail := "carol+new@example.com"
		updated, err := env.users.Update(ctx, "carol", auth.UpdateInput{Email: &newEmail})
		require.NoError(t, err)
		assert.Equal(t, "carol", updated.Username)
		assert.Equal(t, newEmail, updated.Email)
	})

	t.Run("password_change_rehashes", func(t *testing.T) {
		newPassword := "carol-password-2"
		updated, err := env.users.Update(ctx, "carol", auth.UpdateInput{Password: &newPassword})
		require.NoError(t, err)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.Password), []byte(newPassword)))
	})

	t.Run("username_collision_rejected", func(t *testing.T) {
		taken := "dave"
		_, err := env.users.Update(ctx, "carol", auth.UpdateInput{Username: &taken})
		requireValidation(t, err, "username")
	})

	t.Run("same_value_is_not_a_collision", func(t *testing.T) {
		same := "carol"
		_, err := env.users.Update(ctx, "carol", auth.UpdateInput{Username: &same})
		assert.NoError(t, err)
	})

	t.Run("unknown_user", func(t *testing.T) {
		name := "renamed"
		_, err := env.users.Update(ctx, "nobody", auth.UpdateInput{Username: &name})
		assert.True(t, apperr.IsNotFound(err))
	})
}

/*
TestService_SetFeatures verifies the wholesale replacement semantics and the
registry guard.
*/
func TestService_SetFeatures(t *testing.T) {
	env := newTestEnv()
	user := env.register(t, "erin", "erin@example.com", "erin-password")
	ctx := context.Background()

	t.Run("replaces_not_merges", func(t *testing.T) {
		updated, err := env.users.SetFeatures(ctx, user.ID, []auth.Feature{auth.FeatureReadStatusAll})
		require.NoError(t, err)
		assert.Equal(t, []auth.Feature{auth.FeatureReadStatusAll}, updated.Features)
		assert.False(t, updated.HasFeature(auth.FeatureReadActivationToken))
	})

	t.Run("unknown_feature_is_internal_error", func(t *testing.T) {
		_, err := env.users.SetFeatures(ctx, user.ID, []auth.Feature{"read:teapot"})
		requireInternal(t, err)
	})

	t.Run("empty_set_is_valid", func(t *testing.T) {
		updated, err := env.users.SetFeatures(ctx, user.ID, []auth.Feature{})
		require.NoError(t, err)
		assert.Empty(t, updated.Features)
	})
}
