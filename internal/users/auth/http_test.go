// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdhq/gatekeeper/internal/platform/constants"
	"github.com/nerdhq/gatekeeper/internal/users/auth"
)

// newTestRouter assembles the domain routes behind the viewer middleware,
// the same shape the api package mounts in production.
func newTestRouter(env *testEnv) *chi.Mux {
	handler := auth.NewHandler(env.users, env.sessions, env.activations, false)

	router := chi.NewRouter()
	router.Use(auth.ViewerMiddleware(env.sessions, env.users))
	router.Mount("/api/v1/users", handler.UserRoutes())
	router.Mount("/api/v1/sessions", handler.SessionRoutes())
	router.Mount("/api/v1/activations", handler.ActivationRoutes())
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	for _, fn := range mutate {
		fn(request)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decodeData(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	return envelope.Data
}

/*
TestRegistrationFlow drives the full lifecycle through the HTTP surface:
register, fail to log in, activate, log in, self-update, log out.
*/
func TestRegistrationFlow(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)

	// ── Register ──────────────────────────────────────────────────────────

	response := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]string{
		"username": "kelvin",
		"email":    "kelvin@example.com",
		"password": "kelvin-password",
	})
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())

	created := decodeData(t, response)
	assert.Equal(t, "kelvin", created["username"])
	assert.Equal(t, "kelvin@example.com", created["email"])
	assert.NotContains(t, created, "password")
	assert.ElementsMatch(t, []any{"read:activation_token"}, created["features"])

	messages := env.mail.sentMessages()
	require.Len(t, messages, 1, "registration must send the activation email")

	// ── Login before activation is forbidden ──────────────────────────────

	response = doJSON(t, router, http.MethodPost, "/api/v1/sessions", map[string]string{
		"email":    "kelvin@example.com",
		"password": "kelvin-password",
	})
	require.Equal(t, http.StatusForbidden, response.Code)

	var forbidden struct {
		Code            string `json:"code"`
		RequiredFeature string `json:"required_feature"`
	}
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &forbidden))
	assert.Equal(t, "FORBIDDEN", forbidden.Code)
	assert.Equal(t, "create:session", forbidden.RequiredFeature)

	// ── Activate ──────────────────────────────────────────────────────────

	token, err := env.activations.FindOneValidByID(
		context.Background(), activationTokenIDFromEmail(t, messages[0].Body),
	)
	require.NoError(t, err)

	response = doJSON(t, router, http.MethodPatch, "/api/v1/activations/"+token.ID, nil)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())

	claimed := decodeData(t, response)
	assert.NotNil(t, claimed["used_at"])

	// Claiming the same link again looks like a token that never existed.
	response = doJSON(t, router, http.MethodPatch, "/api/v1/activations/"+token.ID, nil)
	assert.Equal(t, http.StatusNotFound, response.Code)

	// ── Login ─────────────────────────────────────────────────────────────

	response = doJSON(t, router, http.MethodPost, "/api/v1/sessions", map[string]string{
		"email":    "kelvin@example.com",
		"password": "kelvin-password",
	})
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())

	cookie := sessionCookie(t, response)
	assert.True(t, cookie.HttpOnly)

	session := decodeData(t, response)
	assert.Equal(t, cookie.Value, session["token"])

	// ── Authenticated self view ───────────────────────────────────────────

	response = doJSON(t, router, http.MethodGet, "/api/v1/users/kelvin", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, response.Code)
	self := decodeData(t, response)
	assert.Equal(t, "kelvin@example.com", self["email"])
	assert.ElementsMatch(t, []any{"create:session", "read:session"}, self["features"])

	// Anonymous readers get the public projection, without the email.
	response = doJSON(t, router, http.MethodGet, "/api/v1/users/kelvin", nil)
	require.Equal(t, http.StatusOK, response.Code)
	assert.NotContains(t, decodeData(t, response), "email")

	// ── Self update ───────────────────────────────────────────────────────

	response = doJSON(t, router, http.MethodPatch, "/api/v1/users/kelvin", map[string]string{
		"username": "kelvin_v2",
	}, withCookie(cookie))
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	assert.Equal(t, "kelvin_v2", decodeData(t, response)["username"])

	// ── Logout ────────────────────────────────────────────────────────────

	response = doJSON(t, router, http.MethodDelete, "/api/v1/sessions", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())

	cleared := sessionCookie(t, response)
	assert.Negative(t, cleared.MaxAge)

	// The expired session no longer authenticates anyone.
	response = doJSON(t, router, http.MethodDelete, "/api/v1/sessions", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, response.Code)
}

/*
TestUpdateOtherUser checks the ownership override over HTTP: a plain
activated account cannot patch someone else, an elevated one can.
*/
func TestUpdateOtherUser(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)

	target := env.register(t, "victim", "victim@example.com", "victim-password")
	_ = target

	actor := env.register(t, "actor", "actor@example.com", "actor-password")
	env.activate(t, actor)

	login := doJSON(t, router, http.MethodPost, "/api/v1/sessions", map[string]string{
		"email":    "actor@example.com",
		"password": "actor-password",
	})
	require.Equal(t, http.StatusCreated, login.Code)
	cookie := sessionCookie(t, login)

	t.Run("without_elevation", func(t *testing.T) {
		response := doJSON(t, router, http.MethodPatch, "/api/v1/users/victim", map[string]string{
			"username": "pwned",
		}, withCookie(cookie))
		require.Equal(t, http.StatusForbidden, response.Code)

		var body struct {
			RequiredFeature string `json:"required_feature"`
		}
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &body))
		assert.Equal(t, "update:user", body.RequiredFeature)
	})

	t.Run("with_elevation", func(t *testing.T) {
		_, err := env.users.SetFeatures(
			context.Background(),
			actor.ID,
			[]auth.Feature{auth.FeatureCreateSession, auth.FeatureReadSession, auth.FeatureUpdateUserOthers},
		)
		require.NoError(t, err)

		response := doJSON(t, router, http.MethodPatch, "/api/v1/users/victim", map[string]string{
			"username": "renamed_by_admin",
		}, withCookie(cookie))
		require.Equal(t, http.StatusOK, response.Code, response.Body.String())
		assert.Equal(t, "renamed_by_admin", decodeData(t, response)["username"])
	})
}

/*
TestClaimActivation_BadInput checks boundary validation on the activation
endpoint.
*/
func TestClaimActivation_BadInput(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)

	response := doJSON(t, router, http.MethodPatch, "/api/v1/activations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, response.Code)

	response = doJSON(t, router, http.MethodPatch, "/api/v1/activations/7b7c9f74-1111-4222-8333-444455556666", nil)
	assert.Equal(t, http.StatusNotFound, response.Code)
}

// # HTTP helpers

func sessionCookie(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == constants.SessionCookieName {
			return cookie
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func withCookie(cookie *http.Cookie) func(*http.Request) {
	return func(request *http.Request) {
		request.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
}

// activationTokenIDFromEmail pulls the token ID out of the activation link.
func activationTokenIDFromEmail(t *testing.T, body string) string {
	t.Helper()
	const marker = "/signup/activate/"
	index := strings.Index(body, marker)
	require.GreaterOrEqual(t, index, 0, "activation link missing from email body")
	return strings.Fields(body[index+len(marker):])[0]
}
