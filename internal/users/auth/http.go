// Copyright (c) 2026 NerdHQ. All rights reserved.

// # HTTP delivery
//
// Handlers act as the "gatekeepers" to the system. They are responsible for:
//   - JSON request parsing and strict input validation.
//   - Resolving the viewer and calling the authorization model.
//   - Standardizing JSON response formats via the [respond] package.
//
// They contain NO business logic or database queries, and every resource
// that leaves these handlers goes through [FilterOutput] first.

package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerdhq/gatekeeper/internal/platform/apperr"
	"github.com/nerdhq/gatekeeper/internal/platform/constants"
	"github.com/nerdhq/gatekeeper/internal/platform/respond"
	"github.com/nerdhq/gatekeeper/internal/platform/validate"
)

const (
	usernameMaxLength = 30
	passwordMinLength = 8
	passwordMaxLength = 72 // bcrypt input limit
)

// Handler implements the user, session, and activation HTTP endpoints.
type Handler struct {
	users        *Service
	sessions     *SessionService
	activations  *ActivationService
	secureCookie bool
}

// NewHandler constructs a new [Handler]. secureCookie controls the Secure
// attribute on the session cookie and should be true outside development.
func NewHandler(users *Service, sessions *SessionService, activations *ActivationService, secureCookie bool) *Handler {
	return &Handler{
		users:        users,
		sessions:     sessions,
		activations:  activations,
		secureCookie: secureCookie,
	}
}

// UserRoutes returns a [chi.Router] for the /users resource.
//
// # Endpoints
//   - POST  /           : Registers a new account.
//   - GET   /{username} : Returns a public (or self) profile.
//   - PATCH /{username} : Partially updates an account.
func (handler *Handler) UserRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", handler.createUser)
	router.Get("/{username}", handler.getUser)
	router.Patch("/{username}", handler.updateUser)

	return router
}

// SessionRoutes returns a [chi.Router] for the /sessions resource.
//
// # Endpoints
//   - POST   / : Authenticates credentials and mints a session.
//   - DELETE / : Expires the current session.
func (handler *Handler) SessionRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", handler.createSession)
	router.Delete("/", handler.deleteSession)

	return router
}

// ActivationRoutes returns a [chi.Router] for the /activations resource.
//
// # Endpoints
//   - PATCH /{token_id} : Claims an activation token.
func (handler *Handler) ActivationRoutes() chi.Router {
	router := chi.NewRouter()

	router.Patch("/{token_id}", handler.claimActivation)

	return router
}

// # Users

// createUserRequest represents the JSON payload expected for registration.
type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// createUser handles POST /api/v1/users requests.
//
// Registration is open to anonymous callers. The new account starts with
// only the read:activation_token capability and an activation email is sent;
// a mail failure does not fail the registration.
//
// # Returns
//   - Writes HTTP 201 Created with the self projection of the new account.
//   - Writes HTTP 400 Bad Request if validation fails or a value is taken.
func (handler *Handler) createUser(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input createUserRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	validator := &validate.Validator{}
	validator.
		Required(FieldUsername, input.Username).
		Username(FieldUsername, input.Username).
		MaxLen(FieldUsername, input.Username, usernameMaxLength).
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, passwordMinLength).
		MaxLen(FieldPassword, input.Password, passwordMaxLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	user, err := handler.users.Create(request.Context(), CreateInput{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// Kick off the activation handshake. Email delivery is best effort.
	if _, err := handler.activations.CreateAndNotify(request.Context(), user); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 4. Presentation Output ────────────────────────────────────────────

	output, err := FilterOutput(user, FeatureReadUserSelf, user)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, output)
}

// getUser handles GET /api/v1/users/{username} requests.
//
// The endpoint is open; the projection decides what the viewer sees. Owners
// get the self view (including email), everyone else the public view.
func (handler *Handler) getUser(writer http.ResponseWriter, request *http.Request) {
	viewer := ViewerFrom(request.Context())

	user, err := handler.users.FindOneByUsername(request.Context(), chi.URLParam(request, "username"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	output, err := FilterOutput(viewer, handler.profileFeature(viewer, user), user)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, output)
}

// updateUserRequest represents the JSON payload for a partial account update.
type updateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// updateUser handles PATCH /api/v1/users/{username} requests.
//
// The authorization check runs against the target account: owners pass with
// update:user alone, while updating someone else additionally requires
// update:user:others.
//
// # Returns
//   - Writes HTTP 200 OK with the refreshed projection.
//   - Writes HTTP 403 Forbidden when the viewer lacks the capability.
func (handler *Handler) updateUser(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input updateUserRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	validator := &validate.Validator{}
	if input.Username == nil && input.Email == nil && input.Password == nil {
		validator.Custom("body", true, "At least one field must be provided")
	}
	if input.Username != nil {
		validator.
			Required(FieldUsername, *input.Username).
			Username(FieldUsername, *input.Username).
			MaxLen(FieldUsername, *input.Username, usernameMaxLength)
	}
	if input.Email != nil {
		validator.
			Required(FieldEmail, *input.Email).
			Email(FieldEmail, *input.Email)
	}
	if input.Password != nil {
		validator.
			MinLen(FieldPassword, *input.Password, passwordMinLength).
			MaxLen(FieldPassword, *input.Password, passwordMaxLength)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Authorization ──────────────────────────────────────────────────

	viewer := ViewerFrom(request.Context())

	target, err := handler.users.FindOneByUsername(request.Context(), chi.URLParam(request, "username"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	allowed, err := Can(viewer, FeatureUpdateUser, target)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if !allowed {
		respond.Error(writer, request, apperr.ForbiddenFeature(
			string(FeatureUpdateUser),
			"You do not have permission to update this user.",
			"Check if you are logged in with the right account.",
		))
		return
	}

	// ── 4. Application Execution ──────────────────────────────────────────

	updated, err := handler.users.Update(request.Context(), target.Username, UpdateInput{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 5. Presentation Output ────────────────────────────────────────────

	output, err := FilterOutput(viewer, handler.profileFeature(viewer, updated), updated)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, output)
}

// profileFeature picks the projection feature for a user resource: the self
// view when the viewer owns the account, the public view otherwise.
func (handler *Handler) profileFeature(viewer, resource *User) Feature {
	if !viewer.IsAnonymous() && viewer.ID == resource.ID {
		return FeatureReadUserSelf
	}
	return FeatureReadUser
}

// # Sessions

// createSessionRequest represents the JSON payload expected for login.
type createSessionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// createSession handles POST /api/v1/sessions requests.
//
// Login requires both valid credentials and the create:session capability;
// accounts that never completed activation hold the latter back.
//
// # Returns
//   - Writes HTTP 201 Created with the session projection and sets the
//     session cookie.
//   - Writes HTTP 401 Unauthorized for bad credentials.
//   - Writes HTTP 403 Forbidden for unactivated accounts.
func (handler *Handler) createSession(writer http.ResponseWriter, request *http.Request) {
	// ── 1. Payload Extraction ─────────────────────────────────────────────

	var input createSessionRequest
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	// ── 2. Boundary Validation ────────────────────────────────────────────

	validator := &validate.Validator{}
	validator.
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. Application Execution ──────────────────────────────────────────

	user, err := handler.users.Authenticate(request.Context(), input.Email, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	allowed, err := Can(user, FeatureCreateSession, nil)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if !allowed {
		respond.Error(writer, request, apperr.ForbiddenFeature(
			string(FeatureCreateSession),
			"You do not have permission to log in.",
			"Check if your account is already activated.",
		))
		return
	}

	session, err := handler.sessions.Create(request.Context(), user.ID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 4. Presentation Output ────────────────────────────────────────────

	handler.setSessionCookie(writer, session)

	output, err := FilterOutput(user, FeatureReadSession, session)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, output)
}

// deleteSession handles DELETE /api/v1/sessions requests.
//
// The current session (resolved by the viewer middleware) is expired by
// rewriting its expiry into the past, and the cookie is cleared.
func (handler *Handler) deleteSession(writer http.ResponseWriter, request *http.Request) {
	viewer := ViewerFrom(request.Context())
	session := SessionFrom(request.Context())

	if viewer.IsAnonymous() || session == nil {
		respond.Error(writer, request, apperr.Unauthorized(
			"You must be logged in to perform this action.",
			"Log in and try again.",
		))
		return
	}

	expired, err := handler.sessions.ExpireByID(request.Context(), session.ID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearSessionCookie(writer)

	output, err := FilterOutput(viewer, FeatureReadSession, expired)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, output)
}

func (handler *Handler) setSessionCookie(writer http.ResponseWriter, session *Session) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    session.Token,
		Path:     constants.SessionCookiePath,
		MaxAge:   int(SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   handler.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (handler *Handler) clearSessionCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    "invalid",
		Path:     constants.SessionCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   handler.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// # Activations

// claimActivation handles PATCH /api/v1/activations/{token_id} requests.
//
// The endpoint is open: the token ID itself is the proof of possession. A
// missing, expired, or already-used token gets the same 404, so the endpoint
// cannot be used to probe token state.
func (handler *Handler) claimActivation(writer http.ResponseWriter, request *http.Request) {
	tokenID := chi.URLParam(request, "token_id")

	validator := &validate.Validator{}
	validator.Required(FieldTokenID, tokenID).UUID(FieldTokenID, tokenID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	token, err := handler.activations.Claim(request.Context(), tokenID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	output, err := FilterOutput(ViewerFrom(request.Context()), FeatureReadActivationToken, token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, output)
}
