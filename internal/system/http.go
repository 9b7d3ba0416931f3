// Copyright (c) 2026 NerdHQ. All rights reserved.

package system

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerdhq/gatekeeper/internal/platform/apperr"
	"github.com/nerdhq/gatekeeper/internal/platform/migration"
	"github.com/nerdhq/gatekeeper/internal/platform/respond"
	"github.com/nerdhq/gatekeeper/internal/users/auth"
)

// Handler implements the status and migration HTTP endpoints.
type Handler struct {
	status     *StatusService
	migrations *migration.Runner
}

// NewHandler constructs a new [Handler].
func NewHandler(status *StatusService, migrations *migration.Runner) *Handler {
	return &Handler{status: status, migrations: migrations}
}

// StatusRoutes returns a [chi.Router] for the /status resource.
//
// # Endpoints
//   - GET / : Returns the viewer-filtered status snapshot.
func (handler *Handler) StatusRoutes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.getStatus)

	return router
}

// MigrationRoutes returns a [chi.Router] for the /migrations resource.
//
// # Endpoints
//   - GET  / : Lists pending migrations.
//   - POST / : Applies all pending migrations.
func (handler *Handler) MigrationRoutes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.listMigrations)
	router.Post("/", handler.applyMigrations)

	return router
}

// getStatus handles GET /api/v1/status requests.
//
// The endpoint is open; the projection strips the database version for
// viewers without the read:status:all capability.
func (handler *Handler) getStatus(writer http.ResponseWriter, request *http.Request) {
	snapshot, err := handler.status.Snapshot(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	output, err := auth.FilterOutput(auth.ViewerFrom(request.Context()), auth.FeatureReadStatus, snapshot)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, output)
}

// listMigrations handles GET /api/v1/migrations requests.
//
// # Returns
//   - Writes HTTP 200 OK with the pending migrations.
//   - Writes HTTP 403 Forbidden when the viewer lacks read:migration.
func (handler *Handler) listMigrations(writer http.ResponseWriter, request *http.Request) {
	viewer := auth.ViewerFrom(request.Context())

	allowed, err := auth.Can(viewer, auth.FeatureReadMigration, nil)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if !allowed {
		respond.Error(writer, request, apperr.ForbiddenFeature(
			string(auth.FeatureReadMigration),
			"You do not have permission to list migrations.",
			"Check if your account has the read:migration feature.",
		))
		return
	}

	pending, err := handler.migrations.Pending()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	output, err := auth.FilterOutput(viewer, auth.FeatureReadMigration, pending)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, output)
}

// applyMigrations handles POST /api/v1/migrations requests.
//
// # Returns
//   - Writes HTTP 201 Created with the applied migrations when at least one
//     migration ran.
//   - Writes HTTP 200 OK with an empty list when the schema was already
//     up to date.
//   - Writes HTTP 403 Forbidden when the viewer lacks create:migration.
func (handler *Handler) applyMigrations(writer http.ResponseWriter, request *http.Request) {
	viewer := auth.ViewerFrom(request.Context())

	allowed, err := auth.Can(viewer, auth.FeatureCreateMigration, nil)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if !allowed {
		respond.Error(writer, request, apperr.ForbiddenFeature(
			string(auth.FeatureCreateMigration),
			"You do not have permission to run migrations.",
			"Check if your account has the create:migration feature.",
		))
		return
	}

	applied, err := handler.migrations.Up()
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	output, err := auth.FilterOutput(viewer, auth.FeatureReadMigration, applied)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if len(applied) > 0 {
		respond.Created(writer, output)
		return
	}
	respond.OK(writer, output)
}
