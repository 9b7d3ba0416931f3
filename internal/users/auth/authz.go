// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth

import (
	"time"

	"github.com/nerdhq/gatekeeper/internal/platform/apperr"
	"github.com/nerdhq/gatekeeper/internal/platform/migration"
)

// # Authorization Engine
//
// Can and FilterOutput are pure functions: no storage access, no mutation,
// safe to call repeatedly and recursively. Their preconditions are enforced
// with internal errors because violating them is a programming mistake, not
// bad user input — the anonymous case is a concrete sentinel user, never a
// nil viewer.

// Can decides whether actor may exercise feature, optionally against a
// target user resource.
//
// Base rule: granted iff feature is in actor's feature set.
//
// Ownership override for update:user: when resource is non-nil the base
// check is replaced — access is granted iff actor.ID == resource.ID (self
// service) or actor separately holds update:user:others.
func Can(actor *User, feature Feature, resource *User) (bool, error) {
	if err := validateActor(actor); err != nil {
		return false, err
	}
	if err := validateFeature(feature); err != nil {
		return false, err
	}

	authorized := actor.HasFeature(feature)

	if feature == FeatureUpdateUser && resource != nil {
		authorized = actor.ID == resource.ID
		if !authorized {
			elevated, err := Can(actor, FeatureUpdateUserOthers, nil)
			if err != nil {
				return false, err
			}
			authorized = elevated
		}
	}

	return authorized, nil
}

// FilterOutput produces the viewer-appropriate projection of resource for
// feature. It is the only sanctioned path for turning internal records into
// externally visible payloads: every projection is an explicit field
// allowlist, so fields never enumerated (password hashes, raw user objects)
// cannot leak by accident.
//
// Conditional projections (read:user:self for someone else's record,
// read:session for someone else's session) return (nil, nil); callers must
// treat a nil projection as not-authorized, never as an empty object.
func FilterOutput(actor *User, feature Feature, resource any) (any, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	if err := validateFeature(feature); err != nil {
		return nil, err
	}
	if resource == nil {
		return nil, apperr.Internalf("authorization: a `resource` is required to filter output")
	}

	project, ok := projections[feature]
	if !ok {
		return nil, apperr.Internalf("authorization: feature %q has no output projection", feature)
	}

	return project(actor, resource)
}

// # Projections
//
// The dispatch table keeps the set of projectable features closed: adding a
// feature that produces output means adding exactly one entry here.

type projection func(actor *User, resource any) (any, error)

var projections = map[Feature]projection{
	FeatureReadUser:            projectUser,
	FeatureReadUserSelf:        projectUserSelf,
	FeatureReadSession:         projectSession,
	FeatureReadActivationToken: projectActivationToken,
	FeatureReadMigration:       projectMigrations,
	FeatureReadStatus:          projectStatus,
}

// UserOutput is the public view of a user record. No email, no password.
type UserOutput struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Features  []Feature `json:"features"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserSelfOutput additionally exposes the email; only ever produced for the
// record's owner.
type UserSelfOutput struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Features  []Feature `json:"features"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionOutput is the owner's view of a login session.
type SessionOutput struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActivationTokenOutput exposes token metadata without the owning user
// object.
type ActivationTokenOutput struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	UsedAt    *time.Time `json:"used_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// MigrationOutput is one schema migration in a listing.
type MigrationOutput struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusOutput is the redacted status snapshot. Version is omitted unless
// the viewer holds read:status:all.
type StatusOutput struct {
	UpdatedAt    time.Time                `json:"updated_at"`
	Dependencies StatusDependenciesOutput `json:"dependencies"`
}

// StatusDependenciesOutput groups per-dependency status blocks.
type StatusDependenciesOutput struct {
	Database DatabaseStatusOutput `json:"database"`
}

// DatabaseStatusOutput is the redacted database status block.
type DatabaseStatusOutput struct {
	Version           *string `json:"version,omitempty"`
	MaxConnections    int     `json:"max_connections"`
	OpenedConnections int     `json:"opened_connections"`
}

func projectUser(_ *User, resource any) (any, error) {
	target, ok := resource.(*User)
	if !ok {
		return nil, apperr.Internalf("authorization: read:user expects *User, got %T", resource)
	}
	return &UserOutput{
		ID:        target.ID,
		Username:  target.Username,
		Features:  target.Features,
		CreatedAt: target.CreatedAt,
		UpdatedAt: target.UpdatedAt,
	}, nil
}

func projectUserSelf(actor *User, resource any) (any, error) {
	target, ok := resource.(*User)
	if !ok {
		return nil, apperr.Internalf("authorization: read:user:self expects *User, got %T", resource)
	}
	// Conditional projection: only the owner sees their own email.
	if actor.ID != target.ID {
		return nil, nil
	}
	return &UserSelfOutput{
		ID:        target.ID,
		Username:  target.Username,
		Email:     target.Email,
		Features:  target.Features,
		CreatedAt: target.CreatedAt,
		UpdatedAt: target.UpdatedAt,
	}, nil
}

func projectSession(actor *User, resource any) (any, error) {
	session, ok := resource.(*Session)
	if !ok {
		return nil, apperr.Internalf("authorization: read:session expects *Session, got %T", resource)
	}
	// Conditional projection: sessions are visible to their owner only.
	if actor.ID != session.UserID {
		return nil, nil
	}
	return &SessionOutput{
		ID:        session.ID,
		UserID:    session.UserID,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}, nil
}

func projectActivationToken(_ *User, resource any) (any, error) {
	token, ok := resource.(*ActivationToken)
	if !ok {
		return nil, apperr.Internalf("authorization: read:activation_token expects *ActivationToken, got %T", resource)
	}
	return &ActivationTokenOutput{
		ID:        token.ID,
		UserID:    token.UserID,
		UsedAt:    token.UsedAt,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
		UpdatedAt: token.UpdatedAt,
	}, nil
}

func projectMigrations(_ *User, resource any) (any, error) {
	records, ok := resource.([]migration.Record)
	if !ok {
		return nil, apperr.Internalf("authorization: read:migration expects []migration.Record, got %T", resource)
	}
	outputs := make([]MigrationOutput, 0, len(records))
	for _, record := range records {
		outputs = append(outputs, MigrationOutput{
			Path:      record.Path,
			Name:      record.Name,
			Timestamp: record.Timestamp,
		})
	}
	return outputs, nil
}

func projectStatus(actor *User, resource any) (any, error) {
	snapshot, ok := resource.(*StatusSnapshot)
	if !ok {
		return nil, apperr.Internalf("authorization: read:status expects *StatusSnapshot, got %T", resource)
	}

	// Nested authorization: the database version is gated behind a narrower
	// capability than the snapshot itself.
	seeAll, err := Can(actor, FeatureReadStatusAll, nil)
	if err != nil {
		return nil, err
	}

	output := &StatusOutput{
		UpdatedAt: snapshot.UpdatedAt,
		Dependencies: StatusDependenciesOutput{
			Database: DatabaseStatusOutput{
				MaxConnections:    snapshot.Dependencies.Database.MaxConnections,
				OpenedConnections: snapshot.Dependencies.Database.OpenedConnections,
			},
		},
	}
	if seeAll {
		version := snapshot.Dependencies.Database.Version
		output.Dependencies.Database.Version = &version
	}
	return output, nil
}

// # Status resource
//
// The snapshot type lives here, next to its projection, so the system
// package can depend on auth without a cycle.

// StatusSnapshot is the unredacted service status resource.
type StatusSnapshot struct {
	UpdatedAt    time.Time
	Dependencies StatusDependencies
}

// StatusDependencies groups the observed infrastructure dependencies.
type StatusDependencies struct {
	Database DatabaseStatus
}

// DatabaseStatus is the unredacted database status block.
type DatabaseStatus struct {
	Version           string
	MaxConnections    int
	OpenedConnections int
}

// # Precondition checks

func validateActor(actor *User) error {
	if actor == nil || actor.Features == nil {
		return apperr.Internalf("authorization: a `user` with a loaded feature set is required")
	}
	return nil
}

func validateFeature(feature Feature) error {
	if !IsKnownFeature(feature) {
		return apperr.Internalf("authorization: feature %q is not a known feature", feature)
	}
	return nil
}
