// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth

import (
	"context"

	"github.com/nerdhq/gatekeeper/internal/platform/ctxkey"
)

// # Request context
//
// The viewer (the authenticated user, or the anonymous sentinel) and the
// resolved session travel on the request context. Helpers live here rather
// than in platform/ctxutil so the platform layer never imports the domain.

// WithViewer returns a context carrying the acting user.
func WithViewer(ctx context.Context, viewer *User) context.Context {
	return context.WithValue(ctx, ctxkey.KeyViewer, viewer)
}

// ViewerFrom extracts the acting user from the context. Requests that never
// passed the viewer middleware get the anonymous sentinel, not nil, so
// authorization checks always have a well-formed actor.
func ViewerFrom(ctx context.Context) *User {
	if viewer, ok := ctx.Value(ctxkey.KeyViewer).(*User); ok && viewer != nil {
		return viewer
	}
	return AnonymousUser()
}

// WithSession returns a context carrying the resolved session.
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, ctxkey.KeySession, session)
}

// SessionFrom extracts the resolved session, or nil for anonymous requests.
func SessionFrom(ctx context.Context) *Session {
	if session, ok := ctx.Value(ctxkey.KeySession).(*Session); ok {
		return session
	}
	return nil
}
