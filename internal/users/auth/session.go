// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/nerdhq/gatekeeper/internal/platform/sec"
	"github.com/nerdhq/gatekeeper/pkg/uuid"
)

// # Sessions

const (
	// SessionTTL is the lifetime of a login session.
	SessionTTL = 30 * 24 * time.Hour

	// sessionTokenLength is the byte length of the random bearer secret;
	// the hex-encoded token is twice as many characters.
	sessionTokenLength = 48
)

// Session represents an authenticated login.
//
// Token is the opaque bearer secret presented by the client; it is distinct
// from ID. A session is valid iff `now < ExpiresAt`; the terminal expired
// state is reached by natural expiry or by [SessionService.ExpireByID],
// which rewrites ExpiresAt into the past.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsValidAt reports whether the session is valid at the given instant.
func (s *Session) IsValidAt(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// SessionService manages the session lifecycle.
//
// Reads go through an optional Redis read-through cache; PostgreSQL is the
// source of truth and the cache may be nil (tests, cache outages).
type SessionService struct {
	sessions SessionRepository
	cache    SessionCache
	logger   *slog.Logger
}

// NewSessionService constructs a [SessionService]. cache may be nil.
func NewSessionService(sessions SessionRepository, cache SessionCache, logger *slog.Logger) *SessionService {
	return &SessionService{sessions: sessions, cache: cache, logger: logger}
}

// Create mints a new session for userID. It always succeeds for a known
// user: there is no per-user session limit and no invalidation of prior
// sessions.
func (service *SessionService) Create(ctx context.Context, userID string) (*Session, error) {
	token, err := sec.GenerateSecureToken(sessionTokenLength)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(SessionTTL),
	}

	if err := service.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	service.cacheSet(ctx, session)
	return session, nil
}

// FindOneValidByToken resolves a bearer token to its session. Expired and
// missing sessions surface as the same NotFound — the lookup never reveals
// whether a token once existed.
func (service *SessionService) FindOneValidByToken(ctx context.Context, token string) (*Session, error) {
	// Cache hit still re-checks expiry: a stale entry must never extend a
	// session's life.
	if cached := service.cacheGet(ctx, token); cached != nil {
		if cached.IsValidAt(time.Now().UTC()) {
			return cached, nil
		}
		service.cacheDelete(ctx, token)
	}

	session, err := service.sessions.FindValidByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	service.cacheSet(ctx, session)
	return session, nil
}

// ExpireByID terminates the session (logout). The expiry timestamp is
// rewritten into the past, so an already-expired session stays expired; the
// updated row is returned for presentation.
func (service *SessionService) ExpireByID(ctx context.Context, sessionID string) (*Session, error) {
	expired, err := service.sessions.Expire(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	service.cacheDelete(ctx, expired.Token)
	return expired, nil
}

// # Cache plumbing
//
// All cache failures degrade to the database path; they are logged at debug
// level and otherwise ignored.

func (service *SessionService) cacheGet(ctx context.Context, token string) *Session {
	if service.cache == nil {
		return nil
	}
	session, err := service.cache.Get(ctx, token)
	if err != nil {
		service.logger.DebugContext(ctx, "session_cache_get_failed", slog.Any("error", err))
		return nil
	}
	return session
}

func (service *SessionService) cacheSet(ctx context.Context, session *Session) {
	if service.cache == nil {
		return
	}
	if err := service.cache.Set(ctx, session); err != nil {
		service.logger.DebugContext(ctx, "session_cache_set_failed", slog.Any("error", err))
	}
}

func (service *SessionService) cacheDelete(ctx context.Context, token string) {
	if service.cache == nil {
		return
	}
	if err := service.cache.Delete(ctx, token); err != nil {
		service.logger.DebugContext(ctx, "session_cache_delete_failed", slog.Any("error", err))
	}
}
