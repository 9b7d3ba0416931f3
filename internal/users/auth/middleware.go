// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/nerdhq/gatekeeper/internal/platform/constants"
	"github.com/nerdhq/gatekeeper/internal/platform/ctxutil"
)

// ViewerMiddleware resolves the acting user for every request.
//
// The bearer token is read from the session cookie or, failing that, from
// the Authorization header. Any failure along the way (no token, unknown
// token, expired session, storage error) degrades to the anonymous viewer;
// this middleware never rejects a request. Endpoints that require a
// capability reject later, through the authorization model.
func ViewerMiddleware(sessions *SessionService, users *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			ctx := request.Context()

			token := bearerToken(request)
			if token == "" {
				next.ServeHTTP(writer, request.WithContext(WithViewer(ctx, AnonymousUser())))
				return
			}

			session, err := sessions.FindOneValidByToken(ctx, token)
			if err != nil {
				logResolveFailure(ctxutil.GetLogger(ctx), "session", err)
				next.ServeHTTP(writer, request.WithContext(WithViewer(ctx, AnonymousUser())))
				return
			}

			viewer, err := users.FindOneByID(ctx, session.UserID)
			if err != nil {
				logResolveFailure(ctxutil.GetLogger(ctx), "user", err)
				next.ServeHTTP(writer, request.WithContext(WithViewer(ctx, AnonymousUser())))
				return
			}

			ctx = WithViewer(ctx, viewer)
			ctx = WithSession(ctx, session)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// bearerToken extracts the session token from the cookie or the
// Authorization header. The cookie wins when both are present.
func bearerToken(request *http.Request) string {
	if cookie, err := request.Cookie(constants.SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := request.Header.Get("Authorization")
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		return strings.TrimSpace(token)
	}

	return ""
}

func logResolveFailure(logger *slog.Logger, stage string, err error) {
	if logger == nil {
		return
	}
	logger.Debug("viewer resolution fell back to anonymous",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}
