// Copyright (c) 2026 NerdHQ. All rights reserved.

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, cookie settings, and cross-cutting keys that are
shared between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Security: session cookie configuration.
  - Cache Taxonomy: Redis key prefixes.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "gatekeeper-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # HTTP Headers

const (
	// HeaderXRequestID is the correlation header echoed on every response.
	HeaderXRequestID = "X-Request-ID"
)

// # Authentication

const (
	// SessionCookieName is the name of the cookie that stores the session
	// bearer token.
	SessionCookieName = "session_id"

	// SessionCookiePath scopes the session cookie to the whole API.
	SessionCookiePath = "/"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	// RedisPrefixSession keys the session-by-token lookup cache.
	RedisPrefixSession = "auth:session:"
)
