// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerdhq/gatekeeper/internal/platform/constants"
)

// RedisSessionCache implements SessionCache using Redis.
//
// It is a read-through accelerator for session-by-token lookups; the
// PostgreSQL sessions table stays the source of truth and the service layer
// re-checks expiry on every cache hit.
type RedisSessionCache struct {
	client *redis.Client
}

// NewSessionCache creates a new Redis-backed SessionCache.
func NewSessionCache(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

/*
Get retrieves the cached session for a bearer token.

Description: A miss (absent or evicted key) is not an error; it returns
(nil, nil) so the caller falls through to PostgreSQL.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - *Session: Decoded session, or nil on a miss
  - error: Connectivity or decoding errors
*/
func (cache *RedisSessionCache) Get(context context.Context, token string) (*Session, error) {

	// Use constants for key prefix
	key := constants.RedisPrefixSession + token

	// Get the session payload from Redis
	payload, err := cache.client.Get(context, key).Bytes()

	// Handle errors
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis_session_cache_get_failed: %w", err)
	}

	// Decode the session
	session := &Session{}
	if err := json.Unmarshal(payload, session); err != nil {
		return nil, fmt.Errorf("redis_session_cache_decode_failed: %w", err)
	}

	return session, nil
}

/*
Set stores the session keyed by its token.

Description: The TTL is clamped to the session's remaining lifetime so the
cache entry can never outlive the row it mirrors. Sessions that are already
expired are not cached.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Encoding or storage failures
*/
func (cache *RedisSessionCache) Set(context context.Context, session *Session) error {

	// Skip sessions that have nothing left to cache
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	// Encode the session
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis_session_cache_encode_failed: %w", err)
	}

	// Use constants for key prefix
	key := constants.RedisPrefixSession + session.Token

	// Set the session with the clamped TTL
	if err := cache.client.Set(context, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis_session_cache_set_failed: %w", err)
	}

	// Return nil on success
	return nil
}

/*
Delete removes the cached session for a bearer token.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - error: Deletion failures
*/
func (cache *RedisSessionCache) Delete(context context.Context, token string) error {

	// Use constants for key prefix
	key := constants.RedisPrefixSession + token

	// Delete the session from Redis
	if err := cache.client.Del(context, key).Err(); err != nil {
		return fmt.Errorf("redis_session_cache_delete_failed: %w", err)
	}

	// Return nil on success
	return nil
}
