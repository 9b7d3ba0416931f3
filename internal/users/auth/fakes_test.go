// Copyright (c) 2026 NerdHQ. All rights reserved.

package auth_test

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nerdhq/gatekeeper/internal/platform/apperr"
	"github.com/nerdhq/gatekeeper/internal/platform/mailer"
	"github.com/nerdhq/gatekeeper/internal/users/auth"
)

// In-memory implementations of the Persistence Port, sharing the error
// contract of the PostgreSQL repositories. The claim fake performs its
// test-and-set under a mutex so the single-use race tests exercise the same
// atomicity the conditional UPDATE provides.

// # User repository fake

type fakeUserRepository struct {
	mu    sync.Mutex
	users map[string]*auth.User // keyed by ID
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{users: map[string]*auth.User{}}
}

func notFoundUser() error {
	return apperr.NotFound(
		"The user was not found in the system.",
		"Check that the username is typed correctly.",
	)
}

func (repo *fakeUserRepository) FindByID(_ context.Context, id string) (*auth.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if user, ok := repo.users[id]; ok {
		return copyUser(user), nil
	}
	return nil, notFoundUser()
}

func (repo *fakeUserRepository) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, user := range repo.users {
		if strings.EqualFold(user.Username, username) {
			return copyUser(user), nil
		}
	}
	return nil, notFoundUser()
}

func (repo *fakeUserRepository) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, user := range repo.users {
		if strings.EqualFold(user.Email, email) {
			return copyUser(user), nil
		}
	}
	return nil, notFoundUser()
}

func (repo *fakeUserRepository) Create(_ context.Context, user *auth.User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	repo.users[user.ID] = copyUser(user)
	return nil
}

func (repo *fakeUserRepository) UpdateFields(_ context.Context, user *auth.User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	stored, ok := repo.users[user.ID]
	if !ok {
		return notFoundUser()
	}
	stored.Username = user.Username
	stored.Email = user.Email
	stored.Password = user.Password
	stored.UpdatedAt = time.Now().UTC()
	user.UpdatedAt = stored.UpdatedAt
	return nil
}

func (repo *fakeUserRepository) UpdateFeatures(_ context.Context, userID string, features []auth.Feature) (*auth.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	stored, ok := repo.users[userID]
	if !ok {
		return nil, notFoundUser()
	}
	stored.Features = append([]auth.Feature{}, features...)
	stored.UpdatedAt = time.Now().UTC()
	return copyUser(stored), nil
}

func copyUser(user *auth.User) *auth.User {
	clone := *user
	clone.Features = append([]auth.Feature{}, user.Features...)
	return &clone
}

// # Activation token repository fake

type fakeActivationTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*auth.ActivationToken
}

func newFakeActivationTokenRepository() *fakeActivationTokenRepository {
	return &fakeActivationTokenRepository{tokens: map[string]*auth.ActivationToken{}}
}

func notFoundToken() error {
	return apperr.NotFound(
		"The activation token was not found in the system or has expired.",
		"Sign up again.",
	)
}

func (repo *fakeActivationTokenRepository) Create(_ context.Context, token *auth.ActivationToken) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	now := time.Now().UTC()
	token.CreatedAt = now
	token.UpdatedAt = now
	repo.tokens[token.ID] = copyToken(token)
	return nil
}

func (repo *fakeActivationTokenRepository) FindValidByID(_ context.Context, id string) (*auth.ActivationToken, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	token, ok := repo.tokens[id]
	if !ok || token.UsedAt != nil || !token.ExpiresAt.After(time.Now().UTC()) {
		return nil, notFoundToken()
	}
	return copyToken(token), nil
}

func (repo *fakeActivationTokenRepository) Claim(_ context.Context, id string) (*auth.ActivationToken, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	token, ok := repo.tokens[id]
	if !ok || token.UsedAt != nil || !token.ExpiresAt.After(time.Now().UTC()) {
		return nil, notFoundToken()
	}

	now := time.Now().UTC()
	token.UsedAt = &now
	token.UpdatedAt = now
	return copyToken(token), nil
}

// expire rewinds a token's expiry so tests can produce expired tokens
// without sleeping.
func (repo *fakeActivationTokenRepository) expire(id string) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if token, ok := repo.tokens[id]; ok {
		token.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	}
}

func (repo *fakeActivationTokenRepository) stored(id string) *auth.ActivationToken {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if token, ok := repo.tokens[id]; ok {
		return copyToken(token)
	}
	return nil
}

func copyToken(token *auth.ActivationToken) *auth.ActivationToken {
	clone := *token
	if token.UsedAt != nil {
		usedAt := *token.UsedAt
		clone.UsedAt = &usedAt
	}
	return &clone
}

// # Session repository fake

type fakeSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session // keyed by ID
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{sessions: map[string]*auth.Session{}}
}

func notFoundSession() error {
	return apperr.NotFound(
		"The session was not found in the system or has expired.",
		"Log in again.",
	)
}

func (repo *fakeSessionRepository) Create(_ context.Context, session *auth.Session) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	clone := *session
	repo.sessions[session.ID] = &clone
	return nil
}

func (repo *fakeSessionRepository) FindValidByToken(_ context.Context, token string) (*auth.Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, session := range repo.sessions {
		if session.Token == token && session.ExpiresAt.After(time.Now().UTC()) {
			clone := *session
			return &clone, nil
		}
	}
	return nil, notFoundSession()
}

func (repo *fakeSessionRepository) Expire(_ context.Context, id string) (*auth.Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	session, ok := repo.sessions[id]
	if !ok {
		return nil, notFoundSession()
	}
	session.ExpiresAt = time.Now().UTC().Add(-24 * time.Hour)
	session.UpdatedAt = time.Now().UTC()
	clone := *session
	return &clone, nil
}

// # Session cache fake

type fakeSessionCache struct {
	mu      sync.Mutex
	entries map[string]*auth.Session
	hits    int
}

func newFakeSessionCache() *fakeSessionCache {
	return &fakeSessionCache{entries: map[string]*auth.Session{}}
}

func (cache *fakeSessionCache) Get(_ context.Context, token string) (*auth.Session, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	session, ok := cache.entries[token]
	if !ok {
		return nil, nil
	}
	cache.hits++
	clone := *session
	return &clone, nil
}

func (cache *fakeSessionCache) Set(_ context.Context, session *auth.Session) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	clone := *session
	cache.entries[session.Token] = &clone
	return nil
}

func (cache *fakeSessionCache) Delete(_ context.Context, token string) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	delete(cache.entries, token)
	return nil
}

// # Mailer fake

type fakeMailer struct {
	mu       sync.Mutex
	sent     []mailer.Message
	failWith error
}

func (m *fakeMailer) Send(_ context.Context, message mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}
	m.sent = append(m.sent, message)
	return nil
}

func (m *fakeMailer) sentMessages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]mailer.Message{}, m.sent...)
}

// # Wiring helpers

type testEnv struct {
	userRepo    *fakeUserRepository
	tokenRepo   *fakeActivationTokenRepository
	sessionRepo *fakeSessionRepository
	cache       *fakeSessionCache
	mail        *fakeMailer

	users       *auth.Service
	sessions    *auth.SessionService
	activations *auth.ActivationService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		userRepo:    newFakeUserRepository(),
		tokenRepo:   newFakeActivationTokenRepository(),
		sessionRepo: newFakeSessionRepository(),
		cache:       newFakeSessionCache(),
		mail:        &fakeMailer{},
	}

	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))

	env.users = auth.NewService(env.userRepo)
	env.sessions = auth.NewSessionService(env.sessionRepo, env.cache, logger)
	env.activations = auth.NewActivationService(
		env.tokenRepo, env.users, env.mail,
		"NerdHQ <contact@nerdhq.dev>", "http://localhost:3000", logger,
	)

	return env
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// register creates an account through the service, so it carries the same
// initial state real registrations get.
func (env *testEnv) register(t interface{ Fatalf(string, ...any) }, username, email, password string) *auth.User {
	user, err := env.users.Create(context.Background(), auth.CreateInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user
}

// activate walks the real activation path: token mint plus claim.
func (env *testEnv) activate(t interface{ Fatalf(string, ...any) }, user *auth.User) *auth.User {
	ctx := context.Background()

	token, err := env.activations.Create(ctx, user.ID)
	if err != nil {
		t.Fatalf("create activation token: %v", err)
	}
	if _, err := env.activations.Claim(ctx, token.ID); err != nil {
		t.Fatalf("claim activation token: %v", err)
	}

	activated, err := env.users.FindOneByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("reload activated user: %v", err)
	}
	return activated
}
