// Package session owns the process-wide authentication state: the access
// token and the authenticated user.
//
// A Store is constructed once at startup and passed by reference to the HTTP
// client and the services. Writers are the refresh coordinator and the explicit
// login/logout paths. Only the token is persisted.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/internal/logger"
)

// Store holds the current session.
type Store struct {
	mu    sync.RWMutex
	token string
	user  *domain.User

	kv domain.KeyValueStore

	listenersMu sync.Mutex
	listeners   []func(ctx context.Context)
}

// NewStore creates an empty session backed by kv.
func NewStore(kv domain.KeyValueStore) *Store {
	return &Store{kv: kv}
}

// Restore loads the persisted access token. The user profile is not
// persisted and has to be fetched again by the caller.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	token, err := s.kv.Get(ctx, domain.AccessTokenKey)
	if err != nil {
		return false, fmt.Errorf("load access token: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.user = nil
	s.mu.Unlock()

	return token != "", nil
}

// AccessToken returns the current token, or "" when logged out.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the authenticated user profile.
func (s *Store) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// Authenticated reports whether an access token is installed.
func (s *Store) Authenticated() bool {
	return s.AccessToken() != ""
}

// SetToken installs a new access token and persists it.
// The in-memory token is installed even if persisting fails.
func (s *Store) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if err := s.kv.Set(ctx, domain.AccessTokenKey, token); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	return nil
}

// SetUser installs the authenticated user profile.
func (s *Store) SetUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user
	s.user = &u
}

// Clear destroys the session and its persisted token.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if err := s.kv.Delete(ctx, domain.AccessTokenKey); err != nil {
		return fmt.Errorf("delete access token: %w", err)
	}
	return nil
}

// OnUnauthenticated registers fn to be called every time the session is lost
// irrecoverably (refresh failed, or a 401 arrived with no token).
func (s *Store) OnUnauthenticated(fn func(ctx context.Context)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Expire clears the session and raises the unauthenticated signal.
func (s *Store) Expire(ctx context.Context) {
	if err := s.Clear(ctx); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("Failed to clear persisted session")
	}

	s.listenersMu.Lock()
	listeners := make([]func(context.Context), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()

	logger.FromContext(ctx).Info().Int("listeners", len(listeners)).Msg("Session expired")
	for _, fn := range listeners {
		fn(ctx)
	}
}
