package v1

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/codeyard/internal/client"
	"github.com/duynhne/codeyard/internal/core/cache"
	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/internal/core/session"
	"github.com/duynhne/codeyard/internal/logger"
	"github.com/duynhne/codeyard/middleware"
)

// AuthService owns the explicit session transitions: login, registration,
// logout and restoring a persisted session. Token refresh after a 401 is
// handled transparently by the client.
type AuthService struct {
	api     AuthAPI
	session *session.Store
	cache   *cache.Cache
}

// NewAuthService creates a new AuthService.
func NewAuthService(api AuthAPI, store *session.Store, c *cache.Cache) *AuthService {
	return &AuthService{
		api:     api,
		session: store,
		cache:   c,
	}
}

// Login exchanges credentials for an access token and loads the profile.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.login", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("username", req.Username),
	))
	defer span.End()

	var tok domain.TokenResponse
	if err := s.api.Post(ctx, pathLogin, req, &tok); err != nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("login %q: %w", req.Username, err)
	}

	user, err := s.install(ctx, tok.Access)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("login %q: %w", req.Username, err)
	}

	span.SetAttributes(
		attribute.Int64("user.id", user.ID),
		attribute.Bool("auth.success", true),
	)
	span.AddEvent("user.authenticated")
	return user, nil
}

// Register creates an account and logs it in.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.register", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("username", req.Username),
	))
	defer span.End()

	if req.Password != req.PasswordConfirm {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register %q: %w", req.Username, ErrPasswordMismatch)
	}

	var tok domain.TokenResponse
	if err := s.api.Post(ctx, pathRegister, req, &tok); err != nil {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register %q: %w", req.Username, err)
	}

	user, err := s.install(ctx, tok.Access)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("register %q: %w", req.Username, err)
	}

	span.SetAttributes(
		attribute.Int64("user.id", user.ID),
		attribute.Bool("registration.success", true),
	)
	span.AddEvent("user.registered")
	return user, nil
}

// install makes token the session token. Cached views depend on the viewer
// (user_review, private items), so the cache is dropped.
func (s *AuthService) install(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, errors.New("empty access token in response")
	}
	if err := s.session.SetToken(ctx, token); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("Access token not persisted")
	}
	s.cache.Clear()
	return s.Me(ctx)
}

// Logout ends the session on the server and locally. The local session and
// the cache are cleared even when the server call fails.
func (s *AuthService) Logout(ctx context.Context) error {
	ctx, span := middleware.StartSpan(ctx, "auth.logout", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	var serverErr error
	if s.session.Authenticated() {
		serverErr = s.api.Post(ctx, pathLogout, nil, nil)
	}

	s.cache.Clear()
	if err := s.session.Clear(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("logout: %w", err)
	}
	if serverErr != nil && !errors.Is(serverErr, client.ErrUnauthenticated) {
		span.RecordError(serverErr)
		return fmt.Errorf("logout: %w", serverErr)
	}
	span.AddEvent("session.destroyed")
	return nil
}

// Me loads the profile of the session user and installs it.
func (s *AuthService) Me(ctx context.Context) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.me", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if !s.session.Authenticated() {
		return nil, fmt.Errorf("load profile: %w", ErrNotAuthenticated)
	}

	var user domain.User
	if err := s.api.Get(ctx, pathMe, nil, &user); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load profile: %w", err)
	}
	s.session.SetUser(user)
	return &user, nil
}

// Restore reloads the persisted token and the matching profile. It reports
// false when there is no usable session; an expired token that cannot be
// refreshed is not an error.
func (s *AuthService) Restore(ctx context.Context) (*domain.User, bool, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.restore", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	ok, err := s.session.Restore(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	user, err := s.Me(ctx)
	switch {
	case errors.Is(err, client.ErrUnauthenticated):
		span.AddEvent("session.expired")
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("restore session: %w", err)
	}
	span.SetAttributes(attribute.Int64("user.id", user.ID))
	return user, true, nil
}

// Refresh exchanges the refresh cookie for a new access token explicitly.
// It shares the coordination window of intercepted 401s.
func (s *AuthService) Refresh(ctx context.Context) error {
	ctx, span := middleware.StartSpan(ctx, "auth.refresh", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if err := s.api.Refresh(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("refresh token: %w", err)
	}
	return nil
}
