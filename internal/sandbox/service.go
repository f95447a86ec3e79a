// Package sandbox is an in-memory implementation of the Codeyard REST
// contract. It backs integration tests and local demos of the client; it is
// not a production backend.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/middleware"
)

// Options configures a Service.
type Options struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type userRow struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash []byte
}

type refreshSession struct {
	UserID    int64
	ExpiresAt time.Time
}

type taskRow struct {
	domain.Task
	OwnerID int64
}

type solutionRow struct {
	domain.Solution
	OwnerID int64
}

type reviewRow struct {
	domain.Review
	UserID int64
}

// Viewer is the authenticated caller of a request; nil means anonymous.
type Viewer struct {
	ID       int64
	Username string
}

// Tokens is what the credential-issuing endpoints hand out: the access token
// in the body, the refresh token in a cookie.
type Tokens struct {
	Access  string
	Refresh string
}

// Service holds every sandbox table behind one lock.
type Service struct {
	opts Options
	now  func() time.Time

	mu         sync.RWMutex
	generation int64
	lastID     map[string]int64

	users     map[int64]*userRow
	usernames map[string]int64
	refresh   map[string]refreshSession

	categories   []domain.Category
	difficulties []domain.Difficulty
	languages    []domain.ProgrammingLanguage
	tasks        map[int64]*taskRow
	solutions    map[int64]*solutionRow
	reviews      map[int64]*reviewRow

	refreshCalls atomic.Int64
}

// New creates an empty sandbox.
func New(opts Options) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 5 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Service{
		opts:      opts,
		now:       time.Now,
		lastID:    make(map[string]int64),
		users:     make(map[int64]*userRow),
		usernames: make(map[string]int64),
		refresh:   make(map[string]refreshSession),
		tasks:     make(map[int64]*taskRow),
		solutions: make(map[int64]*solutionRow),
		reviews:   make(map[int64]*reviewRow),
	}
}

func (s *Service) nextID(table string) int64 {
	s.lastID[table]++
	return s.lastID[table]
}

// RefreshTTL is the lifetime of refresh tokens (and their cookie).
func (s *Service) RefreshTTL() time.Duration {
	return s.opts.RefreshTTL
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (Tokens, error) {
	_, span := middleware.StartSpan(ctx, "sandbox.login", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("username", req.Username),
	))
	defer span.End()

	s.mu.RLock()
	id, ok := s.usernames[strings.ToLower(req.Username)]
	var u *userRow
	if ok {
		u = s.users[id]
	}
	s.mu.RUnlock()

	if u == nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return Tokens{}, fmt.Errorf("authenticate user %q: %w", req.Username, ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)); err != nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return Tokens{}, fmt.Errorf("authenticate user %q: %w", req.Username, ErrInvalidCredentials)
	}

	tokens, err := s.issue(u)
	if err != nil {
		span.RecordError(err)
		return Tokens{}, err
	}
	span.SetAttributes(attribute.Int64("user.id", u.ID), attribute.Bool("auth.success", true))
	span.AddEvent("user.authenticated")
	return tokens, nil
}

// Register creates a user and issues a token pair.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (Tokens, error) {
	_, span := middleware.StartSpan(ctx, "sandbox.register", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("username", req.Username),
	))
	defer span.End()

	v := validation{}
	if strings.TrimSpace(req.Username) == "" {
		v.add("username", "This field is required.")
	}
	if len(req.Password) < 5 {
		v.add("password", "Ensure this field has at least 5 characters.")
	} else if req.Password != req.PasswordConfirm {
		v.add("password", "Passwords do not match.")
	}
	if err := v.err(); err != nil {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return Tokens{}, err
	}

	u, err := s.createUser(req.Username, req.Email, req.Password)
	if err != nil {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return Tokens{}, err
	}

	tokens, err := s.issue(u)
	if err != nil {
		span.RecordError(err)
		return Tokens{}, err
	}
	span.SetAttributes(attribute.Int64("user.id", u.ID), attribute.Bool("registration.success", true))
	return tokens, nil
}

// createUser adds an account with a bcrypt-hashed password.
func (s *Service) createUser(username, email, password string) (*userRow, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	if _, exists := s.usernames[key]; exists {
		return nil, fieldError("username", "A user with that username already exists.")
	}
	u := &userRow{
		ID:           s.nextID("users"),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	s.users[u.ID] = u
	s.usernames[key] = u.ID
	return u, nil
}

func (s *Service) issue(u *userRow) (Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(u)
}

func (s *Service) issueLocked(u *userRow) (Tokens, error) {
	access, err := s.issueAccessToken(u, s.generation)
	if err != nil {
		return Tokens{}, err
	}
	refresh := uuid.NewString()
	s.refresh[refresh] = refreshSession{UserID: u.ID, ExpiresAt: s.now().Add(s.opts.RefreshTTL)}
	return Tokens{Access: access, Refresh: refresh}, nil
}

// Refresh rotates a refresh token: the old one is consumed and a new pair is
// issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	s.refreshCalls.Add(1)
	_, span := middleware.StartSpan(ctx, "sandbox.refresh", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.refresh[refreshToken]
	if !ok || refreshToken == "" {
		span.AddEvent("refresh.rejected")
		return Tokens{}, fmt.Errorf("refresh: %w", ErrInvalidToken)
	}
	delete(s.refresh, refreshToken)
	if s.now().After(sess.ExpiresAt) {
		span.AddEvent("refresh.expired")
		return Tokens{}, fmt.Errorf("refresh: %w", ErrInvalidToken)
	}
	u, ok := s.users[sess.UserID]
	if !ok {
		return Tokens{}, fmt.Errorf("refresh: %w", ErrInvalidToken)
	}
	return s.issueLocked(u)
}

// Logout revokes refreshToken. Unknown tokens are ignored.
func (s *Service) Logout(_ context.Context, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, refreshToken)
}

// Authenticate resolves an access token to its viewer.
func (s *Service) Authenticate(token string) (*Viewer, error) {
	claims, err := s.parseAccessToken(token)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if claims.Generation != s.generation {
		return nil, ErrInvalidToken
	}
	u, ok := s.users[claims.UserID]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &Viewer{ID: u.ID, Username: u.Username}, nil
}

// Me returns the profile of viewer.
func (s *Service) Me(viewer *Viewer) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[viewer.ID]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return domain.User{ID: u.ID, Username: u.Username, Email: u.Email}, nil
}

// ExpireAccessTokens invalidates every access token issued so far, as if
// they all expired at once. Refresh tokens stay valid.
func (s *Service) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// RevokeRefreshTokens drops every refresh token.
func (s *Service) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]refreshSession)
}

// RefreshCalls counts calls of Refresh, successful or not.
func (s *Service) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}
