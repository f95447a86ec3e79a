package v1_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/codeyard/config"
	"github.com/duynhne/codeyard/internal/app"
	"github.com/duynhne/codeyard/internal/client"
	"github.com/duynhne/codeyard/internal/core/cache"
	"github.com/duynhne/codeyard/internal/core/domain"
	logicv1 "github.com/duynhne/codeyard/internal/logic/v1"
	"github.com/duynhne/codeyard/internal/sandbox"
	v1 "github.com/duynhne/codeyard/internal/web/v1"
)

type e2e struct {
	app    *app.App
	svc    *sandbox.Service
	toasts *bytes.Buffer
}

func newE2E(t *testing.T, username string) e2e {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.Sandbox.AuthRateLimitRPS = 0
	cfg.API.RequestsPerSecond = 0
	cfg.API.RefreshTimeout = "3s"
	cfg.Session.Store = config.StoreMemory

	svc := sandbox.New(sandbox.Options{JWTSecret: "e2e-secret", BcryptCost: bcrypt.MinCost})
	require.NoError(t, svc.Seed())
	srv := httptest.NewServer(v1.NewRouter(ctx, cfg, svc, nil))
	t.Cleanup(srv.Close)
	cfg.API.BaseURL = srv.URL + "/api"

	var toasts bytes.Buffer
	a, err := app.New(ctx, cfg,
		app.WithRegisterer(prometheus.NewRegistry()),
		app.WithNotifier(logicv1.NewWriterNotifier(&toasts)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	if username != "" {
		_, err := a.Auth.Login(ctx, domain.LoginRequest{Username: username, Password: sandbox.SeedPassword})
		require.NoError(t, err)
	}
	return e2e{app: a, svc: svc, toasts: &toasts}
}

func TestE2E_ConcurrentExpiredRequestsShareOneRefresh(t *testing.T) {
	const n = 10
	env := newE2E(t, "bob")
	ctx := context.Background()
	stale := env.app.Session.AccessToken()

	env.svc.ExpireAccessTokens()

	var wg sync.WaitGroup
	errs := make([]error, n)
	users := make([]domain.User, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = env.app.Client.Get(ctx, "/users/me/", nil, &users[i])
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, "bob", users[i].Username)
	}
	assert.Equal(t, int64(1), env.svc.RefreshCalls())
	assert.NotEqual(t, stale, env.app.Session.AccessToken())
}

func TestE2E_RevokedRefreshEndsSession(t *testing.T) {
	env := newE2E(t, "bob")
	ctx := context.Background()
	env.app.Cache.Set(logicv1.SolutionKey(5), domain.Solution{ID: 5})

	env.svc.ExpireAccessTokens()
	env.svc.RevokeRefreshTokens()

	var me domain.User
	err := env.app.Client.Get(ctx, "/users/me/", nil, &me)
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrUnauthenticated)
	assert.ErrorIs(t, err, client.ErrRefreshFailed)
	assert.False(t, env.app.Session.Authenticated())
	_, cached := env.app.Cache.Get(logicv1.SolutionKey(5))
	assert.False(t, cached, "losing the session drops cached data")
}

func TestE2E_LikeConfirmed(t *testing.T) {
	env := newE2E(t, "bob")
	ctx := context.Background()

	sol, err := env.app.Catalog.Solution(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, sol.PositiveReviewsCount)
	assert.Equal(t, 1, sol.NegativeReviewsCount)

	review, err := env.app.Mutator.Review(ctx, 3, 5, domain.ReviewPositive)
	require.NoError(t, err)
	assert.NotZero(t, review.ID)

	sol, err = env.app.Catalog.Solution(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, sol.PositiveReviewsCount)
	assert.Equal(t, 1, sol.NegativeReviewsCount)
	require.NotNil(t, sol.UserReview)
	assert.Equal(t, review.ID, sol.UserReview.ID)
	assert.Equal(t, "[ok] Your review has been saved.\n", env.toasts.String())
}

func TestE2E_LikeRejectedRollsBack(t *testing.T) {
	env := newE2E(t, "bob")
	ctx := context.Background()

	_, err := env.app.Catalog.Solution(ctx, 5)
	require.NoError(t, err)

	// the solution disappears server side after it was cached
	ann := &sandbox.Viewer{ID: 1, Username: "ann"}
	require.NoError(t, env.svc.DeleteSolution(ctx, ann, 5))

	_, err = env.app.Mutator.Review(ctx, 3, 5, domain.ReviewPositive)
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrValidation)

	sol, ok := cache.GetAs[domain.Solution](env.app.Cache, logicv1.SolutionKey(5))
	require.True(t, ok)
	assert.Equal(t, 2, sol.PositiveReviewsCount)
	assert.Equal(t, 1, sol.NegativeReviewsCount)
	assert.Nil(t, sol.UserReview)
	assert.Contains(t, env.toasts.String(), "[error] solution: Invalid pk \"5\" - object does not exist.")
}

func TestE2E_ReviewOwnSolutionRejectedByServer(t *testing.T) {
	env := newE2E(t, "ann")

	_, err := env.app.Mutator.Review(context.Background(), 3, 5, domain.ReviewPositive)
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrValidation)
	assert.Equal(t, "[error] You cannot review your own solution.\n", env.toasts.String())
}

func TestE2E_TaskFiltersHitServer(t *testing.T) {
	env := newE2E(t, "")
	f := logicv1.NewCatalogFilters()
	f.SetCategory(3)
	f.SetDifficulty(2)

	page, err := env.app.Catalog.Tasks(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	for _, task := range page.Results {
		assert.Equal(t, int64(3), task.Category)
		assert.Equal(t, int64(2), task.Difficulty)
	}
}

func TestE2E_LogoutRevokesRefresh(t *testing.T) {
	env := newE2E(t, "bob")
	ctx := context.Background()

	require.NoError(t, env.app.Auth.Logout(ctx))
	assert.False(t, env.app.Session.Authenticated())

	err := env.app.Client.Refresh(ctx)
	assert.ErrorIs(t, err, client.ErrUnauthenticated)
	assert.ErrorIs(t, err, client.ErrRefreshFailed)
}
