package v1

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/codeyard/internal/client"
	"github.com/duynhne/codeyard/internal/core/cache"
	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/internal/core/repository"
	"github.com/duynhne/codeyard/internal/core/session"
)

func newAuthFixture(t *testing.T) (*AuthService, *fakeAPI, *session.Store, *cache.Cache, *repository.MemoryKeyValueStore) {
	t.Helper()
	api := &fakeAPI{}
	kv := repository.NewMemoryKeyValueStore()
	store := session.NewStore(kv)
	c := cache.New(time.Minute)
	return NewAuthService(api, store, c), api, store, c, kv
}

func TestLogin_InstallsTokenAndProfile(t *testing.T) {
	svc, api, store, c, kv := newAuthFixture(t)
	c.Set(SolutionKey(1), domain.Solution{ID: 1})
	api.handle = func(_ context.Context, call apiCall) (any, error) {
		switch call.Path {
		case pathLogin:
			return domain.TokenResponse{Access: "a-1"}, nil
		case pathMe:
			return domain.User{ID: 7, Username: "ann", Email: "ann@example.com"}, nil
		}
		return nil, errors.New("unexpected call " + call.Path)
	}

	user, err := svc.Login(context.Background(), domain.LoginRequest{Username: "ann", Password: "pw"})

	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "a-1", store.AccessToken())
	got, ok := store.User()
	require.True(t, ok)
	assert.Equal(t, "ann", got.Username)

	persisted, err := kv.Get(context.Background(), domain.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "a-1", persisted)

	_, cached := c.Get(SolutionKey(1))
	assert.False(t, cached, "viewer-dependent cache is dropped on login")
}

func TestLogin_BadCredentials(t *testing.T) {
	svc, api, store, _, _ := newAuthFixture(t)
	api.handle = func(context.Context, apiCall) (any, error) {
		return nil, &client.APIError{Kind: client.KindUnauthenticated, Status: http.StatusUnauthorized, Detail: "No active account found with the given credentials"}
	}

	_, err := svc.Login(context.Background(), domain.LoginRequest{Username: "ann", Password: "nope"})

	assert.ErrorIs(t, err, client.ErrUnauthenticated)
	assert.False(t, store.Authenticated())
}

func TestRegister_PasswordMismatch(t *testing.T) {
	svc, api, _, _, _ := newAuthFixture(t)

	_, err := svc.Register(context.Background(), domain.RegisterRequest{Username: "ann", Password: "a", PasswordConfirm: "b"})

	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Empty(t, api.Calls())
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	svc, api, store, c, kv := newAuthFixture(t)
	require.NoError(t, store.SetToken(context.Background(), "a-1"))
	store.SetUser(domain.User{ID: 7, Username: "ann"})
	c.Set(TaskKey(1), domain.Task{ID: 1})
	api.handle = func(context.Context, apiCall) (any, error) {
		return nil, &client.APIError{Kind: client.KindServer, Status: http.StatusBadGateway}
	}

	err := svc.Logout(context.Background())

	assert.ErrorIs(t, err, client.ErrServer)
	assert.False(t, store.Authenticated())
	_, ok := store.User()
	assert.False(t, ok)
	_, cached := c.Get(TaskKey(1))
	assert.False(t, cached)
	persisted, _ := kv.Get(context.Background(), domain.AccessTokenKey)
	assert.Empty(t, persisted)
}

func TestLogout_ExpiredSessionIsNotAnError(t *testing.T) {
	svc, api, store, _, _ := newAuthFixture(t)
	require.NoError(t, store.SetToken(context.Background(), "a-1"))
	api.handle = func(context.Context, apiCall) (any, error) {
		return nil, &client.APIError{Kind: client.KindUnauthenticated, Status: http.StatusUnauthorized}
	}

	assert.NoError(t, svc.Logout(context.Background()))
	assert.False(t, store.Authenticated())
}

func TestRestore(t *testing.T) {
	t.Run("no persisted token", func(t *testing.T) {
		svc, api, _, _, _ := newAuthFixture(t)

		user, ok, err := svc.Restore(context.Background())

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, user)
		assert.Empty(t, api.Calls())
	})

	t.Run("valid token", func(t *testing.T) {
		svc, api, store, _, kv := newAuthFixture(t)
		require.NoError(t, kv.Set(context.Background(), domain.AccessTokenKey, "persisted"))
		api.handle = func(context.Context, apiCall) (any, error) {
			return domain.User{ID: 7, Username: "ann"}, nil
		}

		user, ok, err := svc.Restore(context.Background())

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "ann", user.Username)
		assert.Equal(t, "persisted", store.AccessToken())
	})

	t.Run("expired beyond refresh", func(t *testing.T) {
		svc, api, _, _, kv := newAuthFixture(t)
		require.NoError(t, kv.Set(context.Background(), domain.AccessTokenKey, "persisted"))
		api.handle = func(context.Context, apiCall) (any, error) {
			return nil, &client.APIError{Kind: client.KindUnauthenticated, Status: http.StatusUnauthorized}
		}

		_, ok, err := svc.Restore(context.Background())

		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRefresh_GoesThroughCoordinatedRefresh(t *testing.T) {
	svc, api, store, _, _ := newAuthFixture(t)
	var calls int
	api.refresh = func(ctx context.Context) error {
		calls++
		return store.SetToken(ctx, "a-2")
	}

	require.NoError(t, svc.Refresh(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "a-2", store.AccessToken())
	assert.Empty(t, api.Calls())
}

func TestRefresh_WrapsFailure(t *testing.T) {
	svc, api, _, _, _ := newAuthFixture(t)
	api.refresh = func(context.Context) error {
		return &client.APIError{Kind: client.KindUnauthenticated, Status: http.StatusUnauthorized}
	}

	err := svc.Refresh(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrUnauthenticated)
}
