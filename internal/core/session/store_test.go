package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/internal/core/repository"
)

type failingKV struct {
	*repository.MemoryKeyValueStore
}

func (failingKV) Set(context.Context, string, string) error { return errors.New("disk full") }

func TestStore_SetTokenPersists(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKeyValueStore()
	s := NewStore(kv)

	require.NoError(t, s.SetToken(ctx, "access-1"))
	assert.Equal(t, "access-1", s.AccessToken())

	stored, err := kv.Get(ctx, domain.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored)
}

func TestStore_RestoreLoadsTokenOnly(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKeyValueStore()
	require.NoError(t, kv.Set(ctx, domain.AccessTokenKey, "persisted"))

	s := NewStore(kv)
	s.SetUser(domain.User{ID: 1, Username: "stale"})

	ok, err := s.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", s.AccessToken())

	_, hasUser := s.User()
	assert.False(t, hasUser, "profile is never persisted")
}

func TestStore_RestoreEmpty(t *testing.T) {
	s := NewStore(repository.NewMemoryKeyValueStore())

	ok, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.Authenticated())
}

func TestStore_ExpireClearsAndSignals(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKeyValueStore()
	s := NewStore(kv)
	require.NoError(t, s.SetToken(ctx, "token"))
	s.SetUser(domain.User{ID: 7, Username: "alice"})

	var signals int
	s.OnUnauthenticated(func(context.Context) { signals++ })

	s.Expire(ctx)

	assert.Equal(t, 1, signals)
	assert.Empty(t, s.AccessToken())
	_, hasUser := s.User()
	assert.False(t, hasUser)

	stored, err := kv.Get(ctx, domain.AccessTokenKey)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestStore_SetTokenInstallsEvenWhenPersistFails(t *testing.T) {
	s := NewStore(failingKV{repository.NewMemoryKeyValueStore()})

	err := s.SetToken(context.Background(), "token")
	require.Error(t, err)
	assert.Equal(t, "token", s.AccessToken())
}
