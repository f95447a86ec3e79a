package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/duynhne/codeyard/internal/core/domain"
)

// KeyValueStoreSuite runs the same contract against every local store.
type KeyValueStoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) domain.KeyValueStore
	store    domain.KeyValueStore
}

func (s *KeyValueStoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
}

func (s *KeyValueStoreSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *KeyValueStoreSuite) TestGetMissingKey() {
	value, err := s.store.Get(context.Background(), domain.AccessTokenKey)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), value)
}

func (s *KeyValueStoreSuite) TestSetOverwrites() {
	ctx := context.Background()
	require.NoError(s.T(), s.store.Set(ctx, domain.AccessTokenKey, "first"))
	require.NoError(s.T(), s.store.Set(ctx, domain.AccessTokenKey, "second"))

	value, err := s.store.Get(ctx, domain.AccessTokenKey)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "second", value)
}

func (s *KeyValueStoreSuite) TestDelete() {
	ctx := context.Background()
	require.NoError(s.T(), s.store.Set(ctx, domain.AccessTokenKey, "token"))
	require.NoError(s.T(), s.store.Delete(ctx, domain.AccessTokenKey))
	require.NoError(s.T(), s.store.Delete(ctx, domain.AccessTokenKey), "deleting twice is fine")

	value, err := s.store.Get(ctx, domain.AccessTokenKey)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), value)
}

func TestSQLiteKeyValueStore(t *testing.T) {
	suite.Run(t, &KeyValueStoreSuite{newStore: func(t *testing.T) domain.KeyValueStore {
		store, err := NewSQLiteKeyValueStore(":memory:")
		require.NoError(t, err)
		return store
	}})
}

func TestMemoryKeyValueStore(t *testing.T) {
	suite.Run(t, &KeyValueStoreSuite{newStore: func(t *testing.T) domain.KeyValueStore {
		return NewMemoryKeyValueStore()
	}})
}

func TestSQLiteKeyValueStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.db")
	ctx := context.Background()

	store, err := NewSQLiteKeyValueStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, domain.AccessTokenKey, "persisted"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteKeyValueStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, domain.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "persisted", value)
}
