package users

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/akshat-collab/code-battle-arena/internal/cache"
	"github.com/akshat-collab/code-battle-arena/internal/database"
	"github.com/akshat-collab/code-battle-arena/internal/testutil"
	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type brokenCache struct{}

func (brokenCache) GetUser(context.Context, int) (types.User, bool, error) {
	return types.User{}, false, errors.New("cache down")
}

func (brokenCache) SetUser(context.Context, types.User) error { return errors.New("cache down") }

func TestResolverGetUser(t *testing.T) {
	ctx := context.Background()
	user := types.User{Id: 3, Username: "carol"}

	t.Run("cache hit skips the store", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()
		userCache := cache.NewRedisUserCache(rdb, 0)
		require.NoError(t, userCache.SetUser(ctx, user))

		store := &database.MockArenaRepository{}
		defer store.AssertExpectations(t)

		got, err := NewResolver(store, userCache, testutil.TestLogger(t)).GetUser(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "carol", got.Username)
	})

	t.Run("miss loads and fills the cache", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()
		userCache := cache.NewRedisUserCache(rdb, 0)

		store := &database.MockArenaRepository{}
		defer store.AssertExpectations(t)
		store.On("GetUser", mock.Anything, 3).Return(user, nil).Once()

		r := NewResolver(store, userCache, testutil.TestLogger(t))
		_, err := r.GetUser(ctx, 3)
		require.NoError(t, err)

		_, ok, err := userCache.GetUser(ctx, 3)
		require.NoError(t, err)
		assert.True(t, ok, "expected user to be cached after a miss")

		_, err = r.GetUser(ctx, 3)
		require.NoError(t, err)
	})

	t.Run("cache failure falls back to the store", func(t *testing.T) {
		store := &database.MockArenaRepository{}
		defer store.AssertExpectations(t)
		store.On("GetUser", mock.Anything, 3).Return(user, nil).Once()

		got, err := NewResolver(store, brokenCache{}, testutil.TestLogger(t)).GetUser(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, user, got)
	})

	t.Run("store error surfaces", func(t *testing.T) {
		store := &database.MockArenaRepository{}
		store.On("GetUser", mock.Anything, 9).Return(types.User{}, types.ErrNotFound)

		_, err := NewResolver(store, nil, testutil.TestLogger(t)).GetUser(ctx, 9)
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestResolverEnsureUser(t *testing.T) {
	ctx := context.Background()

	tcases := []struct {
		name         string
		externalId   string
		username     string
		email        string
		wantUsername string
		wantErr      error
	}{
		{name: "explicit username", externalId: "ext-1", username: " alice ", email: "a@example.com", wantUsername: "alice"},
		{name: "username from email", externalId: "ext-2", email: "bob@example.com", wantUsername: "bob"},
		{name: "fallback username", externalId: "ext-3", wantUsername: "player"},
		{name: "long username is truncated", externalId: "ext-4", username: strings.Repeat("x", 80), wantUsername: strings.Repeat("x", maxUsernameLength)},
		{name: "multi-byte username is truncated by characters", externalId: "ext-5", username: strings.Repeat("é", 70), wantUsername: strings.Repeat("é", maxUsernameLength)},
		{name: "missing external id", externalId: "  ", wantErr: types.ErrInvalidArgument},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			store := database.NewMemoryArenaRepository()
			r := NewResolver(store, brokenCache{}, testutil.TestLogger(t))

			user, err := r.EnsureUser(ctx, tc.externalId, tc.username, tc.email)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantUsername, user.Username)

			again, err := r.EnsureUser(ctx, tc.externalId, "someone-else", "")
			require.NoError(t, err)
			assert.Equal(t, user.Id, again.Id, "expected the same identity to map to one user")
		})
	}
}
