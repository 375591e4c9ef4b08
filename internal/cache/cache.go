// Package cache holds best-effort read caches. Callers treat every error
// as a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultUserTTL = 30 * time.Minute
	userKeyPrefix  = "arena:user:"
)

type UserCache interface {
	GetUser(ctx context.Context, id int) (types.User, bool, error)
	SetUser(ctx context.Context, user types.User) error
}

type RedisUserCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisUserCache(rdb *redis.Client, ttl time.Duration) *RedisUserCache {
	if ttl <= 0 {
		ttl = DefaultUserTTL
	}
	return &RedisUserCache{rdb: rdb, ttl: ttl}
}

func userKey(id int) string {
	return userKeyPrefix + strconv.Itoa(id)
}

// cachedUser keeps fields hidden from the api out of the cache too.
type cachedUser struct {
	Id           int       `json:"id"`
	ExternalId   string    `json:"external_id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c *RedisUserCache) GetUser(ctx context.Context, id int) (types.User, bool, error) {
	raw, err := c.rdb.Get(ctx, userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.User{}, false, nil
	}
	if err != nil {
		return types.User{}, false, fmt.Errorf("get user %d: %w", id, err)
	}

	var cu cachedUser
	if err := json.Unmarshal(raw, &cu); err != nil {
		return types.User{}, false, fmt.Errorf("decode user %d: %w", id, err)
	}

	return types.User{
		Id:           cu.Id,
		ExternalId:   cu.ExternalId,
		Username:     cu.Username,
		EmailAddress: cu.EmailAddress,
		CreatedAt:    cu.CreatedAt,
	}, true, nil
}

func (c *RedisUserCache) SetUser(ctx context.Context, user types.User) error {
	raw, err := json.Marshal(cachedUser{
		Id:           user.Id,
		ExternalId:   user.ExternalId,
		Username:     user.Username,
		EmailAddress: user.EmailAddress,
		CreatedAt:    user.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode user %d: %w", user.Id, err)
	}

	if err := c.rdb.Set(ctx, userKey(user.Id), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set user %d: %w", user.Id, err)
	}
	return nil
}

// NopUserCache never stores anything.
type NopUserCache struct{}

func (NopUserCache) GetUser(context.Context, int) (types.User, bool, error) {
	return types.User{}, false, nil
}

func (NopUserCache) SetUser(context.Context, types.User) error { return nil }
