// Package users resolves user identities through a read-through cache.
package users

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/akshat-collab/code-battle-arena/internal/cache"
	"github.com/akshat-collab/code-battle-arena/internal/database"
	"github.com/akshat-collab/code-battle-arena/internal/types"
)

const maxUsernameLength = 64

type Resolver struct {
	store database.ArenaRepository
	cache cache.UserCache
	log   *log.Logger
}

func NewResolver(store database.ArenaRepository, c cache.UserCache, logger *log.Logger) *Resolver {
	if c == nil {
		c = cache.NopUserCache{}
	}
	return &Resolver{store: store, cache: c, log: logger}
}

// GetUser returns the user, consulting the cache first. Cache errors are
// logged and the store is used instead.
func (r *Resolver) GetUser(ctx context.Context, id int) (types.User, error) {
	user, ok, err := r.cache.GetUser(ctx, id)
	if err != nil {
		r.log.Printf("user cache get %d: %v", id, err)
	}
	if ok {
		return user, nil
	}

	user, err = r.store.GetUser(ctx, id)
	if err != nil {
		return types.User{}, err
	}

	r.remember(ctx, user)
	return user, nil
}

// EnsureUser creates the user for an external identity or returns the
// existing one. A username is derived from the email address when none is
// given.
func (r *Resolver) EnsureUser(ctx context.Context, externalId, username, email string) (types.User, error) {
	externalId = strings.TrimSpace(externalId)
	if externalId == "" {
		return types.User{}, fmt.Errorf("%w: external id is required", types.ErrInvalidArgument)
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	if username == "" {
		username = "player"
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		username = string([]rune(username)[:maxUsernameLength])
	}

	user, err := r.store.UpsertUser(ctx, database.UpsertUserParams{
		ExternalId:   externalId,
		Username:     username,
		EmailAddress: strings.TrimSpace(email),
	})
	if err != nil {
		return types.User{}, err
	}

	r.remember(ctx, user)
	return user, nil
}

func (r *Resolver) remember(ctx context.Context, user types.User) {
	if err := r.cache.SetUser(ctx, user); err != nil {
		r.log.Printf("user cache set %d: %v", user.Id, err)
	}
}
