package database

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxRetries      = 3
	defaultInitialInterval = 50 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
)

// RetryingRepository retries calls that fail with ErrStorageFailure using
// bounded exponential backoff. All other errors are returned immediately.
type RetryingRepository struct {
	next            ArenaRepository
	log             *log.Logger
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func NewRetryingRepository(next ArenaRepository, logger *log.Logger) *RetryingRepository {
	return &RetryingRepository{
		next:            next,
		log:             logger,
		MaxRetries:      defaultMaxRetries,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
	}
}

func (r *RetryingRepository) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.InitialInterval
	eb.MaxInterval = r.MaxInterval
	eb.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(eb, r.MaxRetries), ctx)
}

func retry[T any](ctx context.Context, r *RetryingRepository, op string, fn func() (T, error)) (T, error) {
	return backoff.RetryNotifyWithData(
		func() (T, error) {
			res, err := fn()
			if err != nil && !errors.Is(err, types.ErrStorageFailure) {
				return res, backoff.Permanent(err)
			}
			return res, err
		},
		r.policy(ctx),
		func(err error, wait time.Duration) {
			r.log.Printf("%s: retrying in %s: %v", op, wait, err)
		},
	)
}

func (r *RetryingRepository) Ping(ctx context.Context) error {
	_, err := retry(ctx, r, "ping", func() (struct{}, error) {
		return struct{}{}, r.next.Ping(ctx)
	})
	return err
}

func (r *RetryingRepository) UpsertUser(ctx context.Context, params UpsertUserParams) (types.User, error) {
	return retry(ctx, r, "upsert user", func() (types.User, error) {
		return r.next.UpsertUser(ctx, params)
	})
}

func (r *RetryingRepository) GetUser(ctx context.Context, id int) (types.User, error) {
	return retry(ctx, r, "get user", func() (types.User, error) {
		return r.next.GetUser(ctx, id)
	})
}

func (r *RetryingRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	return retry(ctx, r, "create room", func() (types.Room, error) {
		return r.next.CreateRoom(ctx, params)
	})
}

func (r *RetryingRepository) GetRoom(ctx context.Context, id string) (types.Room, error) {
	return retry(ctx, r, "get room", func() (types.Room, error) {
		return r.next.GetRoom(ctx, id)
	})
}

func (r *RetryingRepository) GetJoinCodeHash(ctx context.Context, id string) (string, error) {
	return retry(ctx, r, "get join code", func() (string, error) {
		return r.next.GetJoinCodeHash(ctx, id)
	})
}

func (r *RetryingRepository) ListActiveRooms(ctx context.Context) ([]types.Room, error) {
	return retry(ctx, r, "list active rooms", func() ([]types.Room, error) {
		return r.next.ListActiveRooms(ctx)
	})
}

func (r *RetryingRepository) ListExpiredRooms(ctx context.Context, now time.Time) ([]types.Room, error) {
	return retry(ctx, r, "list expired rooms", func() ([]types.Room, error) {
		return r.next.ListExpiredRooms(ctx, now)
	})
}

func (r *RetryingRepository) UpdateRoomStatus(ctx context.Context, id string, from, to types.RoomStatus, at time.Time) (types.Room, error) {
	return retry(ctx, r, "update room status", func() (types.Room, error) {
		return r.next.UpdateRoomStatus(ctx, id, from, to, at)
	})
}

func (r *RetryingRepository) ListParticipants(ctx context.Context, roomId string) ([]types.Participant, error) {
	return retry(ctx, r, "list participants", func() ([]types.Participant, error) {
		return r.next.ListParticipants(ctx, roomId)
	})
}

func (r *RetryingRepository) AddParticipant(ctx context.Context, roomId string, userId int) (ParticipantResult, error) {
	return retry(ctx, r, "add participant", func() (ParticipantResult, error) {
		return r.next.AddParticipant(ctx, roomId, userId)
	})
}

func (r *RetryingRepository) RemoveParticipant(ctx context.Context, roomId string, userId int) (LeaveResult, error) {
	return retry(ctx, r, "remove participant", func() (LeaveResult, error) {
		return r.next.RemoveParticipant(ctx, roomId, userId)
	})
}

func (r *RetryingRepository) SetReady(ctx context.Context, roomId string, userId int, ready bool) (ParticipantResult, error) {
	return retry(ctx, r, "set ready", func() (ParticipantResult, error) {
		return r.next.SetReady(ctx, roomId, userId, ready)
	})
}

func (r *RetryingRepository) CreateSubmission(ctx context.Context, params CreateSubmissionParams) (types.Submission, error) {
	return retry(ctx, r, "create submission", func() (types.Submission, error) {
		return r.next.CreateSubmission(ctx, params)
	})
}

func (r *RetryingRepository) CompleteSubmission(ctx context.Context, params CompleteSubmissionParams) (SubmissionResult, error) {
	return retry(ctx, r, "complete submission", func() (SubmissionResult, error) {
		return r.next.CompleteSubmission(ctx, params)
	})
}
