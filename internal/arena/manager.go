// Package arena runs competition rooms: the waiting, ongoing and completed
// lifecycle, roster changes, scoring and the events each change produces.
package arena

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/database"
	"github.com/akshat-collab/code-battle-arena/internal/hub"
	"github.com/akshat-collab/code-battle-arena/internal/judge"
	"github.com/akshat-collab/code-battle-arena/internal/leaderboard"
	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/akshat-collab/code-battle-arena/internal/users"
	"golang.org/x/crypto/bcrypt"
)

const (
	MaxJudgeTimeout     = 10 * time.Second
	DefaultJudgeTimeout = MaxJudgeTimeout
	publishTimeout      = 5 * time.Second
)

// Broadcaster delivers committed events to subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, roomId string, ev hub.Event) error
	PublishGlobal(ctx context.Context, ev hub.Event) error
}

type Options struct {
	JudgeTimeout time.Duration
	// Now overrides the clock, mostly for tests.
	Now        func() time.Time
	BcryptCost int
}

type Manager struct {
	store        database.ArenaRepository
	hub          Broadcaster
	judge        judge.Judge
	users        *users.Resolver
	log          *log.Logger
	now          func() time.Time
	judgeTimeout time.Duration
	bcryptCost   int
}

func NewManager(store database.ArenaRepository, b Broadcaster, j judge.Judge, resolver *users.Resolver, logger *log.Logger, opts Options) *Manager {
	m := &Manager{
		store:        store,
		hub:          b,
		judge:        j,
		users:        resolver,
		log:          logger,
		now:          opts.Now,
		judgeTimeout: opts.JudgeTimeout,
		bcryptCost:   opts.BcryptCost,
	}

	if m.now == nil {
		m.now = time.Now
	}
	if m.judgeTimeout <= 0 || m.judgeTimeout > MaxJudgeTimeout {
		m.judgeTimeout = DefaultJudgeTimeout
	}
	if m.bcryptCost == 0 {
		m.bcryptCost = bcrypt.DefaultCost
	}

	return m
}

// broadcast publishes an event for a mutation that has already committed.
// A publish failure cannot undo the commit, so it is only logged.
func (m *Manager) broadcast(ctx context.Context, roomId string, name string, seq int64, data any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	ev := hub.Event{Name: name, SeqId: seq, Timestamp: hub.Now(), Data: data}
	if err := m.hub.Publish(ctx, roomId, ev); err != nil {
		m.log.Printf("publish %s to room %q: %v", name, roomId, err)
	}
}

func (m *Manager) broadcastGlobal(ctx context.Context, roomId string, name string, seq int64, data any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	ev := hub.Event{Name: name, RoomId: roomId, SeqId: seq, Timestamp: hub.Now(), Data: data}
	if err := m.hub.PublishGlobal(ctx, ev); err != nil {
		m.log.Printf("publish global %s: %v", name, err)
	}
}

// loadRoom reads a room and applies the deadline guard: an ongoing room
// past its time limit is completed before anything else looks at it.
func (m *Manager) loadRoom(ctx context.Context, id string) (types.Room, error) {
	room, err := m.store.GetRoom(ctx, id)
	if err != nil {
		return types.Room{}, err
	}

	if room.Expired(m.now()) {
		return m.expire(ctx, room)
	}
	return room, nil
}

// expire completes an ongoing room whose deadline has passed. Losing the
// race to another completion is not an error; the current room is
// returned instead.
func (m *Manager) expire(ctx context.Context, room types.Room) (types.Room, error) {
	deadline, _ := room.Deadline()

	done, err := m.store.UpdateRoomStatus(ctx, room.Id, types.RoomStatusOngoing, types.RoomStatusCompleted, deadline)
	if errors.Is(err, types.ErrInvalidState) {
		return m.store.GetRoom(ctx, room.Id)
	}
	if err != nil {
		return types.Room{}, fmt.Errorf("complete expired room %q: %w", room.Id, err)
	}

	m.log.Printf("room %q reached its time limit", room.Id)
	m.broadcastFinal(ctx, done, finishReasonDeadline)
	return done, nil
}

func (m *Manager) broadcastFinal(ctx context.Context, room types.Room, reason string) {
	participants, err := m.store.ListParticipants(ctx, room.Id)
	if err != nil {
		m.log.Printf("final leaderboard for room %q: %v", room.Id, err)
		participants = nil
	}

	m.broadcast(ctx, room.Id, hub.EventLeaderboardUpdate, room.SeqId, LeaderboardUpdate{
		Status:      room.Status,
		Final:       true,
		Reason:      reason,
		EndedAt:     room.EndedAt,
		Leaderboard: leaderboard.Compute(participants),
	})
}

// roster returns the participants of a room for an event payload. Errors
// are logged and yield an empty roster since the mutation already
// committed.
func (m *Manager) roster(ctx context.Context, roomId string) []types.Participant {
	participants, err := m.store.ListParticipants(ctx, roomId)
	if err != nil {
		m.log.Printf("list participants for room %q: %v", roomId, err)
		return []types.Participant{}
	}
	return participants
}

func participantOf(participants []types.Participant, userId int) (types.Participant, bool) {
	for _, p := range participants {
		if p.UserId == userId {
			return p, true
		}
	}
	return types.Participant{}, false
}

func isMember(participants []types.Participant, userId int) bool {
	_, ok := participantOf(participants, userId)
	return ok
}

// RoomExists reports whether a room is present. It backs websocket
// subscription checks.
func (m *Manager) RoomExists(ctx context.Context, id string) (bool, error) {
	_, err := m.store.GetRoom(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureUser provisions the user for an external identity.
func (m *Manager) EnsureUser(ctx context.Context, externalId, username, email string) (types.User, error) {
	return m.users.EnsureUser(ctx, externalId, username, email)
}

func (m *Manager) GetUser(ctx context.Context, id int) (types.User, error) {
	return m.users.GetUser(ctx, id)
}
