package arena

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/database"
	"github.com/akshat-collab/code-battle-arena/internal/hub"
	"github.com/akshat-collab/code-battle-arena/internal/leaderboard"
	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/gosimple/slug"
	"github.com/teris-io/shortid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultMaxParticipants  = 10
	MinParticipants         = 2
	MaxParticipants         = 100
	DefaultTimeLimitSeconds = 3600
	MaxCountdownSeconds     = 60
	defaultCountdownSeconds = 5
	maxNameLength           = 255
	maxJoinCodeLength       = 72
)

type CreateRoomParams struct {
	Name             string
	Description      string
	Difficulty       types.Difficulty
	MaxParticipants  int
	TimeLimitSeconds int
	IsPrivate        bool
	JoinCode         string
	CreatorId        int
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", types.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func (p *CreateRoomParams) normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.JoinCode = strings.TrimSpace(p.JoinCode)

	if p.Name == "" {
		return invalid("room name is required")
	}
	if len(p.Name) > maxNameLength {
		return invalid("room name exceeds %d characters", maxNameLength)
	}
	if p.CreatorId <= 0 {
		return invalid("creator is required")
	}

	if p.Difficulty == "" {
		p.Difficulty = types.DifficultyMedium
	}
	if !p.Difficulty.Valid() {
		return invalid("unknown difficulty %q", p.Difficulty)
	}

	if p.MaxParticipants == 0 {
		p.MaxParticipants = DefaultMaxParticipants
	}
	if p.MaxParticipants < MinParticipants || p.MaxParticipants > MaxParticipants {
		return invalid("max participants must be between %d and %d", MinParticipants, MaxParticipants)
	}

	if p.TimeLimitSeconds == 0 {
		p.TimeLimitSeconds = DefaultTimeLimitSeconds
	}
	if p.TimeLimitSeconds < 0 {
		return invalid("time limit must be positive")
	}

	if p.IsPrivate && p.JoinCode == "" {
		return invalid("private rooms require a join code")
	}
	if len(p.JoinCode) > maxJoinCodeLength {
		return invalid("join code exceeds %d characters", maxJoinCodeLength)
	}
	if !p.IsPrivate {
		p.JoinCode = ""
	}

	return nil
}

// CreateRoom validates params, stores a waiting room with its creator as
// the first participant and announces it to every session.
func (m *Manager) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	if err := params.normalize(); err != nil {
		return types.Room{}, err
	}

	id, err := shortid.Generate()
	if err != nil {
		return types.Room{}, fmt.Errorf("generate room id: %w", err)
	}

	roomSlug := slug.Make(params.Name)
	if roomSlug == "" {
		roomSlug = strings.ToLower(id)
	}

	var codeHash string
	if params.IsPrivate {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.JoinCode), m.bcryptCost)
		if err != nil {
			return types.Room{}, fmt.Errorf("hash join code: %w", err)
		}
		codeHash = string(hash)
	}

	room, err := m.store.CreateRoom(ctx, database.CreateRoomParams{
		Id:               id,
		Slug:             roomSlug,
		Name:             params.Name,
		Description:      params.Description,
		Difficulty:       params.Difficulty,
		MaxParticipants:  params.MaxParticipants,
		TimeLimitSeconds: params.TimeLimitSeconds,
		IsPrivate:        params.IsPrivate,
		JoinCodeHash:     codeHash,
		CreatorId:        params.CreatorId,
	})
	if err != nil {
		return types.Room{}, fmt.Errorf("create room: %w", err)
	}

	m.log.Printf("room %q created by user %d", room.Id, room.CreatorId)
	m.broadcastGlobal(ctx, room.Id, hub.EventRoomCreated, room.SeqId, room)
	return room, nil
}

// ListActiveRooms returns waiting and ongoing rooms, newest first. Rooms
// found past their deadline are completed on the way and left out.
func (m *Manager) ListActiveRooms(ctx context.Context) ([]types.Room, error) {
	rooms, err := m.store.ListActiveRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active rooms: %w", err)
	}

	now := m.now()
	active := make([]types.Room, 0, len(rooms))
	for _, room := range rooms {
		if room.Expired(now) {
			if _, err := m.expire(ctx, room); err != nil {
				m.log.Println(err)
			}
			continue
		}
		active = append(active, room)
	}

	return active, nil
}

func (m *Manager) GetRoomDetail(ctx context.Context, id string) (types.RoomDetail, error) {
	room, err := m.loadRoom(ctx, id)
	if err != nil {
		return types.RoomDetail{}, fmt.Errorf("get room: %w", err)
	}

	participants, err := m.store.ListParticipants(ctx, id)
	if err != nil {
		return types.RoomDetail{}, fmt.Errorf("get room: %w", err)
	}

	return types.RoomDetail{Room: room, Participants: participants}, nil
}

// JoinRoom adds userId to a waiting room. Joining a room the user is
// already in succeeds without changing the roster or broadcasting, and a
// member needs no join code to do so.
func (m *Manager) JoinRoom(ctx context.Context, roomId string, userId int, joinCode string) (types.Participant, error) {
	room, err := m.loadRoom(ctx, roomId)
	if err != nil {
		return types.Participant{}, fmt.Errorf("join room: %w", err)
	}

	if room.Status != types.RoomStatusWaiting {
		return types.Participant{}, fmt.Errorf("join room: room %q is %s: %w", roomId, room.Status, types.ErrInvalidState)
	}

	if room.IsPrivate {
		participants, err := m.store.ListParticipants(ctx, roomId)
		if err != nil {
			return types.Participant{}, fmt.Errorf("join room: %w", err)
		}
		if p, ok := participantOf(participants, userId); ok {
			return p, nil
		}

		if err := m.checkJoinCode(ctx, roomId, joinCode); err != nil {
			return types.Participant{}, fmt.Errorf("join room: %w", err)
		}
	}

	res, err := m.store.AddParticipant(ctx, roomId, userId)
	if err != nil {
		return types.Participant{}, fmt.Errorf("join room: %w", err)
	}

	if res.Created {
		m.broadcast(ctx, roomId, hub.EventUserJoined, res.SeqId, UserJoined{
			UserId:           userId,
			Username:         res.Participant.Username,
			Participant:      res.Participant,
			ParticipantCount: res.ParticipantCount,
		})
	}

	return res.Participant, nil
}

func (m *Manager) checkJoinCode(ctx context.Context, roomId, joinCode string) error {
	hash, err := m.store.GetJoinCodeHash(ctx, roomId)
	if err != nil {
		return err
	}

	joinCode = strings.TrimSpace(joinCode)
	if joinCode == "" || hash == "" {
		return fmt.Errorf("room %q requires a join code: %w", roomId, types.ErrForbidden)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(joinCode)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("wrong join code for room %q: %w", roomId, types.ErrForbidden)
		}
		return fmt.Errorf("compare join code: %w", err)
	}

	return nil
}

type LeaveResult struct {
	Left        bool `json:"left"`
	RoomDeleted bool `json:"room_deleted"`
	CreatorId   int  `json:"creator_id,omitempty"`
}

// LeaveRoom removes userId from the room. The room is deleted when its
// last participant leaves; otherwise the remaining members are told.
func (m *Manager) LeaveRoom(ctx context.Context, roomId string, userId int) (LeaveResult, error) {
	if _, err := m.loadRoom(ctx, roomId); err != nil {
		return LeaveResult{}, fmt.Errorf("leave room: %w", err)
	}

	res, err := m.store.RemoveParticipant(ctx, roomId, userId)
	if err != nil {
		return LeaveResult{}, fmt.Errorf("leave room: %w", err)
	}

	out := LeaveResult{Left: res.Removed, RoomDeleted: res.RoomDeleted}
	if !res.Removed {
		return out, nil
	}

	if res.RoomDeleted {
		m.log.Printf("room %q deleted after its last participant left", roomId)
		return out, nil
	}

	out.CreatorId = res.CreatorId
	m.broadcast(ctx, roomId, hub.EventUserLeft, res.SeqId, UserLeft{
		UserId:           userId,
		CreatorId:        res.CreatorId,
		ParticipantCount: res.ParticipantCount,
	})

	return out, nil
}

// StartCompetition moves a waiting room to ongoing. Only the creator may
// start it.
func (m *Manager) StartCompetition(ctx context.Context, roomId string, requesterId int) (types.Room, error) {
	room, err := m.loadRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, fmt.Errorf("start competition: %w", err)
	}

	if room.CreatorId != requesterId {
		return types.Room{}, fmt.Errorf("start competition: user %d is not the creator of room %q: %w", requesterId, roomId, types.ErrForbidden)
	}
	if room.Status != types.RoomStatusWaiting {
		return types.Room{}, fmt.Errorf("start competition: room %q is %s: %w", roomId, room.Status, types.ErrInvalidState)
	}

	started, err := m.store.UpdateRoomStatus(ctx, roomId, types.RoomStatusWaiting, types.RoomStatusOngoing, m.now())
	if err != nil {
		return types.Room{}, fmt.Errorf("start competition: %w", err)
	}

	startedAt := *started.StartedAt
	endsAt, _ := started.Deadline()
	m.log.Printf("room %q started, ends at %s", roomId, endsAt.Format(time.RFC3339))
	m.broadcast(ctx, roomId, hub.EventCompetitionStarted, started.SeqId, CompetitionStarted{
		StartedAt: startedAt,
		EndsAt:    endsAt,
		TimeLimit: started.TimeLimitSeconds,
	})

	return started, nil
}

func (m *Manager) ToggleReady(ctx context.Context, roomId string, userId int, ready bool) (types.Participant, error) {
	room, err := m.loadRoom(ctx, roomId)
	if err != nil {
		return types.Participant{}, fmt.Errorf("toggle ready: %w", err)
	}

	if room.Status != types.RoomStatusWaiting {
		return types.Participant{}, fmt.Errorf("toggle ready: room %q is %s: %w", roomId, room.Status, types.ErrInvalidState)
	}

	res, err := m.store.SetReady(ctx, roomId, userId, ready)
	if err != nil {
		return types.Participant{}, fmt.Errorf("toggle ready: %w", err)
	}

	m.broadcast(ctx, roomId, hub.EventUserReadyStatus, res.SeqId, UserReadyStatus{
		UserId:  userId,
		IsReady: res.Participant.IsReady,
	})

	return res.Participant, nil
}

// Countdown announces an upcoming start to the room. It changes no state.
func (m *Manager) Countdown(ctx context.Context, roomId string, requesterId int, seconds int) (CountdownUpdate, error) {
	if seconds == 0 {
		seconds = defaultCountdownSeconds
	}
	if seconds < 0 || seconds > MaxCountdownSeconds {
		return CountdownUpdate{}, invalid("countdown must be between 1 and %d seconds", MaxCountdownSeconds)
	}

	room, err := m.loadRoom(ctx, roomId)
	if err != nil {
		return CountdownUpdate{}, fmt.Errorf("countdown: %w", err)
	}

	if room.CreatorId != requesterId {
		return CountdownUpdate{}, fmt.Errorf("countdown: user %d is not the creator of room %q: %w", requesterId, roomId, types.ErrForbidden)
	}
	if room.Status != types.RoomStatusWaiting {
		return CountdownUpdate{}, fmt.Errorf("countdown: room %q is %s: %w", roomId, room.Status, types.ErrInvalidState)
	}

	update := CountdownUpdate{
		Seconds:   seconds,
		StartsAt:  m.now().UTC().Add(time.Duration(seconds) * time.Second),
		CreatorId: room.CreatorId,
	}
	m.broadcast(ctx, roomId, hub.EventCountdownUpdate, room.SeqId, update)

	return update, nil
}

// EndCompetition completes an ongoing room before its deadline. Only the
// creator may end it.
func (m *Manager) EndCompetition(ctx context.Context, roomId string, requesterId int) (types.Room, error) {
	room, err := m.loadRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, fmt.Errorf("end competition: %w", err)
	}

	if room.CreatorId != requesterId {
		return types.Room{}, fmt.Errorf("end competition: user %d is not the creator of room %q: %w", requesterId, roomId, types.ErrForbidden)
	}
	if room.Status != types.RoomStatusOngoing {
		return types.Room{}, fmt.Errorf("end competition: room %q is %s: %w", roomId, room.Status, types.ErrInvalidState)
	}

	ended, err := m.store.UpdateRoomStatus(ctx, roomId, types.RoomStatusOngoing, types.RoomStatusCompleted, m.now())
	if err != nil {
		return types.Room{}, fmt.Errorf("end competition: %w", err)
	}

	m.log.Printf("room %q ended by user %d", roomId, requesterId)
	m.broadcastFinal(ctx, ended, finishReasonEnded)
	return ended, nil
}

func (m *Manager) GetLeaderboard(ctx context.Context, roomId string) ([]types.LeaderboardEntry, error) {
	if _, err := m.loadRoom(ctx, roomId); err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	participants, err := m.store.ListParticipants(ctx, roomId)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	return leaderboard.Compute(participants), nil
}

// SweepExpired completes every ongoing room past its deadline and returns
// how many it completed.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	rooms, err := m.store.ListExpiredRooms(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("list expired rooms: %w", err)
	}

	completed := 0
	for _, room := range rooms {
		if err := ctx.Err(); err != nil {
			return completed, err
		}

		done, err := m.expire(ctx, room)
		if err != nil {
			m.log.Println(err)
			continue
		}
		if done.Status == types.RoomStatusCompleted {
			completed++
		}
	}

	return completed, nil
}
