package database

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/types"
)

type memRoom struct {
	mu           sync.Mutex
	room         types.Room
	joinCodeHash string
	participants map[int]*types.Participant
	deleted      bool
}

// MemoryArenaRepository is an in-process ArenaRepository. Mutations of one
// room are serialized by that room's mutex; distinct rooms never contend.
type MemoryArenaRepository struct {
	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time

	mu          sync.RWMutex
	rooms       map[string]*memRoom
	users       map[int]types.User
	externalIds map[string]int
	nextUserId  int
	submissions map[string]types.Submission
}

func NewMemoryArenaRepository() *MemoryArenaRepository {
	return &MemoryArenaRepository{
		rooms:       make(map[string]*memRoom),
		users:       make(map[int]types.User),
		externalIds: make(map[string]int),
		submissions: make(map[string]types.Submission),
	}
}

func (m *MemoryArenaRepository) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *MemoryArenaRepository) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryArenaRepository) UpsertUser(_ context.Context, params UpsertUserParams) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.externalIds[params.ExternalId]; ok {
		u := m.users[id]
		if u.EmailAddress == "" {
			u.EmailAddress = params.EmailAddress
			m.users[id] = u
		}
		return u, nil
	}

	m.nextUserId++
	u := types.User{
		Id:           m.nextUserId,
		ExternalId:   params.ExternalId,
		Username:     params.Username,
		EmailAddress: params.EmailAddress,
		CreatedAt:    m.now(),
	}
	m.users[u.Id] = u
	m.externalIds[u.ExternalId] = u.Id

	return u, nil
}

func (m *MemoryArenaRepository) GetUser(_ context.Context, id int) (types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return types.User{}, fmt.Errorf("get user %d: %w", id, types.ErrNotFound)
	}

	return u, nil
}

func (m *MemoryArenaRepository) username(userId int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userId]
	return u.Username, ok
}

func (m *MemoryArenaRepository) CreateRoom(_ context.Context, params CreateRoomParams) (types.Room, error) {
	username, ok := m.username(params.CreatorId)
	if !ok {
		return types.Room{}, fmt.Errorf("create room: creator %d: %w", params.CreatorId, types.ErrNotFound)
	}

	now := m.now()
	r := &memRoom{
		room: types.Room{
			Id:               params.Id,
			Slug:             params.Slug,
			Name:             params.Name,
			Description:      params.Description,
			Difficulty:       params.Difficulty,
			MaxParticipants:  params.MaxParticipants,
			TimeLimitSeconds: params.TimeLimitSeconds,
			IsPrivate:        params.IsPrivate,
			Status:           types.RoomStatusWaiting,
			CreatorId:        params.CreatorId,
			SeqId:            1,
			CreatedAt:        now,
		},
		participants: map[int]*types.Participant{
			params.CreatorId: {
				RoomId:   params.Id,
				UserId:   params.CreatorId,
				Username: username,
				JoinedAt: now,
			},
		},
	}
	if params.IsPrivate {
		r.joinCodeHash = params.JoinCodeHash
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[params.Id]; exists {
		return types.Room{}, fmt.Errorf("create room: duplicate id %q: %w", params.Id, types.ErrInvalidArgument)
	}
	m.rooms[params.Id] = r

	return r.snapshot(), nil
}

// lockRoom returns the room with its mutex held. The caller must unlock it.
func (m *MemoryArenaRepository) lockRoom(id string) (*memRoom, error) {
	m.mu.RLock()
	r, ok := m.rooms[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("room %q: %w", id, types.ErrNotFound)
	}

	r.mu.Lock()
	if r.deleted {
		r.mu.Unlock()
		return nil, fmt.Errorf("room %q: %w", id, types.ErrNotFound)
	}

	return r, nil
}

func (r *memRoom) snapshot() types.Room {
	room := r.room
	room.ParticipantCount = len(r.participants)
	return room
}

func (r *memRoom) sortedParticipants() []types.Participant {
	participants := make([]types.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		participants = append(participants, *p)
	}
	slices.SortFunc(participants, func(a, b types.Participant) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return a.UserId - b.UserId
	})

	return participants
}

func (m *MemoryArenaRepository) GetRoom(_ context.Context, id string) (types.Room, error) {
	r, err := m.lockRoom(id)
	if err != nil {
		return types.Room{}, fmt.Errorf("get room: %w", err)
	}
	defer r.mu.Unlock()

	return r.snapshot(), nil
}

func (m *MemoryArenaRepository) GetJoinCodeHash(_ context.Context, id string) (string, error) {
	r, err := m.lockRoom(id)
	if err != nil {
		return "", fmt.Errorf("get join code: %w", err)
	}
	defer r.mu.Unlock()

	return r.joinCodeHash, nil
}

func (m *MemoryArenaRepository) allRooms() []*memRoom {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := make([]*memRoom, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

func (m *MemoryArenaRepository) listRooms(match func(types.Room) bool) []types.Room {
	var rooms []types.Room
	for _, r := range m.allRooms() {
		r.mu.Lock()
		if !r.deleted && match(r.room) {
			rooms = append(rooms, r.snapshot())
		}
		r.mu.Unlock()
	}

	slices.SortFunc(rooms, func(a, b types.Room) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return rooms
}

func (m *MemoryArenaRepository) ListActiveRooms(_ context.Context) ([]types.Room, error) {
	return m.listRooms(func(room types.Room) bool {
		return room.Status.Active()
	}), nil
}

func (m *MemoryArenaRepository) ListExpiredRooms(_ context.Context, now time.Time) ([]types.Room, error) {
	return m.listRooms(func(room types.Room) bool {
		return room.Expired(now)
	}), nil
}

func (m *MemoryArenaRepository) UpdateRoomStatus(_ context.Context, id string, from, to types.RoomStatus, at time.Time) (types.Room, error) {
	r, err := m.lockRoom(id)
	if err != nil {
		return types.Room{}, fmt.Errorf("update room status: %w", err)
	}
	defer r.mu.Unlock()

	if r.room.Status != from {
		return types.Room{}, fmt.Errorf("update room status: room %q is %s, not %s: %w", id, r.room.Status, from, types.ErrInvalidState)
	}

	at = at.UTC()
	r.room.Status = to
	switch to {
	case types.RoomStatusOngoing:
		r.room.StartedAt = &at
	case types.RoomStatusCompleted:
		r.room.EndedAt = &at
	}
	r.room.SeqId++

	return r.snapshot(), nil
}

func (m *MemoryArenaRepository) ListParticipants(_ context.Context, roomId string) ([]types.Participant, error) {
	r, err := m.lockRoom(roomId)
	if err != nil {
		// an absent room has an empty roster
		return []types.Participant{}, nil
	}
	defer r.mu.Unlock()

	return r.sortedParticipants(), nil
}

func (m *MemoryArenaRepository) AddParticipant(_ context.Context, roomId string, userId int) (ParticipantResult, error) {
	username, ok := m.username(userId)
	if !ok {
		return ParticipantResult{}, fmt.Errorf("add participant: user %d: %w", userId, types.ErrNotFound)
	}

	r, err := m.lockRoom(roomId)
	if err != nil {
		return ParticipantResult{}, fmt.Errorf("add participant: %w", err)
	}
	defer r.mu.Unlock()

	if r.room.Status != types.RoomStatusWaiting {
		return ParticipantResult{}, fmt.Errorf("add participant: room %q is %s: %w", roomId, r.room.Status, types.ErrInvalidState)
	}

	if p, ok := r.participants[userId]; ok {
		return ParticipantResult{Participant: *p, Created: false, SeqId: r.room.SeqId}, nil
	}

	if len(r.participants) >= r.room.MaxParticipants {
		return ParticipantResult{}, fmt.Errorf("add participant: room %q has %d of %d participants: %w",
			roomId, len(r.participants), r.room.MaxParticipants, types.ErrRoomFull)
	}

	p := &types.Participant{
		RoomId:   roomId,
		UserId:   userId,
		Username: username,
		JoinedAt: m.now(),
	}
	r.participants[userId] = p
	r.room.SeqId++

	return ParticipantResult{Participant: *p, Created: true, SeqId: r.room.SeqId, ParticipantCount: len(r.participants)}, nil
}

func (m *MemoryArenaRepository) RemoveParticipant(_ context.Context, roomId string, userId int) (LeaveResult, error) {
	r, err := m.lockRoom(roomId)
	if err != nil {
		return LeaveResult{}, fmt.Errorf("remove participant: %w", err)
	}
	defer r.mu.Unlock()

	if _, ok := r.participants[userId]; !ok {
		return LeaveResult{CreatorId: r.room.CreatorId, SeqId: r.room.SeqId}, nil
	}

	delete(r.participants, userId)
	r.room.SeqId++

	if len(r.participants) == 0 {
		r.deleted = true
		m.mu.Lock()
		delete(m.rooms, roomId)
		m.mu.Unlock()

		return LeaveResult{Removed: true, RoomDeleted: true, CreatorId: r.room.CreatorId, SeqId: r.room.SeqId}, nil
	}

	if userId == r.room.CreatorId && r.room.Status == types.RoomStatusWaiting {
		r.room.CreatorId = r.sortedParticipants()[0].UserId
	}

	return LeaveResult{Removed: true, CreatorId: r.room.CreatorId, SeqId: r.room.SeqId, ParticipantCount: len(r.participants)}, nil
}

func (m *MemoryArenaRepository) SetReady(_ context.Context, roomId string, userId int, ready bool) (ParticipantResult, error) {
	r, err := m.lockRoom(roomId)
	if err != nil {
		return ParticipantResult{}, fmt.Errorf("set ready: %w", err)
	}
	defer r.mu.Unlock()

	if r.room.Status != types.RoomStatusWaiting {
		return ParticipantResult{}, fmt.Errorf("set ready: room %q is %s: %w", roomId, r.room.Status, types.ErrInvalidState)
	}

	p, ok := r.participants[userId]
	if !ok {
		return ParticipantResult{}, fmt.Errorf("set ready: user %d is not in room %q: %w", userId, roomId, types.ErrNotFound)
	}

	p.IsReady = ready
	r.room.SeqId++

	return ParticipantResult{Participant: *p, SeqId: r.room.SeqId}, nil
}

func (m *MemoryArenaRepository) CreateSubmission(_ context.Context, params CreateSubmissionParams) (types.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[params.UserId]; !ok {
		return types.Submission{}, fmt.Errorf("create submission: user %d: %w", params.UserId, types.ErrNotFound)
	}

	sub := types.Submission{
		Id:          params.Id,
		RoomId:      params.RoomId,
		ChallengeId: params.ChallengeId,
		UserId:      params.UserId,
		Code:        params.Code,
		Language:    params.Language,
		Status:      types.SubmissionPending,
		CreatedAt:   m.now(),
	}
	m.submissions[sub.Id] = sub

	return sub, nil
}

func (m *MemoryArenaRepository) CompleteSubmission(_ context.Context, params CompleteSubmissionParams) (SubmissionResult, error) {
	var room *memRoom
	if params.RoomId != "" {
		if r, err := m.lockRoom(params.RoomId); err == nil {
			room = r
			defer r.mu.Unlock()
		}
	}

	m.mu.Lock()
	sub, ok := m.submissions[params.Id]
	if !ok || sub.Status != types.SubmissionPending {
		m.mu.Unlock()
		return SubmissionResult{}, fmt.Errorf("complete submission: pending submission %q: %w", params.Id, types.ErrNotFound)
	}

	score := 0
	if params.Status == types.SubmissionAccepted {
		score = params.Score
	}
	judgedAt := m.now()
	sub.Status = params.Status
	sub.Score = &score
	sub.Output = params.Output
	sub.JudgedAt = &judgedAt
	m.submissions[sub.Id] = sub
	m.mu.Unlock()

	res := SubmissionResult{Submission: sub}
	if room == nil {
		return res, nil
	}

	if params.Status == types.SubmissionAccepted && room.room.Status == types.RoomStatusOngoing {
		if p, ok := room.participants[params.UserId]; ok {
			p.Score += params.Score
			p.ProblemsSolved++
			updated := *p
			res.Participant = &updated
		}
	}
	room.room.SeqId++
	res.SeqId = room.room.SeqId

	return res, nil
}
