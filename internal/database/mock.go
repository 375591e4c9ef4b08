package database

import (
	"context"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockArenaRepository struct {
	mock.Mock
}

func (m *MockArenaRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockArenaRepository) UpsertUser(ctx context.Context, params UpsertUserParams) (types.User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.User), args.Error(1)
}
func (m *MockArenaRepository) GetUser(ctx context.Context, id int) (types.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.User), args.Error(1)
}
func (m *MockArenaRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockArenaRepository) GetRoom(ctx context.Context, id string) (types.Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockArenaRepository) GetJoinCodeHash(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}
func (m *MockArenaRepository) ListActiveRooms(ctx context.Context) ([]types.Room, error) {
	args := m.Called(ctx)
	if rooms, ok := args.Get(0).([]types.Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockArenaRepository) ListExpiredRooms(ctx context.Context, now time.Time) ([]types.Room, error) {
	args := m.Called(ctx, now)
	if rooms, ok := args.Get(0).([]types.Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockArenaRepository) UpdateRoomStatus(ctx context.Context, id string, from, to types.RoomStatus, at time.Time) (types.Room, error) {
	args := m.Called(ctx, id, from, to, at)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockArenaRepository) ListParticipants(ctx context.Context, roomId string) ([]types.Participant, error) {
	args := m.Called(ctx, roomId)
	if participants, ok := args.Get(0).([]types.Participant); ok {
		return participants, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockArenaRepository) AddParticipant(ctx context.Context, roomId string, userId int) (ParticipantResult, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Get(0).(ParticipantResult), args.Error(1)
}
func (m *MockArenaRepository) RemoveParticipant(ctx context.Context, roomId string, userId int) (LeaveResult, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Get(0).(LeaveResult), args.Error(1)
}
func (m *MockArenaRepository) SetReady(ctx context.Context, roomId string, userId int, ready bool) (ParticipantResult, error) {
	args := m.Called(ctx, roomId, userId, ready)
	return args.Get(0).(ParticipantResult), args.Error(1)
}
func (m *MockArenaRepository) CreateSubmission(ctx context.Context, params CreateSubmissionParams) (types.Submission, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.Submission), args.Error(1)
}
func (m *MockArenaRepository) CompleteSubmission(ctx context.Context, params CompleteSubmissionParams) (SubmissionResult, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(SubmissionResult), args.Error(1)
}
