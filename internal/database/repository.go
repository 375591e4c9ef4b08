package database

import (
	"context"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/types"
)

// ArenaRepository is the durable store for users, rooms, rosters and
// submissions. Every mutation of a single room is linearizable with respect
// to other mutations of the same room, and every room mutation bumps the
// room's sequence id.
type ArenaRepository interface {
	Ping(ctx context.Context) error

	UpsertUser(ctx context.Context, params UpsertUserParams) (types.User, error)
	GetUser(ctx context.Context, id int) (types.User, error)

	CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error)
	GetRoom(ctx context.Context, id string) (types.Room, error)
	GetJoinCodeHash(ctx context.Context, id string) (string, error)
	ListActiveRooms(ctx context.Context) ([]types.Room, error)
	ListExpiredRooms(ctx context.Context, now time.Time) ([]types.Room, error)
	UpdateRoomStatus(ctx context.Context, id string, from, to types.RoomStatus, at time.Time) (types.Room, error)

	ListParticipants(ctx context.Context, roomId string) ([]types.Participant, error)
	AddParticipant(ctx context.Context, roomId string, userId int) (ParticipantResult, error)
	RemoveParticipant(ctx context.Context, roomId string, userId int) (LeaveResult, error)
	SetReady(ctx context.Context, roomId string, userId int, ready bool) (ParticipantResult, error)

	CreateSubmission(ctx context.Context, params CreateSubmissionParams) (types.Submission, error)
	CompleteSubmission(ctx context.Context, params CompleteSubmissionParams) (SubmissionResult, error)
}
