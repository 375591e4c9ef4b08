package database

import (
	"database/sql"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/types"
)

type UpsertUserParams struct {
	ExternalId   string
	Username     string
	EmailAddress string
}

type CreateRoomParams struct {
	Id               string
	Slug             string
	Name             string
	Description      string
	Difficulty       types.Difficulty
	MaxParticipants  int
	TimeLimitSeconds int
	IsPrivate        bool
	JoinCodeHash     string
	CreatorId        int
}

type CreateSubmissionParams struct {
	Id          string
	RoomId      string
	ChallengeId string
	UserId      int
	Code        string
	Language    string
}

type CompleteSubmissionParams struct {
	Id     string
	RoomId string
	UserId int
	Status types.SubmissionStatus
	Score  int
	Output string
}

// ParticipantResult is returned by roster mutations. Created is false when
// an add found the user already present. ParticipantCount is the roster
// size after a created add.
type ParticipantResult struct {
	Participant      types.Participant
	Created          bool
	SeqId            int64
	ParticipantCount int
}

// LeaveResult describes the outcome of a participant removal. CreatorId
// holds the room's creator after the removal, which differs from the
// previous one when creator rights were handed over.
type LeaveResult struct {
	Removed          bool
	RoomDeleted      bool
	CreatorId        int
	SeqId            int64
	ParticipantCount int
}

// SubmissionResult carries the judged submission and, when a score was
// applied, the updated participant. A score is only applied while the room
// is ongoing.
type SubmissionResult struct {
	Submission  types.Submission
	Participant *types.Participant
	SeqId       int64
}

type userRow struct {
	Id           int       `db:"id"`
	ExternalId   string    `db:"external_id"`
	Username     string    `db:"username"`
	EmailAddress string    `db:"email"`
	CreatedAt    time.Time `db:"created_at"`
}

func (u userRow) toUser() types.User {
	return types.User{
		Id:           u.Id,
		ExternalId:   u.ExternalId,
		Username:     u.Username,
		EmailAddress: u.EmailAddress,
		CreatedAt:    u.CreatedAt,
	}
}

type roomRow struct {
	Id               string         `db:"id"`
	Slug             string         `db:"slug"`
	Name             string         `db:"name"`
	Description      string         `db:"description"`
	Difficulty       string         `db:"difficulty"`
	MaxParticipants  int            `db:"max_participants"`
	TimeLimit        int            `db:"time_limit"`
	IsPrivate        bool           `db:"is_private"`
	JoinCodeHash     sql.NullString `db:"join_code_hash"`
	Status           string         `db:"status"`
	CreatorId        int            `db:"creator_id"`
	SeqId            int64          `db:"seq_id"`
	StartedAt        sql.NullTime   `db:"started_at"`
	EndedAt          sql.NullTime   `db:"ended_at"`
	CreatedAt        time.Time      `db:"created_at"`
	ParticipantCount int            `db:"participant_count"`
}

func (r roomRow) toRoom() types.Room {
	room := types.Room{
		Id:               r.Id,
		Slug:             r.Slug,
		Name:             r.Name,
		Description:      r.Description,
		Difficulty:       types.Difficulty(r.Difficulty),
		MaxParticipants:  r.MaxParticipants,
		TimeLimitSeconds: r.TimeLimit,
		IsPrivate:        r.IsPrivate,
		Status:           types.RoomStatus(r.Status),
		CreatorId:        r.CreatorId,
		ParticipantCount: r.ParticipantCount,
		SeqId:            r.SeqId,
		CreatedAt:        r.CreatedAt,
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		room.StartedAt = &t
	}
	if r.EndedAt.Valid {
		t := r.EndedAt.Time
		room.EndedAt = &t
	}

	return room
}

type participantRow struct {
	RoomId         string    `db:"room_id"`
	UserId         int       `db:"user_id"`
	Username       string    `db:"username"`
	Score          int       `db:"score"`
	ProblemsSolved int       `db:"problems_solved"`
	IsReady        bool      `db:"is_ready"`
	JoinedAt       time.Time `db:"joined_at"`
}

func (p participantRow) toParticipant() types.Participant {
	return types.Participant{
		RoomId:         p.RoomId,
		UserId:         p.UserId,
		Username:       p.Username,
		Score:          p.Score,
		ProblemsSolved: p.ProblemsSolved,
		IsReady:        p.IsReady,
		JoinedAt:       p.JoinedAt,
	}
}

type submissionRow struct {
	Id          string         `db:"id"`
	RoomId      sql.NullString `db:"room_id"`
	ChallengeId string         `db:"challenge_id"`
	UserId      int            `db:"user_id"`
	Code        string         `db:"code"`
	Language    string         `db:"language"`
	Status      string         `db:"status"`
	Score       sql.NullInt64  `db:"score"`
	Output      string         `db:"output"`
	CreatedAt   time.Time      `db:"created_at"`
	JudgedAt    sql.NullTime   `db:"judged_at"`
}

func (s submissionRow) toSubmission() types.Submission {
	sub := types.Submission{
		Id:          s.Id,
		RoomId:      s.RoomId.String,
		ChallengeId: s.ChallengeId,
		UserId:      s.UserId,
		Code:        s.Code,
		Language:    s.Language,
		Status:      types.SubmissionStatus(s.Status),
		Output:      s.Output,
		CreatedAt:   s.CreatedAt,
	}
	if s.Score.Valid {
		score := int(s.Score.Int64)
		sub.Score = &score
	}
	if s.JudgedAt.Valid {
		t := s.JudgedAt.Time
		sub.JudgedAt = &t
	}

	return sub
}
