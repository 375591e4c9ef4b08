package arena

import (
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/types"
)

const (
	finishReasonDeadline = "deadline"
	finishReasonEnded    = "ended"
)

type UserJoined struct {
	UserId           int               `json:"user_id"`
	Username         string            `json:"username"`
	Participant      types.Participant `json:"participant"`
	ParticipantCount int               `json:"participant_count"`
}

type UserLeft struct {
	UserId           int `json:"user_id"`
	CreatorId        int `json:"creator_id"`
	ParticipantCount int `json:"participant_count"`
}

type UserReadyStatus struct {
	UserId  int  `json:"user_id"`
	IsReady bool `json:"is_ready"`
}

type CompetitionStarted struct {
	StartedAt time.Time `json:"started_at"`
	EndsAt    time.Time `json:"ends_at"`
	TimeLimit int       `json:"time_limit"`
}

type CountdownUpdate struct {
	Seconds   int       `json:"seconds"`
	StartsAt  time.Time `json:"starts_at"`
	CreatorId int       `json:"creator_id"`
}

type SubmissionUpdate struct {
	SubmissionId string                   `json:"submission_id"`
	UserId       int                      `json:"user_id"`
	ChallengeId  string                   `json:"challenge_id"`
	Status       types.SubmissionStatus   `json:"status"`
	Points       int                      `json:"points"`
	Score        int                      `json:"score"`
	Leaderboard  []types.LeaderboardEntry `json:"leaderboard"`
}

type LeaderboardUpdate struct {
	Status      types.RoomStatus         `json:"status"`
	Final       bool                     `json:"final"`
	Reason      string                   `json:"reason,omitempty"`
	EndedAt     *time.Time               `json:"ended_at,omitempty"`
	Leaderboard []types.LeaderboardEntry `json:"leaderboard"`
}
