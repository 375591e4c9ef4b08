package types

import (
	"time"
)

type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "waiting"
	RoomStatusOngoing   RoomStatus = "ongoing"
	RoomStatusCompleted RoomStatus = "completed"
)

// Active reports whether the room still shows up in room listings.
func (s RoomStatus) Active() bool {
	return s == RoomStatusWaiting || s == RoomStatusOngoing
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyMixed  Difficulty = "mixed"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyMixed:
		return true
	}
	return false
}

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionAccepted SubmissionStatus = "accepted"
	SubmissionRejected SubmissionStatus = "rejected"
)

type User struct {
	Id           int       `json:"id"`
	ExternalId   string    `json:"-"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

type Room struct {
	Id               string     `json:"id"`
	Slug             string     `json:"slug"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Difficulty       Difficulty `json:"difficulty"`
	MaxParticipants  int        `json:"max_participants"`
	TimeLimitSeconds int        `json:"time_limit"`
	IsPrivate        bool       `json:"is_private"`
	Status           RoomStatus `json:"status"`
	CreatorId        int        `json:"creator_id"`
	ParticipantCount int        `json:"participant_count"`
	SeqId            int64      `json:"seq_id"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Deadline returns the instant the competition time limit elapses. The
// second return value is false until the room has been started.
func (r *Room) Deadline() (time.Time, bool) {
	if r.StartedAt == nil {
		return time.Time{}, false
	}
	return r.StartedAt.Add(time.Duration(r.TimeLimitSeconds) * time.Second), true
}

// Expired reports whether an ongoing room has run past its time limit at now.
func (r *Room) Expired(now time.Time) bool {
	if r.Status != RoomStatusOngoing {
		return false
	}
	deadline, ok := r.Deadline()
	return ok && now.After(deadline)
}

type Participant struct {
	RoomId         string    `json:"room_id"`
	UserId         int       `json:"user_id"`
	Username       string    `json:"username"`
	Score          int       `json:"score"`
	ProblemsSolved int       `json:"problems_solved"`
	IsReady        bool      `json:"is_ready"`
	JoinedAt       time.Time `json:"joined_at"`
}

type RoomDetail struct {
	Room         Room          `json:"room"`
	Participants []Participant `json:"participants"`
}

type Submission struct {
	Id          string           `json:"id"`
	RoomId      string           `json:"room_id,omitempty"`
	ChallengeId string           `json:"challenge_id"`
	UserId      int              `json:"user_id"`
	Code        string           `json:"-"`
	Language    string           `json:"language"`
	Status      SubmissionStatus `json:"status"`
	Score       *int             `json:"score,omitempty"`
	Output      string           `json:"output,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	JudgedAt    *time.Time       `json:"judged_at,omitempty"`
}

type LeaderboardEntry struct {
	Rank           int       `json:"rank"`
	UserId         int       `json:"user_id"`
	Username       string    `json:"username"`
	Score          int       `json:"score"`
	ProblemsSolved int       `json:"problems_solved"`
	JoinedAt       time.Time `json:"joined_at"`
}
