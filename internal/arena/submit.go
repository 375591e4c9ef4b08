package arena

import (
	"context"
	"fmt"
	"strings"

	"github.com/akshat-collab/code-battle-arena/internal/database"
	"github.com/akshat-collab/code-battle-arena/internal/hub"
	"github.com/akshat-collab/code-battle-arena/internal/judge"
	"github.com/akshat-collab/code-battle-arena/internal/leaderboard"
	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/google/uuid"
)

const (
	maxCodeSize       = 64 << 10
	maxOutputSize     = 4 << 10
	judgeFailedOutput = "judge unavailable"
)

type SubmitParams struct {
	RoomId      string
	UserId      int
	ChallengeId string
	Code        string
	Language    string
}

func (p *SubmitParams) normalize() error {
	p.ChallengeId = strings.TrimSpace(p.ChallengeId)
	p.Language = strings.ToLower(strings.TrimSpace(p.Language))

	switch {
	case p.UserId <= 0:
		return invalid("user is required")
	case p.ChallengeId == "":
		return invalid("challenge is required")
	case p.Language == "":
		return invalid("language is required")
	case strings.TrimSpace(p.Code) == "":
		return invalid("code is required")
	case len(p.Code) > maxCodeSize:
		return invalid("code exceeds %d bytes", maxCodeSize)
	}
	return nil
}

// SubmitSolution judges a solution and records the verdict. A room
// submission is only taken while the room is ongoing and before its
// deadline, from a participant. An accepted verdict adds its score to the
// participant if the room is still ongoing when the verdict is recorded; a
// failed or timed out judge call rejects the submission and
// returns ErrJudgeUnavailable.
func (m *Manager) SubmitSolution(ctx context.Context, params SubmitParams) (types.Submission, error) {
	if err := params.normalize(); err != nil {
		return types.Submission{}, err
	}

	if params.RoomId != "" {
		if err := m.admitSubmission(ctx, params.RoomId, params.UserId); err != nil {
			return types.Submission{}, fmt.Errorf("submit solution: %w", err)
		}
	}

	sub, err := m.store.CreateSubmission(ctx, database.CreateSubmissionParams{
		Id:          uuid.NewString(),
		RoomId:      params.RoomId,
		ChallengeId: params.ChallengeId,
		UserId:      params.UserId,
		Code:        params.Code,
		Language:    params.Language,
	})
	if err != nil {
		return types.Submission{}, fmt.Errorf("submit solution: %w", err)
	}

	verdict, judgeErr := m.runJudge(ctx, params)
	if judgeErr != nil {
		m.log.Printf("judge submission %s: %v", sub.Id, judgeErr)
		verdict = judge.Verdict{Status: types.SubmissionRejected, Output: judgeFailedOutput}
	}

	awarded := 0
	if verdict.Accepted() {
		awarded = verdict.Score
	}

	// the verdict is recorded even if the caller went away, so the
	// submission never stays pending
	res, err := m.store.CompleteSubmission(context.WithoutCancel(ctx), database.CompleteSubmissionParams{
		Id:     sub.Id,
		RoomId: params.RoomId,
		UserId: params.UserId,
		Status: verdict.Status,
		Score:  awarded,
		Output: truncate(verdict.Output, maxOutputSize),
	})
	if err != nil {
		return types.Submission{}, fmt.Errorf("submit solution: record verdict: %w", err)
	}

	if params.RoomId != "" && res.SeqId > 0 {
		m.broadcastSubmission(ctx, params.RoomId, res, verdict)
	}

	if judgeErr != nil {
		return res.Submission, fmt.Errorf("submit solution: %w: %v", types.ErrJudgeUnavailable, judgeErr)
	}
	return res.Submission, nil
}

// admitSubmission applies the deadline guard and checks the room is
// ongoing and the user takes part in it.
func (m *Manager) admitSubmission(ctx context.Context, roomId string, userId int) error {
	room, err := m.loadRoom(ctx, roomId)
	if err != nil {
		return err
	}

	if room.Status != types.RoomStatusOngoing || room.Expired(m.now()) {
		return fmt.Errorf("room %q is not accepting submissions: %w", roomId, types.ErrInvalidState)
	}

	participants, err := m.store.ListParticipants(ctx, roomId)
	if err != nil {
		return err
	}
	if !isMember(participants, userId) {
		return fmt.Errorf("user %d is not in room %q: %w", userId, roomId, types.ErrForbidden)
	}

	return nil
}

type judgeResult struct {
	verdict judge.Verdict
	err     error
}

// runJudge calls the judge under the judge timeout. The timeout holds even
// for a judge that ignores its context.
func (m *Manager) runJudge(ctx context.Context, params SubmitParams) (judge.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, m.judgeTimeout)
	defer cancel()

	result := make(chan judgeResult, 1)
	go func() {
		v, err := m.judge.Judge(ctx, params.Language, params.Code, params.ChallengeId)
		result <- judgeResult{verdict: v, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return judge.Verdict{}, r.err
		}
		switch {
		case r.verdict.Status != types.SubmissionAccepted && r.verdict.Status != types.SubmissionRejected:
			return judge.Verdict{}, fmt.Errorf("unexpected verdict %q", r.verdict.Status)
		case r.verdict.Score < 0:
			return judge.Verdict{}, fmt.Errorf("negative score %d", r.verdict.Score)
		}
		return r.verdict, nil
	case <-ctx.Done():
		return judge.Verdict{}, fmt.Errorf("judge timed out after %s: %w", m.judgeTimeout, ctx.Err())
	}
}

func (m *Manager) broadcastSubmission(ctx context.Context, roomId string, res database.SubmissionResult, verdict judge.Verdict) {
	participants := m.roster(ctx, roomId)

	update := SubmissionUpdate{
		SubmissionId: res.Submission.Id,
		UserId:       res.Submission.UserId,
		ChallengeId:  res.Submission.ChallengeId,
		Status:       res.Submission.Status,
		Leaderboard:  leaderboard.Compute(participants),
	}
	if res.Participant != nil {
		// the score only moves while the room is ongoing
		update.Points = verdict.Score
		update.Score = res.Participant.Score
	} else {
		for _, p := range participants {
			if p.UserId == res.Submission.UserId {
				update.Score = p.Score
			}
		}
	}

	m.broadcast(ctx, roomId, hub.EventSubmissionUpdate, res.SeqId, update)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
