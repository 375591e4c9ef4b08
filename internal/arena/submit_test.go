package arena

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/hub"
	"github.com/akshat-collab/code-battle-arena/internal/judge"
	"github.com/akshat-collab/code-battle-arena/internal/testutil"
	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/akshat-collab/code-battle-arena/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type judgeFunc func(ctx context.Context, language, code, challengeId string) (judge.Verdict, error)

func (f judgeFunc) Judge(ctx context.Context, language, code, challengeId string) (judge.Verdict, error) {
	return f(ctx, language, code, challengeId)
}

// ongoingRoom returns a started room with alice as creator and bob joined.
func ongoingRoom(t *testing.T, f *fixture) (types.Room, types.User, types.User) {
	t.Helper()
	ctx := context.Background()

	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	room := f.room(t, alice, 4)
	_, err := f.m.JoinRoom(ctx, room.Id, bob.Id, "")
	require.NoError(t, err)
	room, err = f.m.StartCompetition(ctx, room.Id, alice.Id)
	require.NoError(t, err)
	f.hub.reset()

	return room, alice, bob
}

func submission(roomId string, userId int) SubmitParams {
	return SubmitParams{
		RoomId:      roomId,
		UserId:      userId,
		ChallengeId: "two-sum",
		Code:        "print(1)",
		Language:    "Python",
	}
}

func TestSubmitSolutionValidation(t *testing.T) {
	f := newFixture(t)
	bob := f.user(t, "bob")

	tcases := []struct {
		name   string
		modify func(p *SubmitParams)
	}{
		{name: "missing user", modify: func(p *SubmitParams) { p.UserId = 0 }},
		{name: "missing challenge", modify: func(p *SubmitParams) { p.ChallengeId = " " }},
		{name: "missing language", modify: func(p *SubmitParams) { p.Language = "" }},
		{name: "blank code", modify: func(p *SubmitParams) { p.Code = "\n\t" }},
		{name: "code too large", modify: func(p *SubmitParams) { p.Code = strings.Repeat("a", maxCodeSize+1) }},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			params := submission("", bob.Id)
			tc.modify(&params)

			_, err := f.m.SubmitSolution(context.Background(), params)
			assert.ErrorIs(t, err, types.ErrInvalidArgument)
		})
	}

	assert.Zero(t, f.judge.calls.Load(), "expected invalid submissions not to reach the judge")
}

func TestSubmitSolutionAccepted(t *testing.T) {
	f := newFixture(t)
	room, _, bob := ongoingRoom(t, f)

	sub, err := f.m.SubmitSolution(context.Background(), submission(room.Id, bob.Id))
	require.NoError(t, err)
	assert.Equal(t, types.SubmissionAccepted, sub.Status)
	require.NotNil(t, sub.Score)
	assert.Equal(t, 100, *sub.Score)
	assert.Equal(t, "python", sub.Language)
	assert.NotNil(t, sub.JudgedAt)

	ev := f.hub.last(t, hub.EventSubmissionUpdate)
	assert.Equal(t, []string{hub.EventSubmissionUpdate}, f.hub.names(room.Id))

	var update SubmissionUpdate
	decode(t, ev, &update)
	assert.Equal(t, sub.Id, update.SubmissionId)
	assert.Equal(t, bob.Id, update.UserId)
	assert.Equal(t, "two-sum", update.ChallengeId)
	assert.Equal(t, 100, update.Points)
	assert.Equal(t, 100, update.Score)
	require.Len(t, update.Leaderboard, 2)
	assert.Equal(t, bob.Id, update.Leaderboard[0].UserId)
	assert.Equal(t, 1, update.Leaderboard[0].Rank)
	assert.Equal(t, 1, update.Leaderboard[0].ProblemsSolved)

	board, err := f.m.GetLeaderboard(context.Background(), room.Id)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, bob.Id, board[0].UserId)
	assert.Equal(t, 100, board[0].Score)
}

func TestSubmitSolutionRejected(t *testing.T) {
	f := newFixture(t)
	room, _, bob := ongoingRoom(t, f)
	f.judge.verdict = judge.Verdict{Status: types.SubmissionRejected, Output: "wrong answer on test 3"}

	sub, err := f.m.SubmitSolution(context.Background(), submission(room.Id, bob.Id))
	require.NoError(t, err)
	assert.Equal(t, types.SubmissionRejected, sub.Status)
	assert.Equal(t, "wrong answer on test 3", sub.Output)

	var update SubmissionUpdate
	decode(t, f.hub.last(t, hub.EventSubmissionUpdate), &update)
	assert.Equal(t, types.SubmissionRejected, update.Status)
	assert.Zero(t, update.Points)
	assert.Zero(t, update.Score)
}

func TestSubmitSolutionJudgeFailure(t *testing.T) {
	tcases := []struct {
		name  string
		setup func(j *stubJudge)
	}{
		{
			name:  "judge error",
			setup: func(j *stubJudge) { j.err = errors.New("connection refused") },
		},
		{
			name:  "judge times out",
			setup: func(j *stubJudge) { j.block = true },
		},
		{
			name: "judge ignores its deadline",
			setup: func(j *stubJudge) {
				j.block = true
				j.ignoreCtx = true
			},
		},
		{
			name:  "judge returns an unknown status",
			setup: func(j *stubJudge) { j.verdict = judge.Verdict{Status: types.SubmissionPending} },
		},
		{
			name:  "judge returns a negative score",
			setup: func(j *stubJudge) { j.verdict = judge.Verdict{Status: types.SubmissionAccepted, Score: -1} },
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			room, _, bob := ongoingRoom(t, f)
			tc.setup(f.judge)

			start := time.Now()
			sub, err := f.m.SubmitSolution(context.Background(), submission(room.Id, bob.Id))
			assert.ErrorIs(t, err, types.ErrJudgeUnavailable)
			assert.Less(t, time.Since(start), 2*time.Second, "expected the judge timeout to bound the call")

			assert.Equal(t, types.SubmissionRejected, sub.Status)
			assert.Equal(t, judgeFailedOutput, sub.Output)

			var update SubmissionUpdate
			decode(t, f.hub.last(t, hub.EventSubmissionUpdate), &update)
			assert.Equal(t, types.SubmissionRejected, update.Status)
			assert.Zero(t, update.Score)
		})
	}
}

func TestSubmitSolutionAdmission(t *testing.T) {
	ctx := context.Background()

	t.Run("missing room", func(t *testing.T) {
		f := newFixture(t)
		bob := f.user(t, "bob")

		_, err := f.m.SubmitSolution(ctx, submission("missing", bob.Id))
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("room still waiting", func(t *testing.T) {
		f := newFixture(t)
		alice := f.user(t, "alice")
		room := f.room(t, alice, 2)

		_, err := f.m.SubmitSolution(ctx, submission(room.Id, alice.Id))
		assert.ErrorIs(t, err, types.ErrInvalidState)
	})

	t.Run("not a participant", func(t *testing.T) {
		f := newFixture(t)
		room, _, _ := ongoingRoom(t, f)
		carol := f.user(t, "carol")

		_, err := f.m.SubmitSolution(ctx, submission(room.Id, carol.Id))
		assert.ErrorIs(t, err, types.ErrForbidden)
		assert.Empty(t, f.hub.names(room.Id))
	})

	t.Run("late submission never reaches the judge", func(t *testing.T) {
		f := newFixture(t)
		room, _, bob := ongoingRoom(t, f)
		f.clock.Advance(61 * time.Second)

		_, err := f.m.SubmitSolution(ctx, submission(room.Id, bob.Id))
		assert.ErrorIs(t, err, types.ErrInvalidState)
		assert.Zero(t, f.judge.calls.Load())

		assert.Equal(t, []string{hub.EventLeaderboardUpdate}, f.hub.names(room.Id), "expected only the final leaderboard")
	})

	t.Run("submission at the deadline is accepted", func(t *testing.T) {
		f := newFixture(t)
		room, _, bob := ongoingRoom(t, f)
		f.clock.Advance(60 * time.Second)

		sub, err := f.m.SubmitSolution(ctx, submission(room.Id, bob.Id))
		require.NoError(t, err)
		assert.Equal(t, types.SubmissionAccepted, sub.Status)
	})
}

func TestSubmitSolutionScoredWhenJudgingPassesDeadline(t *testing.T) {
	f := newFixture(t)
	room, _, bob := ongoingRoom(t, f)

	logger := testutil.TestLogger(t)
	slow := judgeFunc(func(ctx context.Context, _, _, _ string) (judge.Verdict, error) {
		f.clock.Advance(2 * time.Minute)
		return judge.Verdict{Status: types.SubmissionAccepted, Score: 50}, nil
	})
	m := NewManager(f.store, f.hub, slow, users.NewResolver(f.store, nil, logger), logger, Options{Now: f.clock.Now})

	_, err := m.SubmitSolution(context.Background(), submission(room.Id, bob.Id))
	require.NoError(t, err)

	board, err := m.GetLeaderboard(context.Background(), room.Id)
	require.NoError(t, err)
	require.NotEmpty(t, board)
	assert.Equal(t, bob.Id, board[0].UserId)
	assert.Equal(t, 50, board[0].Score)

	detail, err := m.GetRoomDetail(context.Background(), room.Id)
	require.NoError(t, err)
	assert.Equal(t, types.RoomStatusCompleted, detail.Room.Status)
}

func TestSubmitSolutionNotScoredAfterEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, alice, bob := ongoingRoom(t, f)

	started, release := make(chan struct{}), make(chan struct{})
	blocked := judgeFunc(func(ctx context.Context, _, _, _ string) (judge.Verdict, error) {
		close(started)
		select {
		case <-release:
			return judge.Verdict{Status: types.SubmissionAccepted, Score: 100}, nil
		case <-ctx.Done():
			return judge.Verdict{}, ctx.Err()
		}
	})
	logger := testutil.TestLogger(t)
	m := NewManager(f.store, f.hub, blocked, users.NewResolver(f.store, nil, logger), logger, Options{
		Now:          f.clock.Now,
		JudgeTimeout: 5 * time.Second,
	})

	type result struct {
		sub types.Submission
		err error
	}
	done := make(chan result, 1)
	go func() {
		sub, err := m.SubmitSolution(ctx, submission(room.Id, bob.Id))
		done <- result{sub: sub, err: err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("judge was never called")
	}

	ended, err := m.EndCompetition(ctx, room.Id, alice.Id)
	require.NoError(t, err)
	assert.Equal(t, types.RoomStatusCompleted, ended.Status)
	close(release)

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not finish")
	}
	require.NoError(t, res.err)
	assert.Equal(t, types.SubmissionAccepted, res.sub.Status, "expected the verdict to be recorded")

	board, err := m.GetLeaderboard(ctx, room.Id)
	require.NoError(t, err)
	for _, entry := range board {
		assert.Zero(t, entry.Score, "expected the final board to stay unchanged")
		assert.Zero(t, entry.ProblemsSolved)
	}

	assert.Equal(t, []string{hub.EventLeaderboardUpdate, hub.EventSubmissionUpdate}, f.hub.names(room.Id))

	var final LeaderboardUpdate
	decode(t, f.hub.last(t, hub.EventLeaderboardUpdate), &final)
	assert.True(t, final.Final)

	var update SubmissionUpdate
	decode(t, f.hub.last(t, hub.EventSubmissionUpdate), &update)
	assert.Zero(t, update.Points)
	assert.Zero(t, update.Score)
	for _, entry := range update.Leaderboard {
		assert.Zero(t, entry.Score)
	}
}

func TestSubmitSolutionWithoutRoom(t *testing.T) {
	f := newFixture(t)
	bob := f.user(t, "bob")

	sub, err := f.m.SubmitSolution(context.Background(), submission("", bob.Id))
	require.NoError(t, err)
	assert.Equal(t, types.SubmissionAccepted, sub.Status)
	assert.Empty(t, f.hub.all(), "expected practice submissions not to broadcast")
}

func Test_truncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "a", truncate("aé", 2), "expected a cut rune to be dropped")
}

func TestNewManagerClampsJudgeTimeout(t *testing.T) {
	logger := testutil.TestLogger(t)

	for _, timeout := range []time.Duration{0, -time.Second, time.Minute} {
		m := NewManager(nil, nil, nil, nil, logger, Options{JudgeTimeout: timeout})
		assert.Equal(t, MaxJudgeTimeout, m.judgeTimeout)
	}

	m := NewManager(nil, nil, nil, nil, logger, Options{JudgeTimeout: 3 * time.Second})
	assert.Equal(t, 3*time.Second, m.judgeTimeout)
}
