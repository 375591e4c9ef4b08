// Package leaderboard ranks the participants of a room.
package leaderboard

import (
	"slices"

	"github.com/akshat-collab/code-battle-arena/internal/types"
)

// Compute orders a participant snapshot by score (desc), problems solved
// (desc), join time (asc) and finally user id, and assigns 1-based ranks.
// The input slice is not modified.
func Compute(participants []types.Participant) []types.LeaderboardEntry {
	sorted := slices.Clone(participants)
	slices.SortStableFunc(sorted, Compare)

	entries := make([]types.LeaderboardEntry, len(sorted))
	for i, p := range sorted {
		entries[i] = types.LeaderboardEntry{
			Rank:           i + 1,
			UserId:         p.UserId,
			Username:       p.Username,
			Score:          p.Score,
			ProblemsSolved: p.ProblemsSolved,
			JoinedAt:       p.JoinedAt,
		}
	}

	return entries
}

// Compare returns a negative number when a ranks ahead of b.
func Compare(a, b types.Participant) int {
	if a.Score != b.Score {
		return b.Score - a.Score
	}
	if a.ProblemsSolved != b.ProblemsSolved {
		return b.ProblemsSolved - a.ProblemsSolved
	}
	if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
		return c
	}
	return a.UserId - b.UserId
}
