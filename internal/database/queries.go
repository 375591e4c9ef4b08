package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/jmoiron/sqlx"
)

const (
	userColumns = "id, external_id, username, email, created_at"

	roomColumns = "id, slug, name, description, difficulty, max_participants, time_limit, " +
		"is_private, join_code_hash, status, creator_id, seq_id, started_at, ended_at, created_at"

	participantCountColumn = "(SELECT COUNT(*) FROM room_participants p WHERE p.room_id = competition_rooms.id) AS participant_count"

	participantSelect = "SELECT p.room_id, p.user_id, u.username, p.score, p.problems_solved, p.is_ready, p.joined_at " +
		"FROM room_participants p JOIN users u ON u.id = p.user_id"

	submissionColumns = "id, room_id, challenge_id, user_id, code, language, status, score, output, created_at, judged_at"

	bumpSeqQuery = "UPDATE competition_rooms SET seq_id = seq_id + 1 WHERE id = $1 RETURNING seq_id"
)

func (db *PgArenaRepository) UpsertUser(ctx context.Context, params UpsertUserParams) (types.User, error) {
	var row userRow
	err := db.conn.GetContext(ctx, &row,
		"INSERT INTO users (external_id, username, email, created_at) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (external_id) DO UPDATE SET email = CASE WHEN users.email = '' THEN EXCLUDED.email ELSE users.email END "+
			"RETURNING "+userColumns,
		params.ExternalId,
		params.Username,
		params.EmailAddress,
		time.Now().UTC(),
	)
	if err != nil {
		return types.User{}, storageError("upsert user", err)
	}

	return row.toUser(), nil
}

func (db *PgArenaRepository) GetUser(ctx context.Context, id int) (types.User, error) {
	var row userRow
	err := db.conn.GetContext(ctx, &row, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	if err != nil {
		return types.User{}, storageError("get user", notFound(err))
	}

	return row.toUser(), nil
}

func (db *PgArenaRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	var room types.Room
	err := db.withTx(ctx, "create room", func(tx *sqlx.Tx) error {
		now := time.Now().UTC()

		var joinCodeHash sql.NullString
		if params.IsPrivate {
			joinCodeHash = sql.NullString{String: params.JoinCodeHash, Valid: true}
		}

		var row roomRow
		err := tx.GetContext(ctx, &row,
			"INSERT INTO competition_rooms (id, slug, name, description, difficulty, max_participants, time_limit, "+
				"is_private, join_code_hash, status, creator_id, seq_id, created_at) "+
				"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'waiting', $10, 1, $11) RETURNING "+roomColumns,
			params.Id,
			params.Slug,
			params.Name,
			params.Description,
			string(params.Difficulty),
			params.MaxParticipants,
			params.TimeLimitSeconds,
			params.IsPrivate,
			joinCodeHash,
			params.CreatorId,
			now,
		)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO room_participants (room_id, user_id, is_ready, joined_at) VALUES ($1, $2, false, $3)",
			row.Id,
			params.CreatorId,
			now,
		)
		if err != nil {
			return err
		}

		row.ParticipantCount = 1
		room = row.toRoom()
		return nil
	})

	return room, err
}

func (db *PgArenaRepository) GetRoom(ctx context.Context, id string) (types.Room, error) {
	var row roomRow
	err := db.conn.GetContext(ctx, &row,
		"SELECT "+roomColumns+", "+participantCountColumn+" FROM competition_rooms WHERE id = $1",
		id,
	)
	if err != nil {
		return types.Room{}, storageError("get room", notFound(err))
	}

	return row.toRoom(), nil
}

func (db *PgArenaRepository) GetJoinCodeHash(ctx context.Context, id string) (string, error) {
	var hash sql.NullString
	err := db.conn.GetContext(ctx, &hash, "SELECT join_code_hash FROM competition_rooms WHERE id = $1", id)
	if err != nil {
		return "", storageError("get join code", notFound(err))
	}

	return hash.String, nil
}

func (db *PgArenaRepository) ListActiveRooms(ctx context.Context) ([]types.Room, error) {
	var rows []roomRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT "+roomColumns+", "+participantCountColumn+" FROM competition_rooms "+
			"WHERE status IN ('waiting', 'ongoing') ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, storageError("list active rooms", err)
	}

	rooms := make([]types.Room, len(rows))
	for i, row := range rows {
		rooms[i] = row.toRoom()
	}

	return rooms, nil
}

func (db *PgArenaRepository) ListExpiredRooms(ctx context.Context, now time.Time) ([]types.Room, error) {
	var rows []roomRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT "+roomColumns+", "+participantCountColumn+" FROM competition_rooms "+
			"WHERE status = 'ongoing' AND started_at + make_interval(secs => time_limit) < $1",
		now,
	)
	if err != nil {
		return nil, storageError("list expired rooms", err)
	}

	rooms := make([]types.Room, len(rows))
	for i, row := range rows {
		rooms[i] = row.toRoom()
	}

	return rooms, nil
}

func (db *PgArenaRepository) UpdateRoomStatus(ctx context.Context, id string, from, to types.RoomStatus, at time.Time) (types.Room, error) {
	var startedAt, endedAt sql.NullTime
	switch to {
	case types.RoomStatusOngoing:
		startedAt = sql.NullTime{Time: at, Valid: true}
	case types.RoomStatusCompleted:
		endedAt = sql.NullTime{Time: at, Valid: true}
	}

	var row roomRow
	err := db.conn.GetContext(ctx, &row,
		"UPDATE competition_rooms SET status = $3, started_at = COALESCE($4, started_at), "+
			"ended_at = COALESCE($5, ended_at), seq_id = seq_id + 1 "+
			"WHERE id = $1 AND status = $2 RETURNING "+roomColumns+", "+participantCountColumn,
		id,
		string(from),
		string(to),
		startedAt,
		endedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// distinguish a missing room from a lost transition
		var status string
		err = db.conn.GetContext(ctx, &status, "SELECT status FROM competition_rooms WHERE id = $1", id)
		if err == nil {
			err = fmt.Errorf("room %q is %s, not %s: %w", id, status, from, types.ErrInvalidState)
		}
		return types.Room{}, storageError("update room status", notFound(err))
	}
	if err != nil {
		return types.Room{}, storageError("update room status", err)
	}

	return row.toRoom(), nil
}

func (db *PgArenaRepository) ListParticipants(ctx context.Context, roomId string) ([]types.Participant, error) {
	var rows []participantRow
	err := db.conn.SelectContext(ctx, &rows,
		participantSelect+" WHERE p.room_id = $1 ORDER BY p.joined_at, p.user_id",
		roomId,
	)
	if err != nil {
		return nil, storageError("list participants", err)
	}

	participants := make([]types.Participant, len(rows))
	for i, row := range rows {
		participants[i] = row.toParticipant()
	}

	return participants, nil
}

func (db *PgArenaRepository) AddParticipant(ctx context.Context, roomId string, userId int) (ParticipantResult, error) {
	var res ParticipantResult
	err := db.withTx(ctx, "add participant", func(tx *sqlx.Tx) error {
		room, err := lockRoom(ctx, tx, roomId)
		if err != nil {
			return err
		}

		if types.RoomStatus(room.Status) != types.RoomStatusWaiting {
			return fmt.Errorf("room %q is %s: %w", roomId, room.Status, types.ErrInvalidState)
		}

		existing, err := getParticipant(ctx, tx, roomId, userId)
		if err == nil {
			res = ParticipantResult{Participant: existing, Created: false, SeqId: room.SeqId}
			return nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}

		count, err := countParticipants(ctx, tx, roomId)
		if err != nil {
			return err
		}
		if count >= room.MaxParticipants {
			return fmt.Errorf("room %q has %d of %d participants: %w", roomId, count, room.MaxParticipants, types.ErrRoomFull)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO room_participants (room_id, user_id, is_ready, joined_at) VALUES ($1, $2, false, $3)",
			roomId,
			userId,
			time.Now().UTC(),
		)
		if err != nil {
			return err
		}

		seq, err := bumpSeq(ctx, tx, roomId)
		if err != nil {
			return err
		}

		p, err := getParticipant(ctx, tx, roomId, userId)
		if err != nil {
			return err
		}

		res = ParticipantResult{Participant: p, Created: true, SeqId: seq, ParticipantCount: count + 1}
		return nil
	})

	return res, err
}

func (db *PgArenaRepository) RemoveParticipant(ctx context.Context, roomId string, userId int) (LeaveResult, error) {
	var res LeaveResult
	err := db.withTx(ctx, "remove participant", func(tx *sqlx.Tx) error {
		room, err := lockRoom(ctx, tx, roomId)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			"DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2",
			roomId,
			userId,
		)
		if err != nil {
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			res = LeaveResult{CreatorId: room.CreatorId, SeqId: room.SeqId}
			return nil
		}

		remaining, err := countParticipants(ctx, tx, roomId)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.ExecContext(ctx, "DELETE FROM competition_rooms WHERE id = $1", roomId); err != nil {
				return err
			}
			res = LeaveResult{Removed: true, RoomDeleted: true, CreatorId: room.CreatorId, SeqId: room.SeqId + 1}
			return nil
		}

		res = LeaveResult{Removed: true, CreatorId: room.CreatorId, ParticipantCount: remaining}
		if userId == room.CreatorId && types.RoomStatus(room.Status) == types.RoomStatusWaiting {
			// hand creator rights to the earliest remaining joiner
			err = tx.QueryRowxContext(ctx,
				"UPDATE competition_rooms SET creator_id = (SELECT user_id FROM room_participants "+
					"WHERE room_id = $1 ORDER BY joined_at, user_id LIMIT 1), seq_id = seq_id + 1 "+
					"WHERE id = $1 RETURNING creator_id, seq_id",
				roomId,
			).Scan(&res.CreatorId, &res.SeqId)
			return err
		}

		res.SeqId, err = bumpSeq(ctx, tx, roomId)
		return err
	})

	return res, err
}

func (db *PgArenaRepository) SetReady(ctx context.Context, roomId string, userId int, ready bool) (ParticipantResult, error) {
	var res ParticipantResult
	err := db.withTx(ctx, "set ready", func(tx *sqlx.Tx) error {
		room, err := lockRoom(ctx, tx, roomId)
		if err != nil {
			return err
		}

		if types.RoomStatus(room.Status) != types.RoomStatusWaiting {
			return fmt.Errorf("room %q is %s: %w", roomId, room.Status, types.ErrInvalidState)
		}

		result, err := tx.ExecContext(ctx,
			"UPDATE room_participants SET is_ready = $3 WHERE room_id = $1 AND user_id = $2",
			roomId,
			userId,
			ready,
		)
		if err != nil {
			return err
		}
		if affected, err := result.RowsAffected(); err != nil {
			return err
		} else if affected == 0 {
			return fmt.Errorf("user %d is not in room %q: %w", userId, roomId, types.ErrNotFound)
		}

		seq, err := bumpSeq(ctx, tx, roomId)
		if err != nil {
			return err
		}

		p, err := getParticipant(ctx, tx, roomId, userId)
		if err != nil {
			return err
		}

		res = ParticipantResult{Participant: p, SeqId: seq}
		return nil
	})

	return res, err
}

func (db *PgArenaRepository) CreateSubmission(ctx context.Context, params CreateSubmissionParams) (types.Submission, error) {
	var roomId sql.NullString
	if params.RoomId != "" {
		roomId = sql.NullString{String: params.RoomId, Valid: true}
	}

	var row submissionRow
	err := db.conn.GetContext(ctx, &row,
		"INSERT INTO submissions (id, room_id, challenge_id, user_id, code, language, status, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7) RETURNING "+submissionColumns,
		params.Id,
		roomId,
		params.ChallengeId,
		params.UserId,
		params.Code,
		params.Language,
		time.Now().UTC(),
	)
	if err != nil {
		return types.Submission{}, storageError("create submission", err)
	}

	return row.toSubmission(), nil
}

// CompleteSubmission records the verdict of a pending submission and, for an
// accepted submission to an ongoing room, applies the score in the same
// transaction. A room that completed while judging keeps its final board. The
// room row is locked before the submission row, matching the lock order of
// room deletion.
func (db *PgArenaRepository) CompleteSubmission(ctx context.Context, params CompleteSubmissionParams) (SubmissionResult, error) {
	var res SubmissionResult
	err := db.withTx(ctx, "complete submission", func(tx *sqlx.Tx) error {
		var room *roomRow
		if params.RoomId != "" {
			r, err := lockRoom(ctx, tx, params.RoomId)
			if err != nil && !errors.Is(err, types.ErrNotFound) {
				return err
			}
			if err == nil {
				room = &r
			}
		}

		var score sql.NullInt64
		if params.Status == types.SubmissionAccepted {
			score = sql.NullInt64{Int64: int64(params.Score), Valid: true}
		} else {
			score = sql.NullInt64{Int64: 0, Valid: true}
		}

		var row submissionRow
		err := tx.GetContext(ctx, &row,
			"UPDATE submissions SET status = $2, score = $3, output = $4, judged_at = $5 "+
				"WHERE id = $1 AND status = 'pending' RETURNING "+submissionColumns,
			params.Id,
			string(params.Status),
			score,
			params.Output,
			time.Now().UTC(),
		)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("pending submission %q: %w", params.Id, types.ErrNotFound)
		}
		if err != nil {
			return err
		}
		res.Submission = row.toSubmission()

		if room == nil {
			return nil
		}

		if params.Status == types.SubmissionAccepted && types.RoomStatus(room.Status) == types.RoomStatusOngoing {
			p, err := incrementScore(ctx, tx, params.RoomId, params.UserId, params.Score)
			switch {
			case err == nil:
				res.Participant = &p
			case errors.Is(err, types.ErrNotFound):
				// the participant left while the submission was being judged
			default:
				return err
			}
		}

		res.SeqId, err = bumpSeq(ctx, tx, params.RoomId)
		return err
	})

	return res, err
}

func lockRoom(ctx context.Context, tx *sqlx.Tx, id string) (roomRow, error) {
	var row roomRow
	err := tx.GetContext(ctx, &row, "SELECT "+roomColumns+" FROM competition_rooms WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return roomRow{}, notFound(err)
	}

	return row, nil
}

func getParticipant(ctx context.Context, tx *sqlx.Tx, roomId string, userId int) (types.Participant, error) {
	var row participantRow
	err := tx.GetContext(ctx, &row, participantSelect+" WHERE p.room_id = $1 AND p.user_id = $2", roomId, userId)
	if err != nil {
		return types.Participant{}, notFound(err)
	}

	return row.toParticipant(), nil
}

func countParticipants(ctx context.Context, tx *sqlx.Tx, roomId string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM room_participants WHERE room_id = $1", roomId)
	return count, err
}

func incrementScore(ctx context.Context, tx *sqlx.Tx, roomId string, userId int, delta int) (types.Participant, error) {
	result, err := tx.ExecContext(ctx,
		"UPDATE room_participants SET score = score + $3, problems_solved = problems_solved + 1 "+
			"WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
		delta,
	)
	if err != nil {
		return types.Participant{}, err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return types.Participant{}, err
	} else if affected == 0 {
		return types.Participant{}, fmt.Errorf("user %d is not in room %q: %w", userId, roomId, types.ErrNotFound)
	}

	return getParticipant(ctx, tx, roomId, userId)
}

func bumpSeq(ctx context.Context, tx *sqlx.Tx, roomId string) (int64, error) {
	var seq int64
	err := tx.GetContext(ctx, &seq, bumpSeqQuery, roomId)
	return seq, err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}
	return err
}
