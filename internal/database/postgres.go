package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type PgArenaRepository struct {
	conn *sqlx.DB
}

func NewPgArenaRepository(dsn string) (*PgArenaRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}

	return &PgArenaRepository{conn: db}, nil
}

func (db *PgArenaRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *PgArenaRepository) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return storageError("ping", err)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back when fn or the commit fails.
func (db *PgArenaRepository) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return storageError(op, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return storageError(op, err)
	}

	if err = tx.Commit(); err != nil {
		return storageError(op, err)
	}

	return nil
}

var domainErrors = []error{
	types.ErrNotFound,
	types.ErrInvalidState,
	types.ErrForbidden,
	types.ErrRoomFull,
	types.ErrInvalidArgument,
	types.ErrStorageFailure,
}

// storageError classifies err. Domain errors and context cancellation pass
// through, constraint violations map to domain errors and everything else
// is a StorageFailure.
func storageError(op string, err error) error {
	for _, kind := range domainErrors {
		if errors.Is(err, kind) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503":
			return fmt.Errorf("%s: %w: %s", op, types.ErrNotFound, pqErr.Message)
		case "23502", "23505", "23514", "22001", "22P02":
			return fmt.Errorf("%s: %w: %s", op, types.ErrInvalidArgument, pqErr.Message)
		}
	}

	return fmt.Errorf("%s: %w: %v", op, types.ErrStorageFailure, err)
}
