package types

import "errors"

// Error kinds shared by the store, the lifecycle manager and the transport.
// Callers wrap them with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrForbidden        = errors.New("forbidden")
	ErrRoomFull         = errors.New("room is full")
	ErrJudgeUnavailable = errors.New("judge unavailable")
	ErrStorageFailure   = errors.New("storage failure")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// ErrCapacityExceeded is the store-level name for a full room.
var ErrCapacityExceeded = ErrRoomFull
