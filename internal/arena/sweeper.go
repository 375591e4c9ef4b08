package arena

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/lock"
)

const sweepLockKey = "arena:lock:sweep"

// Sweeper periodically completes rooms whose deadline passed with no
// further activity. With several instances only the lock holder sweeps.
type Sweeper struct {
	manager  *Manager
	locker   lock.Locker
	interval time.Duration
	log      *log.Logger
}

func NewSweeper(m *Manager, locker lock.Locker, interval time.Duration, logger *log.Logger) *Sweeper {
	if locker == nil {
		locker = lock.LocalLocker{}
	}
	return &Sweeper{manager: m, locker: locker, interval: interval, log: logger}
}

func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Printf("sweeper running every %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-ctx.Done():
			s.log.Println("sweeper stopped")
			return nil
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	lease, ok, err := s.locker.TryAcquire(ctx, sweepLockKey, s.interval)
	if err != nil {
		s.log.Println("sweeper: acquire lock:", err)
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, lock.ErrNotHeld) {
			s.log.Println("sweeper: release lock:", err)
		}
	}()

	n, err := s.manager.SweepExpired(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Println("sweeper:", err)
	}
	if n > 0 {
		s.log.Printf("sweeper completed %d expired rooms", n)
	}
}
