package sfc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sri0013/vnf-project/internal/pkg/logger"
	"github.com/sri0013/vnf-project/internal/pkg/worker"
)

// Scheduler arranges for a chain to be cleaned up when its lease expires.
type Scheduler interface {
	ScheduleExpiry(ctx context.Context, sfcID string, at time.Time) error
}

// Cleaner releases an expired chain.
type Cleaner interface {
	Cleanup(ctx context.Context, sfcID string) error
}

// Detacher runs work outside the caller's context. *worker.Pools satisfies it.
type Detacher interface {
	SubmitDetached(poolName string, task worker.Task) error
}

// expiryTimeout bounds one lease cleanup.
const expiryTimeout = 2 * time.Minute

// TimerScheduler expires leases with in-process timers. Leases do not
// survive a restart; configure a database to get durable expiry jobs.
type TimerScheduler struct {
	cleaner Cleaner
	pools   Detacher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewTimerScheduler creates a scheduler. A nil pools runs cleanups on the
// timer goroutine.
func NewTimerScheduler(cleaner Cleaner, pools Detacher) *TimerScheduler {
	return &TimerScheduler{
		cleaner: cleaner,
		pools:   pools,
		timers:  make(map[string]*time.Timer),
	}
}

// ScheduleExpiry replaces any timer already pending for sfcID.
func (s *TimerScheduler) ScheduleExpiry(_ context.Context, sfcID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return worker.ErrPoolClosed
	}
	if t, ok := s.timers[sfcID]; ok {
		t.Stop()
	}
	s.timers[sfcID] = time.AfterFunc(time.Until(at), func() { s.fire(sfcID) })
	return nil
}

// Cancel drops a pending expiry.
func (s *TimerScheduler) Cancel(sfcID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sfcID]; ok {
		t.Stop()
		delete(s.timers, sfcID)
	}
}

// Pending returns the number of armed timers.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer. Leases still pending are left allocated.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *TimerScheduler) fire(sfcID string) {
	s.mu.Lock()
	delete(s.timers, sfcID)
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	run := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, expiryTimeout)
		defer cancel()
		if err := s.cleaner.Cleanup(ctx, sfcID); err != nil {
			logger.Error("Lease expiry cleanup failed",
				zap.String("sfc_id", sfcID),
				zap.Error(err),
			)
		}
	}
	if s.pools == nil {
		run(context.Background())
		return
	}
	if err := s.pools.SubmitDetached(worker.PoolGeneral, run); err != nil {
		logger.Warn("Lease expiry not submitted",
			zap.String("sfc_id", sfcID),
			zap.Error(err),
		)
	}
}
