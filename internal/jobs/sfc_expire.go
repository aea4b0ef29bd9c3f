// Package jobs defines River Queue job types for durable background work.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
)

const (
	// sfcExpireTimeout bounds one cleanup including the drain of retired instances.
	sfcExpireTimeout = 5 * time.Minute
	// allocatingSnooze delays expiry of a chain still being allocated.
	allocatingSnooze = 10 * time.Second
)

// SFCExpireArgs releases a chain when its lease ends.
type SFCExpireArgs struct {
	SFCID string `json:"sfc_id"`
}

// Kind returns the job kind identifier for lease expiry.
func (SFCExpireArgs) Kind() string { return "sfc_expire" }

// InsertOpts keeps one pending expiry per chain.
func (SFCExpireArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 5,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
		},
	}
}

// Cleaner releases a chain.
type Cleaner interface {
	Cleanup(ctx context.Context, sfcID string) error
}

// SFCExpireWorker runs Cleanup for expired leases.
type SFCExpireWorker struct {
	river.WorkerDefaults[SFCExpireArgs]
	cleaner Cleaner
}

// NewSFCExpireWorker creates the worker.
func NewSFCExpireWorker(cleaner Cleaner) *SFCExpireWorker {
	return &SFCExpireWorker{cleaner: cleaner}
}

// Timeout overrides River's default job timeout.
func (w *SFCExpireWorker) Timeout(*river.Job[SFCExpireArgs]) time.Duration {
	return sfcExpireTimeout
}

// Work cleans the chain up. Unknown chains cancel the job; chains still
// allocating are retried shortly.
func (w *SFCExpireWorker) Work(ctx context.Context, job *river.Job[SFCExpireArgs]) error {
	if w == nil || w.cleaner == nil {
		return fmt.Errorf("sfc expire worker is not initialized")
	}
	sfcID := job.Args.SFCID
	if sfcID == "" {
		return river.JobCancel(fmt.Errorf("sfc expire job %d has no sfc_id", job.ID))
	}

	err := w.cleaner.Cleanup(ctx, sfcID)
	switch {
	case err == nil:
		logger.Info("SFC lease expired",
			zap.String("sfc_id", sfcID),
			zap.Int64("job_id", job.ID),
		)
		return nil
	case apperrors.HasCode(err, apperrors.CodeSFCNotFound):
		return river.JobCancel(err)
	case apperrors.HasCode(err, apperrors.CodeSFCNotActive):
		return river.JobSnooze(allocatingSnooze)
	default:
		return fmt.Errorf("expire sfc %s: %w", sfcID, err)
	}
}

// Inserter enqueues jobs. *river.Client[pgx.Tx] satisfies it.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// RiverScheduler schedules lease expiry as durable sfc_expire jobs.
type RiverScheduler struct {
	client Inserter
}

// NewRiverScheduler creates a scheduler on a River client.
func NewRiverScheduler(client Inserter) *RiverScheduler {
	return &RiverScheduler{client: client}
}

// ScheduleExpiry inserts an sfc_expire job that becomes available at at.
func (s *RiverScheduler) ScheduleExpiry(ctx context.Context, sfcID string, at time.Time) error {
	opts := SFCExpireArgs{}.InsertOpts()
	opts.ScheduledAt = at
	res, err := s.client.Insert(ctx, SFCExpireArgs{SFCID: sfcID}, &opts)
	if err != nil {
		return fmt.Errorf("insert sfc_expire job: %w", err)
	}
	logger.Debug("SFC expiry scheduled",
		zap.String("sfc_id", sfcID),
		zap.Int64("job_id", res.Job.ID),
		zap.Time("scheduled_at", at),
	)
	return nil
}
