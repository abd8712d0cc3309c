// Package jobs runs deferred work out of the durable queue.
//
// Nothing about the queue lives in process memory: a crash between selecting
// a due job and finalizing it leaves the row pending, and the next tick after
// restart picks it up again. At-least-once execution is the accepted
// tradeoff.
package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"wardenbot/internal/metrics"
	"wardenbot/internal/storage"
)

// JobStore is the slice of the store the scheduler owns. No row is ever
// mutated by anything but the scheduler once it is enqueued.
type JobStore interface {
	CreateJob(ctx context.Context, job *storage.Job) error
	DueJobs(ctx context.Context, now time.Time) ([]storage.Job, error)
	FinishJob(ctx context.Context, id string, status storage.JobStatus, executedAt time.Time) error
	DeleteJob(ctx context.Context, id string) error
}

type Scheduler struct {
	store    JobStore
	registry *Registry
	interval time.Duration
	log      zerolog.Logger

	// tickMu makes ticks single-flight: a tick that outlives the interval
	// causes the next one to be skipped, never overlapped.
	tickMu sync.Mutex
}

func NewScheduler(store JobStore, registry *Registry, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{store: store, registry: registry, interval: interval, log: log}
}

// Run ticks on the configured interval until ctx is cancelled. A job that is
// mid-execution at shutdown finishes (the tick runs on an uncancellable
// context); Run returns between ticks.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("job scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Drain anything that came due while the process was down.
	s.tick(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("job scheduler stopped")
			return
		case <-ticker.C:
			s.tick(context.WithoutCancel(ctx))
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.Tick(ctx, time.Now().UTC()); err != nil {
		s.log.Error().Err(err).Msg("scheduler tick failed")
	}
}

// Tick selects and executes every due pending job. A selection error aborts
// the tick with no side effects; one job's failure never stops the rest of
// the batch.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	if !s.tickMu.TryLock() {
		metrics.SchedulerTicksTotal.WithLabelValues("skipped").Inc()
		s.log.Warn().Msg("previous tick still running; skipping")
		return nil
	}
	defer s.tickMu.Unlock()

	due, err := s.store.DueJobs(ctx, now)
	if err != nil {
		metrics.SchedulerTicksTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("select due jobs: %w", err)
	}
	metrics.SchedulerTicksTotal.WithLabelValues("ok").Inc()
	if len(due) == 0 {
		return nil
	}

	s.log.Debug().Int("count", len(due)).Msg("due jobs selected")
	for _, job := range due {
		s.runJob(ctx, job, now)
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job storage.Job, now time.Time) {
	log := s.log.With().Str("job_id", job.ID).Str("type", job.Description).Logger()

	execErr := s.execute(ctx, job)
	if execErr != nil {
		// Failed jobs are retained for operator inspection; no retry.
		metrics.JobsExecutedTotal.WithLabelValues("failed").Inc()
		log.Error().Err(execErr).Msg("job failed")
		if err := s.store.FinishJob(ctx, job.ID, storage.JobFailed, now); err != nil {
			// Row stays pending and will run again next tick.
			log.Error().Err(err).Msg("failed to record job failure")
		}
		return
	}

	metrics.JobsExecutedTotal.WithLabelValues("completed").Inc()
	log.Info().Msg("job completed")
	if err := s.store.FinishJob(ctx, job.ID, storage.JobCompleted, now); err != nil {
		log.Error().Err(err).Msg("failed to record job completion")
		return
	}
	// Completed jobs are not retained.
	if err := s.store.DeleteJob(ctx, job.ID); err != nil {
		log.Warn().Err(err).Msg("failed to delete completed job")
	}

	if job.Recur != "" {
		s.scheduleNext(ctx, job, now, log)
	}
}

func (s *Scheduler) execute(ctx context.Context, job storage.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error().Str("job_id", job.ID).Any("panic", r).
				Str("stack", string(debug.Stack())).Msg("panic in job executor")
		}
	}()
	ex, err := s.registry.Get(job.Description)
	if err != nil {
		return err
	}
	return ex.Execute(ctx, job)
}

// scheduleNext enqueues the following occurrence of a recurring job as a
// fresh pending row, keeping the per-row pending→terminal state machine.
func (s *Scheduler) scheduleNext(ctx context.Context, job storage.Job, now time.Time, log zerolog.Logger) {
	sched, err := cron.ParseStandard(job.Recur)
	if err != nil {
		log.Error().Err(err).Str("recur", job.Recur).Msg("invalid recurrence; not rescheduled")
		return
	}
	next := &storage.Job{
		ID:          uuid.NewString(),
		Description: job.Description,
		Payload:     job.Payload,
		DueAt:       sched.Next(now),
		Recur:       job.Recur,
	}
	if err := s.store.CreateJob(ctx, next); err != nil {
		log.Error().Err(err).Msg("failed to enqueue next occurrence")
		return
	}
	log.Info().Time("due_at", next.DueAt).Str("next_id", next.ID).Msg("recurring job rescheduled")
}

// Enqueue is the producer-side helper: it assigns an id and validates the
// recurrence before writing the row.
func Enqueue(ctx context.Context, store JobStore, description, payload string, dueAt time.Time, recur string) (*storage.Job, error) {
	if recur != "" {
		if _, err := cron.ParseStandard(recur); err != nil {
			return nil, fmt.Errorf("invalid recurrence %q: %w", recur, err)
		}
	}
	job := &storage.Job{
		ID:          uuid.NewString(),
		Description: description,
		Payload:     payload,
		DueAt:       dueAt.UTC(),
		Recur:       recur,
	}
	if err := store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}
