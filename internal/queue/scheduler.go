package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/inful/docgen/internal/config"
	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/logfields"
	"github.com/inful/docgen/internal/metrics"
	"github.com/inful/docgen/internal/store"
)

// Handler executes one job's work and returns its result payload, or an
// error if the job failed.
type Handler func(ctx context.Context, job domain.Job) (map[string]any, error)

// Scheduler runs the worker loop: job polling, heartbeat, and stuck-job
// recovery, dispatching claimed jobs to registered Handlers by JobType —
// mirroring the teacher's worker-main dispatch table
// (JobType -> Handler) from the original Python implementation.
type Scheduler struct {
	queue    *Queue
	store    *store.Store
	workerID string
	cfg      config.WorkerConfig
	metrics  metrics.QueueRecorder

	handlers map[domain.JobType]Handler

	cron gocron.Scheduler
}

// NewScheduler builds a Scheduler. workerID identifies this process in
// claimed jobs' worker_id column and in heartbeat/recovery logs.
func NewScheduler(q *Queue, s *store.Store, workerID string, cfg config.WorkerConfig, rec metrics.QueueRecorder) (*Scheduler, error) {
	if rec == nil {
		rec = metrics.NoopQueueRecorder{}
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create cron scheduler: %w", err)
	}
	return &Scheduler{
		queue:    q,
		store:    s,
		workerID: workerID,
		cfg:      cfg,
		metrics:  rec,
		handlers: make(map[domain.JobType]Handler),
		cron:     cron,
	}, nil
}

// RegisterHandler binds a Handler to a JobType. The poll loop claims only
// job types that have a registered Handler; jobs of any other type stay
// PENDING.
func (s *Scheduler) RegisterHandler(jobType domain.JobType, h Handler) {
	s.handlers[jobType] = h
}

// Run starts the three cooperating tasks and blocks until ctx is
// cancelled: job polling (cfg.PollInterval), heartbeat
// (cfg.HeartbeatInterval), and stuck-job recovery
// (cfg.RecoveryInterval). The heartbeat only logs; it writes no liveness
// record. The recovery task treats a job as abandoned once it has been
// RUNNING longer than cfg.StuckJobThreshold, whatever its worker's state.
func (s *Scheduler) Run(ctx context.Context) error {
	unsubscribe := func() {}
	if s.queue.notifier != nil {
		unsubscribe = s.queue.notifier.Subscribe(func(jobType string) {
			s.pollOnce(ctx)
		})
	}
	defer unsubscribe()

	if _, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.HeartbeatInterval),
		gocron.NewTask(func() { s.heartbeat(ctx) }),
	); err != nil {
		return fmt.Errorf("schedule heartbeat: %w", err)
	}
	if _, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.RecoveryInterval),
		gocron.NewTask(func() { s.recover(ctx) }),
	); err != nil {
		return fmt.Errorf("schedule recovery: %w", err)
	}
	s.cron.Start()
	defer func() { _ = s.cron.Shutdown() }()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

// pollOnce claims and runs at most one job per registered type so a
// single poll tick can make progress across every job type without
// starving any one of them.
func (s *Scheduler) pollOnce(ctx context.Context) {
	for jobType := range s.handlers {
		job, err := s.queue.Claim(ctx, s.workerID, jobType)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			slog.Error("claim failed", logfields.Error(err), logfields.JobType(string(jobType)))
			s.metrics.IncClaimContention()
			continue
		}
		s.metrics.IncClaimSuccess(string(jobType))
		s.runJob(ctx, job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job domain.Job) {
	handler, ok := s.handlers[job.Type]
	if !ok {
		_ = s.queue.Fail(ctx, job.ID, fmt.Errorf("unknown job type %q", job.Type))
		s.metrics.IncJobOutcome(string(job.Type), metrics.ResultFatal)
		return
	}

	start := time.Now()
	result, err := handler(ctx, job)
	s.metrics.ObserveStageDuration(string(job.Type), time.Since(start))

	if err != nil {
		slog.Error("job failed", logfields.JobID(job.ID), logfields.JobType(string(job.Type)), logfields.Error(err))
		if failErr := s.queue.Fail(ctx, job.ID, err); failErr != nil {
			slog.Error("failed to record job failure", logfields.JobID(job.ID), logfields.Error(failErr))
		}
		s.metrics.IncJobOutcome(string(job.Type), metrics.ResultFatal)
		return
	}

	if err := s.queue.Complete(ctx, job.ID, result); err != nil {
		slog.Error("failed to record job completion", logfields.JobID(job.ID), logfields.Error(err))
		s.metrics.IncJobOutcome(string(job.Type), metrics.ResultFatal)
		return
	}
	s.metrics.IncJobOutcome(string(job.Type), metrics.ResultSuccess)
}

// heartbeat is a liveness marker; it currently just logs, since job
// liveness is inferred from started_at age by the recovery task rather
// than a separate worker-registry table.
func (s *Scheduler) heartbeat(ctx context.Context) {
	slog.Debug("worker heartbeat", logfields.Worker(s.workerID))
}

// recover resets jobs stuck RUNNING past cfg.StuckJobThreshold back to
// PENDING, so a worker that died mid-job doesn't strand it forever.
func (s *Scheduler) recover(ctx context.Context) {
	ids, err := s.store.FindStuckRunning(ctx, s.cfg.StuckJobThreshold)
	if err != nil {
		slog.Error("recovery scan failed", logfields.Error(err))
		return
	}
	for _, id := range ids {
		reason := fmt.Sprintf("stuck RUNNING past %s threshold, reset by recovery task", s.cfg.StuckJobThreshold)
		if err := s.store.ResetToPending(ctx, id, reason); err != nil {
			slog.Error("recovery reset failed", logfields.JobID(id), logfields.Error(err))
			continue
		}
		slog.Warn("reset stuck job to pending", logfields.JobID(id))
	}
}

// NewWorkerID generates an opaque worker identity for this process.
func NewWorkerID() string {
	return "worker-" + uuid.NewString()
}
