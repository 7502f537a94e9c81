package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"incentivos/api/internal/config"
	"incentivos/api/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

// Scheduler only enqueues; the worker does the work so a slow sweep or export
// never runs inside the API process.
type Scheduler struct {
	cron  *cron.Cron
	queue Enqueuer
	cfg   config.JobsConfig
	log   zerolog.Logger
	now   func() time.Time
}

func NewScheduler(queue Enqueuer, cfg config.JobsConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:  c,
		queue: queue,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.SessionCleanupSpec, s.enqueueSessionCleanup); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.AuditExportSpec, s.enqueueAuditExport); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.AuditReplaySpec, s.enqueueAuditReplay); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits up to five seconds for running enqueues.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}

func (s *Scheduler) enqueueSessionCleanup() {
	s.enqueue(queue.Task{Type: queue.TaskSessionCleanup})
}

func (s *Scheduler) enqueueAuditReplay() {
	s.enqueue(queue.Task{Type: queue.TaskAuditReplay})
}

// enqueueAuditExport asks for the previous UTC day, which is complete by the
// time the nightly schedule fires.
func (s *Scheduler) enqueueAuditExport() {
	day := s.now().UTC().AddDate(0, 0, -1).Format(time.DateOnly)
	s.enqueue(queue.Task{Type: queue.TaskAuditExport, Day: day})
}

func (s *Scheduler) enqueue(task queue.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.queue.Enqueue(ctx, task); err != nil {
		s.log.Error().Err(err).Str("type", string(task.Type)).Msg("enqueue task failed")
	}
}
