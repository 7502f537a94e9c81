package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"incentivos/api/internal/metrics"
	"incentivos/api/internal/models"
	"incentivos/api/internal/queue"
)

type SessionSweeper interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

type AuditReplayer interface {
	Replay(ctx context.Context, rows []models.AuditLog) error
}

type DeadLetterSource interface {
	Read(ctx context.Context, count int64) ([]queue.DeadLetter, error)
	Remove(ctx context.Context, ids ...string) error
}

type AuditExporter interface {
	ExportAuditDay(ctx context.Context, day time.Time) (string, error)
}

type Processor struct {
	sessions    SessionSweeper
	replayer    AuditReplayer
	deadLetters DeadLetterSource
	exporter    AuditExporter
	replayBatch int64
	logger      zerolog.Logger
	now         func() time.Time
}

func NewProcessor(
	sessions SessionSweeper,
	replayer AuditReplayer,
	deadLetters DeadLetterSource,
	exporter AuditExporter,
	replayBatch int64,
	logger zerolog.Logger,
) *Processor {
	if replayBatch <= 0 {
		replayBatch = 100
	}
	return &Processor{
		sessions:    sessions,
		replayer:    replayer,
		deadLetters: deadLetters,
		exporter:    exporter,
		replayBatch: replayBatch,
		logger:      logger,
		now:         time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var task queue.Task
	if err := decodePayload(msg.Values, &task); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	var err error
	switch task.Type {
	case queue.TaskSessionCleanup:
		err = p.handleSessionCleanup(ctx)
	case queue.TaskAuditReplay:
		err = p.handleAuditReplay(ctx)
	case queue.TaskAuditExport:
		err = p.handleAuditExport(ctx, task)
	default:
		p.logger.Warn().Str("type", string(task.Type)).Msg("unknown task type")
		return nil
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.TasksProcessed.WithLabelValues(string(task.Type), result).Inc()
	return err
}

func decodePayload(values map[string]interface{}, out *queue.Task) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleSessionCleanup(ctx context.Context) error {
	n, err := p.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		return err
	}
	p.logger.Info().Int64("sessions", n).Msg("expired sessions swept")
	return nil
}

// handleAuditReplay drains the dead-letter stream one batch at a time. A
// batch is removed only after it was written.
func (p *Processor) handleAuditReplay(ctx context.Context) error {
	total := 0
	for {
		letters, err := p.deadLetters.Read(ctx, p.replayBatch)
		if err != nil {
			return err
		}
		if len(letters) == 0 {
			break
		}

		ids := make([]string, 0, len(letters))
		rows := make([]models.AuditLog, 0, len(letters))
		for _, l := range letters {
			ids = append(ids, l.ID)
			if l.Log.Model == "" || !l.Log.Action.Valid() {
				p.logger.Warn().Str("message_id", l.ID).Msg("dropping undecodable audit dead letter")
				continue
			}
			row := l.Log
			key := l.ID
			row.ReplayKey = &key
			rows = append(rows, row)
		}

		if err := p.replayer.Replay(ctx, rows); err != nil {
			return err
		}
		if err := p.deadLetters.Remove(ctx, ids...); err != nil {
			return fmt.Errorf("remove replayed dead letters: %w", err)
		}
		total += len(rows)

		if int64(len(letters)) < p.replayBatch {
			break
		}
	}
	if total > 0 {
		p.logger.Info().Int("rows", total).Msg("audit dead letters replayed")
	}
	return nil
}

// handleAuditExport exports task.Day, or yesterday when the task carries no
// day.
func (p *Processor) handleAuditExport(ctx context.Context, task queue.Task) error {
	day := p.now().UTC().AddDate(0, 0, -1)
	if task.Day != "" {
		parsed, err := time.Parse(time.DateOnly, task.Day)
		if err != nil {
			p.logger.Warn().Str("day", task.Day).Msg("invalid export day")
			return nil
		}
		day = parsed
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	_, err := p.exporter.ExportAuditDay(ctx, day)
	return err
}
