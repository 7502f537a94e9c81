package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/ids"
	"incentivos/api/internal/metrics"
	"incentivos/api/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AuditService writes the append-only audit trail. Writes happen after the
// business transaction commits and never fail the caller: a row that cannot
// be stored is logged, counted and parked on the dead-letter stream.
type AuditService struct {
	store      AuditStore
	users      UserStore
	deadLetter DeadLetter
	log        zerolog.Logger
	now        func() time.Time
}

func NewAuditService(store AuditStore, users UserStore, deadLetter DeadLetter, log zerolog.Logger) *AuditService {
	return &AuditService{
		store:      store,
		users:      users,
		deadLetter: deadLetter,
		log:        log,
		now:        time.Now,
	}
}

func (s *AuditService) LogAction(ctx context.Context, actorID int64, entry models.AuditEntry) {
	ctx = context.WithoutCancel(ctx)
	snapshot := s.actorSnapshot(ctx, actorID)

	row, err := s.buildLog(actorID, snapshot, nil, s.now(), entry)
	if err != nil {
		s.log.Error().Err(err).Str("modelo", entry.Model).Str("entidad_id", entry.EntityID).Msg("audit entry rejected")
		return
	}

	if _, err := s.store.Create(ctx, row); err != nil {
		s.fallback(ctx, err, []models.AuditLog{row})
	}
}

// LogActionsBatch stores entries in one transaction. They share the actor
// snapshot, the timestamp and a batch id.
func (s *AuditService) LogActionsBatch(ctx context.Context, actorID int64, entries []models.AuditEntry) {
	if len(entries) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	snapshot := s.actorSnapshot(ctx, actorID)
	batchID := ids.New()
	at := s.now()

	rows := make([]models.AuditLog, 0, len(entries))
	for _, entry := range entries {
		row, err := s.buildLog(actorID, snapshot, &batchID, at, entry)
		if err != nil {
			s.log.Error().Err(err).Str("modelo", entry.Model).Str("entidad_id", entry.EntityID).Msg("audit entry rejected")
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return
	}

	if _, err := s.store.CreateBatch(ctx, rows); err != nil {
		s.fallback(ctx, err, rows)
	}
}

// Replay writes dead-lettered rows back. Unlike LogAction it reports errors,
// so the worker can leave the messages pending. Every row must carry a
// ReplayKey; rows whose key is already stored are skipped.
func (s *AuditService) Replay(ctx context.Context, rows []models.AuditLog) error {
	if len(rows) == 0 {
		return nil
	}
	inserted, err := s.store.CreateReplayed(ctx, rows)
	if err != nil {
		return fmt.Errorf("replay audit rows: %w", err)
	}
	if skipped := int64(len(rows)) - inserted; skipped > 0 {
		s.log.Info().Int64("skipped", skipped).Msg("audit rows already replayed")
	}
	metrics.AuditReplayed.Add(float64(inserted))
	return nil
}

func (s *AuditService) Search(ctx context.Context, filter models.AuditFilter, page, pageSize int) (models.Page[models.AuditLog], error) {
	page, pageSize = normalizePage(page, pageSize)
	if filter.Action != nil && !filter.Action.Valid() {
		return models.Page[models.AuditLog]{}, apperr.Validation("Acción de auditoría no válida")
	}

	rows, total, err := s.store.Search(ctx, filter, page, pageSize)
	if err != nil {
		return models.Page[models.AuditLog]{}, repoErr("Error al consultar auditoría", err)
	}
	if rows == nil {
		rows = []models.AuditLog{}
	}
	return models.NewPage(rows, total, page, pageSize), nil
}

func (s *AuditService) ListByDay(ctx context.Context, day time.Time) ([]models.AuditLog, error) {
	rows, err := s.store.ListByDay(ctx, day)
	if err != nil {
		return nil, repoErr("Error al consultar auditoría", err)
	}
	return rows, nil
}

// actorSnapshot returns nil when the actor cannot be loaded; the entry is
// still written.
func (s *AuditService) actorSnapshot(ctx context.Context, actorID int64) json.RawMessage {
	user, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		s.log.Debug().Err(err).Int64("actor_id", actorID).Msg("audit actor snapshot unavailable")
		return nil
	}
	raw, err := json.Marshal(user.Snapshot())
	if err != nil {
		return nil
	}
	return raw
}

func (s *AuditService) buildLog(actorID int64, snapshot json.RawMessage, batchID *string, at time.Time, entry models.AuditEntry) (models.AuditLog, error) {
	if !entry.Action.Valid() {
		return models.AuditLog{}, fmt.Errorf("invalid audit action %q", entry.Action)
	}

	prior, err := marshalData(entry.Prior)
	if err != nil {
		return models.AuditLog{}, fmt.Errorf("encode prior data: %w", err)
	}
	next, err := marshalData(entry.New)
	if err != nil {
		return models.AuditLog{}, fmt.Errorf("encode new data: %w", err)
	}

	switch entry.Action {
	case models.AuditCreate:
		prior = nil
	case models.AuditDelete:
		next = nil
	case models.AuditUpdate:
		if prior == nil || next == nil {
			s.log.Warn().Str("modelo", entry.Model).Str("entidad_id", entry.EntityID).Msg("update audited without both states")
		}
	}

	return models.AuditLog{
		Model:     entry.Model,
		EntityID:  entry.EntityID,
		Action:    entry.Action,
		PriorData: prior,
		NewData:   next,
		ActorID:   actorID,
		ActorSnap: snapshot,
		BatchID:   batchID,
		CreatedAt: at,
	}, nil
}

func (s *AuditService) fallback(ctx context.Context, cause error, rows []models.AuditLog) {
	metrics.AuditWriteFailures.WithLabelValues("write").Add(float64(len(rows)))
	s.log.Error().Err(cause).Int("rows", len(rows)).Str("modelo", rows[0].Model).Msg("audit write failed")

	if s.deadLetter == nil {
		return
	}
	if err := s.deadLetter.PushAudit(ctx, rows); err != nil {
		metrics.AuditWriteFailures.WithLabelValues("deadletter").Add(float64(len(rows)))
		s.log.Error().Err(err).Int("rows", len(rows)).Msg("audit dead-letter push failed")
	}
}

func marshalData(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
