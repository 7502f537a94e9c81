package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"incentivos/api/internal/database"
	"incentivos/api/internal/models"
)

const auditColumns = `log_id, modelo, entidad_id, accion, datos_anteriores, datos_nuevos, ejecutado_por_id, ejecutado_por_json, lote_auditoria, fecha`

const insertAuditQuery = `
	INSERT INTO auditoria_logs (
		modelo, entidad_id, accion, datos_anteriores, datos_nuevos, ejecutado_por_id, ejecutado_por_json, lote_auditoria, fecha
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW())
	)
	RETURNING log_id, fecha
`

const replayAuditQuery = `
	INSERT INTO auditoria_logs (
		modelo, entidad_id, accion, datos_anteriores, datos_nuevos, ejecutado_por_id, ejecutado_por_json, lote_auditoria, fecha, clave_reintento
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()), $10
	)
	ON CONFLICT (clave_reintento) DO NOTHING
`

// AuditRepository is append-only.
type AuditRepository struct {
	db database.Querier
	tx *database.Transactor
}

func NewAuditRepository(db database.Querier) *AuditRepository {
	return &AuditRepository{db: db, tx: database.NewTransactor(db)}
}

func (r *AuditRepository) Create(ctx context.Context, entry models.AuditLog) (models.AuditLog, error) {
	return r.insert(ctx, database.From(ctx, r.db), entry)
}

// CreateBatch writes all entries in one transaction; either every row lands
// or none does.
func (r *AuditRepository) CreateBatch(ctx context.Context, entries []models.AuditLog) ([]models.AuditLog, error) {
	stored := make([]models.AuditLog, 0, len(entries))
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := database.From(ctx, r.db)
		for _, entry := range entries {
			created, err := r.insert(ctx, q, entry)
			if err != nil {
				return err
			}
			stored = append(stored, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// CreateReplayed writes dead-lettered rows in one transaction, skipping keys
// that already landed. It returns how many rows were new.
func (r *AuditRepository) CreateReplayed(ctx context.Context, entries []models.AuditLog) (int64, error) {
	var inserted int64
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		inserted = 0
		q := database.From(ctx, r.db)
		for _, entry := range entries {
			if entry.ReplayKey == nil {
				return fmt.Errorf("replay audit row %s/%s: missing replay key", entry.Model, entry.EntityID)
			}
			var at *time.Time
			if !entry.CreatedAt.IsZero() {
				at = &entry.CreatedAt
			}
			cmd, err := q.Exec(ctx, replayAuditQuery,
				entry.Model,
				entry.EntityID,
				string(entry.Action),
				entry.PriorData,
				entry.NewData,
				entry.ActorID,
				entry.ActorSnap,
				entry.BatchID,
				at,
				*entry.ReplayKey,
			)
			if err != nil {
				return fmt.Errorf("replay audit log: %w", err)
			}
			inserted += cmd.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *AuditRepository) insert(ctx context.Context, q database.Querier, entry models.AuditLog) (models.AuditLog, error) {
	var at *time.Time
	if !entry.CreatedAt.IsZero() {
		at = &entry.CreatedAt
	}
	if err := q.QueryRow(ctx, insertAuditQuery,
		entry.Model,
		entry.EntityID,
		string(entry.Action),
		entry.PriorData,
		entry.NewData,
		entry.ActorID,
		entry.ActorSnap,
		entry.BatchID,
		at,
	).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return models.AuditLog{}, fmt.Errorf("insert audit log: %w", err)
	}
	return entry, nil
}

func auditWhere(filter models.AuditFilter) (string, []any) {
	where := " WHERE 1=1"
	args := []any{}
	argCount := 1

	if filter.ActorID != nil {
		where += fmt.Sprintf(" AND ejecutado_por_id = $%d", argCount)
		args = append(args, *filter.ActorID)
		argCount++
	}
	if filter.Action != nil {
		where += fmt.Sprintf(" AND accion = $%d", argCount)
		args = append(args, string(*filter.Action))
		argCount++
	}
	if filter.Model != "" {
		where += fmt.Sprintf(" AND modelo = $%d", argCount)
		args = append(args, filter.Model)
		argCount++
	}
	if filter.Date != nil {
		where += fmt.Sprintf(" AND fecha::date = $%d::date", argCount)
		args = append(args, filter.Date.Format(time.DateOnly))
	}
	return where, args
}

func (r *AuditRepository) Count(ctx context.Context, filter models.AuditFilter) (int64, error) {
	where, args := auditWhere(filter)
	var total int64
	if err := database.From(ctx, r.db).QueryRow(ctx, `SELECT COUNT(*) FROM auditoria_logs`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count audit logs: %w", err)
	}
	return total, nil
}

// Search returns one page ordered newest first together with the total
// number of matching rows.
func (r *AuditRepository) Search(ctx context.Context, filter models.AuditFilter, page, pageSize int) ([]models.AuditLog, int64, error) {
	total, err := r.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.AuditLog{}, 0, nil
	}

	where, args := auditWhere(filter)
	args = append(args, pageSize, (page-1)*pageSize)
	query := `SELECT ` + auditColumns + ` FROM auditoria_logs` + where +
		fmt.Sprintf(" ORDER BY fecha DESC, log_id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	logs, err := r.queryLogs(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// ListByDay returns every entry written on day, oldest first.
func (r *AuditRepository) ListByDay(ctx context.Context, day time.Time) ([]models.AuditLog, error) {
	const query = `SELECT ` + auditColumns + ` FROM auditoria_logs WHERE fecha::date = $1::date ORDER BY log_id`
	return r.queryLogs(ctx, query, day.Format(time.DateOnly))
}

func (r *AuditRepository) queryLogs(ctx context.Context, query string, args ...any) ([]models.AuditLog, error) {
	rows, err := database.From(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func scanAudit(row pgx.Row) (models.AuditLog, error) {
	var (
		entry  models.AuditLog
		action string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.Model,
		&entry.EntityID,
		&action,
		&entry.PriorData,
		&entry.NewData,
		&entry.ActorID,
		&entry.ActorSnap,
		&entry.BatchID,
		&entry.CreatedAt,
	); err != nil {
		return models.AuditLog{}, err
	}
	entry.Action = models.AuditAction(action)
	return entry, nil
}
