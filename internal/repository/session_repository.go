package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"incentivos/api/internal/database"
	"incentivos/api/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `id_sesion, id_usuario, token, refresh_token, fecha_inicio, fecha_expiracion, ip_address, user_agent, is_active, created_at, updated_at`

// SessionRepository never deletes rows: every invalidation flips is_active.
type SessionRepository struct {
	db database.Querier
}

func NewSessionRepository(db database.Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) (models.Session, error) {
	const query = `
		INSERT INTO sesiones_usuario (
			id_usuario, token, refresh_token, fecha_inicio, fecha_expiracion, ip_address, user_agent, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, TRUE, NOW(), NOW()
		)
		RETURNING ` + sessionColumns

	row := database.From(ctx, r.db).QueryRow(ctx, query,
		session.UserID,
		session.Token,
		session.RefreshToken,
		session.StartedAt,
		session.ExpiresAt,
		session.IPAddress,
		session.UserAgent,
	)
	return scanSession(row)
}

// GetByToken only returns active rows.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sesiones_usuario WHERE token = $1 AND is_active = TRUE`
	return scanSession(database.From(ctx, r.db).QueryRow(ctx, query, token))
}

func (r *SessionRepository) GetByID(ctx context.Context, id int64) (models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sesiones_usuario WHERE id_sesion = $1`
	return scanSession(database.From(ctx, r.db).QueryRow(ctx, query, id))
}

func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID int64) ([]models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sesiones_usuario
		WHERE id_usuario = $1 AND is_active = TRUE AND fecha_expiracion > NOW()
		ORDER BY fecha_inicio DESC
	`
	rows, err := database.From(ctx, r.db).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Update applies the non-nil fields of upd and returns the stored row.
func (r *SessionRepository) Update(ctx context.Context, id int64, upd models.SessionUpdate) (models.Session, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if upd.Token != nil {
		add("token", *upd.Token)
	}
	if upd.RefreshToken != nil {
		add("refresh_token", *upd.RefreshToken)
	}
	if upd.ExpiresAt != nil {
		add("fecha_expiracion", *upd.ExpiresAt)
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}

	query := `UPDATE sesiones_usuario SET ` + strings.Join(sets, ", ") +
		` WHERE id_sesion = $1 RETURNING ` + sessionColumns
	return scanSession(database.From(ctx, r.db).QueryRow(ctx, query, args...))
}

func (r *SessionRepository) SoftDelete(ctx context.Context, id int64) error {
	const query = `UPDATE sesiones_usuario SET is_active = FALSE, updated_at = NOW() WHERE id_sesion = $1`
	cmd, err := database.From(ctx, r.db).Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// InvalidateByToken returns ErrSessionNotFound when no active row carries
// token. Only one of two concurrent callers can flip the same row.
func (r *SessionRepository) InvalidateByToken(ctx context.Context, token string) error {
	const query = `UPDATE sesiones_usuario SET is_active = FALSE, updated_at = NOW() WHERE token = $1 AND is_active = TRUE`
	cmd, err := database.From(ctx, r.db).Exec(ctx, query, token)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// InvalidateAllByUser is a single UPDATE so a concurrent login either lands
// before it and is revoked or after it and survives.
func (r *SessionRepository) InvalidateAllByUser(ctx context.Context, userID int64) (int64, error) {
	const query = `
		UPDATE sesiones_usuario SET is_active = FALSE, updated_at = NOW()
		WHERE id_usuario = $1 AND is_active = TRUE
	`
	cmd, err := database.From(ctx, r.db).Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	const query = `
		UPDATE sesiones_usuario SET is_active = FALSE, updated_at = NOW()
		WHERE fecha_expiracion < NOW() AND is_active = TRUE
	`
	cmd, err := database.From(ctx, r.db).Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanSession(row pgx.Row) (models.Session, error) {
	var session models.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.StartedAt,
		&session.ExpiresAt,
		&session.IPAddress,
		&session.UserAgent,
		&session.IsActive,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}
