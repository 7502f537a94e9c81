package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"incentivos/api/internal/database"
	"incentivos/api/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

const userColumns = `id_usuario, username, password_hash, id_rol, is_superuser, is_active, last_login, created_at, updated_at, deleted_at`

type UserRepository struct {
	db database.Querier
}

func NewUserRepository(db database.Querier) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO usuarios (
			username, password_hash, id_rol, is_superuser, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW(), NOW()
		)
		RETURNING ` + userColumns

	row := database.From(ctx, r.db).QueryRow(ctx, query,
		user.Username,
		user.PasswordHash,
		user.RoleID,
		user.IsSuperuser,
		user.IsActive,
	)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, err
	}
	return created, nil
}

// GetByUsername ignores soft-deleted users.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM usuarios WHERE username = $1 AND deleted_at IS NULL`
	return scanUser(database.From(ctx, r.db).QueryRow(ctx, query, username))
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM usuarios WHERE id_usuario = $1 AND deleted_at IS NULL`
	return scanUser(database.From(ctx, r.db).QueryRow(ctx, query, id))
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64) error {
	const query = `UPDATE usuarios SET last_login = NOW(), updated_at = NOW() WHERE id_usuario = $1`
	_, err := database.From(ctx, r.db).Exec(ctx, query, id)
	return err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) (models.User, error) {
	const query = `
		UPDATE usuarios SET password_hash = $2, updated_at = NOW()
		WHERE id_usuario = $1 AND deleted_at IS NULL
		RETURNING ` + userColumns
	return scanUser(database.From(ctx, r.db).QueryRow(ctx, query, id, passwordHash))
}

// SoftDelete deactivates the user and stamps deleted_at.
func (r *UserRepository) SoftDelete(ctx context.Context, id int64) error {
	const query = `
		UPDATE usuarios SET is_active = FALSE, deleted_at = NOW(), updated_at = NOW()
		WHERE id_usuario = $1 AND deleted_at IS NULL
	`
	cmd, err := database.From(ctx, r.db).Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListLineIDs returns the external production-line ids assigned to a user.
func (r *UserRepository) ListLineIDs(ctx context.Context, userID int64) ([]int64, error) {
	const query = `
		SELECT id_linea_externa FROM usuario_lineas_asignadas
		WHERE id_usuario = $1
		ORDER BY id_linea_externa
	`
	rows, err := database.From(ctx, r.db).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		lines = append(lines, id)
	}
	return lines, rows.Err()
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.RoleID,
		&user.IsSuperuser,
		&user.IsActive,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}
