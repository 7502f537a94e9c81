package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"incentivos/api/internal/database"
	"incentivos/api/internal/models"
)

var ErrRoleNotFound = errors.New("role not found")

type RoleRepository struct {
	db database.Querier
}

func NewRoleRepository(db database.Querier) *RoleRepository {
	return &RoleRepository{db: db}
}

// GetWithModules loads the role and every non-deleted permission-module row
// of it. Stored module and permission names must belong to the closed enums;
// anything else is reported as an error instead of being skipped.
func (r *RoleRepository) GetWithModules(ctx context.Context, roleID int64) (models.Role, error) {
	const roleQuery = `
		SELECT id_rol, nombre, descripcion, is_active, created_at, updated_at
		FROM roles
		WHERE id_rol = $1 AND deleted_at IS NULL
	`
	const modulesQuery = `
		SELECT id_permiso_modulo, id_rol, modulo, permisos, is_active
		FROM permisos_modulo
		WHERE id_rol = $1 AND deleted_at IS NULL
		ORDER BY id_permiso_modulo
	`

	q := database.From(ctx, r.db)

	var role models.Role
	if err := q.QueryRow(ctx, roleQuery, roleID).Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.IsActive,
		&role.CreatedAt,
		&role.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Role{}, ErrRoleNotFound
		}
		return models.Role{}, err
	}

	rows, err := q.Query(ctx, modulesQuery, roleID)
	if err != nil {
		return models.Role{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pm     models.PermissionModule
			module string
			perms  []string
		)
		if err := rows.Scan(&pm.ID, &pm.RoleID, &module, &perms, &pm.IsActive); err != nil {
			return models.Role{}, err
		}
		if pm.Module, err = models.ParseModule(module); err != nil {
			return models.Role{}, fmt.Errorf("permiso_modulo %d: %w", pm.ID, err)
		}
		if pm.Permissions, err = models.ParsePermissions(perms); err != nil {
			return models.Role{}, fmt.Errorf("permiso_modulo %d: %w", pm.ID, err)
		}
		role.Modules = append(role.Modules, pm)
	}
	if err := rows.Err(); err != nil {
		return models.Role{}, err
	}
	return role, nil
}
