package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/models"
	"incentivos/api/internal/repository"
	"incentivos/api/internal/security"
)

type UserService struct {
	users    UserStore
	roles    RoleStore
	sessions SessionStore
	tx       Transactor
	hasher   *security.PasswordHasher
	audit    Auditor
	log      zerolog.Logger
}

func NewUserService(
	users UserStore,
	roles RoleStore,
	sessions SessionStore,
	tx Transactor,
	hasher *security.PasswordHasher,
	audit Auditor,
	log zerolog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		roles:    roles,
		sessions: sessions,
		tx:       tx,
		hasher:   hasher,
		audit:    audit,
		log:      log,
	}
}

type CreateUserInput struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	RoleID      *int64 `json:"id_rol"`
	IsSuperuser bool   `json:"is_superuser"`
}

func (s *UserService) CreateUser(ctx context.Context, actorID int64, input CreateUserInput) (models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	if err := security.CheckUsername(input.Username); err != nil {
		return models.User{}, apperr.Validation("El username debe tener entre 3 y 50 caracteres alfanuméricos o guion bajo")
	}
	if err := security.CheckPassword(input.Password); err != nil {
		return models.User{}, apperr.Validation("La contraseña debe tener al menos 8 caracteres, una mayúscula, una minúscula y un número")
	}

	if input.RoleID != nil {
		role, err := s.roles.GetWithModules(ctx, *input.RoleID)
		if err != nil {
			if errors.Is(err, repository.ErrRoleNotFound) {
				return models.User{}, apperr.NotFound("Rol no encontrado")
			}
			return models.User{}, repoErr("Error al crear usuario", err)
		}
		if !role.IsActive {
			return models.User{}, apperr.Validation("El rol está inactivo")
		}
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return models.User{}, repoErr("Error al crear usuario", err)
	}

	created, err := s.users.Create(ctx, models.User{
		Username:     input.Username,
		PasswordHash: hash,
		RoleID:       input.RoleID,
		IsSuperuser:  input.IsSuperuser,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return models.User{}, apperr.AlreadyExists("El username ya está en uso")
		}
		return models.User{}, repoErr("Error al crear usuario", err)
	}

	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditCreate,
		Model:    models.AuditModelUsuario,
		EntityID: strconv.FormatInt(created.ID, 10),
		New:      created.Snapshot(),
	})
	return created, nil
}

// DeactivateUser soft-deletes the user and closes every open session in the
// same transaction.
func (s *UserService) DeactivateUser(ctx context.Context, actorID, userID int64) error {
	before, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.NotFound("Usuario no encontrado")
		}
		return repoErr("Error al eliminar usuario", err)
	}

	var closed int64
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.SoftDelete(ctx, userID); err != nil {
			return err
		}
		n, err := s.sessions.InvalidateAllByUser(ctx, userID)
		closed = n
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.NotFound("Usuario no encontrado")
		}
		return repoErr("Error al eliminar usuario", err)
	}

	s.log.Info().Int64("user_id", userID).Int64("sessions", closed).Msg("user deactivated")
	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditDelete,
		Model:    models.AuditModelUsuario,
		EntityID: strconv.FormatInt(userID, 10),
		Prior:    before.Snapshot(),
	})
	return nil
}

func (s *UserService) ChangePassword(ctx context.Context, actorID, userID int64, password string) error {
	if err := security.CheckPassword(password); err != nil {
		return apperr.Validation("La contraseña debe tener al menos 8 caracteres, una mayúscula, una minúscula y un número")
	}

	before, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.NotFound("Usuario no encontrado")
		}
		return repoErr("Error al actualizar contraseña", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return repoErr("Error al actualizar contraseña", err)
	}
	after, err := s.users.UpdatePassword(ctx, userID, hash)
	if err != nil {
		return repoErr("Error al actualizar contraseña", err)
	}

	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditUpdate,
		Model:    models.AuditModelUsuario,
		EntityID: strconv.FormatInt(userID, 10),
		Prior:    before.Snapshot(),
		New:      after.Snapshot(),
	})
	return nil
}

// ChangeOwnPassword requires the caller to prove the current password first.
func (s *UserService) ChangeOwnPassword(ctx context.Context, userID int64, current, password string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.NotFound("Usuario no encontrado")
		}
		return repoErr("Error al actualizar contraseña", err)
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return apperr.Validation("La contraseña actual es incorrecta")
	}
	return s.ChangePassword(ctx, userID, userID, password)
}
