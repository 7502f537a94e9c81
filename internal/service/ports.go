package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/models"
)

// The stores below are satisfied by the repository package. Services depend
// on these narrow views so tests can swap in memory fakes.

type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, id int64) (models.User, error)
	UpdateLastLogin(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) (models.User, error)
	SoftDelete(ctx context.Context, id int64) error
	ListLineIDs(ctx context.Context, userID int64) ([]int64, error)
}

type RoleStore interface {
	GetWithModules(ctx context.Context, roleID int64) (models.Role, error)
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) (models.Session, error)
	GetByToken(ctx context.Context, token string) (models.Session, error)
	GetByID(ctx context.Context, id int64) (models.Session, error)
	ListActiveByUser(ctx context.Context, userID int64) ([]models.Session, error)
	Update(ctx context.Context, id int64, upd models.SessionUpdate) (models.Session, error)
	SoftDelete(ctx context.Context, id int64) error
	InvalidateByToken(ctx context.Context, token string) error
	InvalidateAllByUser(ctx context.Context, userID int64) (int64, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

type AuditStore interface {
	Create(ctx context.Context, entry models.AuditLog) (models.AuditLog, error)
	CreateBatch(ctx context.Context, entries []models.AuditLog) ([]models.AuditLog, error)
	CreateReplayed(ctx context.Context, entries []models.AuditLog) (int64, error)
	Search(ctx context.Context, filter models.AuditFilter, page, pageSize int) ([]models.AuditLog, int64, error)
	ListByDay(ctx context.Context, day time.Time) ([]models.AuditLog, error)
}

type LineaSalidaStore interface {
	GetByID(ctx context.Context, linea int, id int64) (models.LineaSalida, error)
	GetForUpdate(ctx context.Context, linea int, id int64) (models.LineaSalida, error)
	List(ctx context.Context, linea int, filter models.LineaFilter, page, pageSize int) ([]models.LineaSalida, int64, error)
	ListForUpdate(ctx context.Context, linea int, filter models.LineaFilter) ([]models.LineaSalida, error)
	ListByIDsForUpdate(ctx context.Context, linea int, ids []int64) ([]models.LineaSalida, error)
	UpdatePeso(ctx context.Context, linea int, id int64, peso decimal.Decimal) (models.LineaSalida, error)
	UpdateCodigoParrilla(ctx context.Context, linea int, id int64, codigo string) (models.LineaSalida, error)
	UpdateLote(ctx context.Context, linea int, ids []int64, lote string) ([]models.LineaSalida, error)
	Delete(ctx context.Context, linea int, id int64) error
}

type LineaEntradaStore interface {
	GetByID(ctx context.Context, linea int, id int64) (models.LineaEntrada, error)
	GetForUpdate(ctx context.Context, linea int, id int64) (models.LineaEntrada, error)
	List(ctx context.Context, linea int, filter models.LineaFilter, page, pageSize int) ([]models.LineaEntrada, int64, error)
	ListForUpdate(ctx context.Context, linea int, filter models.LineaFilter) ([]models.LineaEntrada, error)
	UpdatePeso(ctx context.Context, linea int, id int64, peso decimal.Decimal) (models.LineaEntrada, error)
	UpdateCodigos(ctx context.Context, linea int, id int64, parrilla, secuencia string) (models.LineaEntrada, error)
	Delete(ctx context.Context, linea int, id int64) error
}

type TaraStore interface {
	Create(ctx context.Context, tara models.Tara) (models.Tara, error)
	GetByID(ctx context.Context, id int64) (models.Tara, error)
	List(ctx context.Context, onlyActive bool) ([]models.Tara, error)
	SetPrincipal(ctx context.Context, id int64) (models.Tara, error)
}

type MigaStore interface {
	GetByRegistro(ctx context.Context, linea int, registro int64) (models.Miga, error)
	Create(ctx context.Context, miga models.Miga) (models.Miga, error)
	Update(ctx context.Context, id int64, pMiga, porcentaje decimal.Decimal) (models.Miga, error)
	ListByRegistros(ctx context.Context, linea int, registros []int64) ([]models.Miga, error)
}

// Transactor runs fn inside one database transaction bound to ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Auditor records mutations after they commit. Implementations never fail the
// caller.
type Auditor interface {
	LogAction(ctx context.Context, actorID int64, entry models.AuditEntry)
	LogActionsBatch(ctx context.Context, actorID int64, entries []models.AuditEntry)
}

// DeadLetter parks audit rows that could not be written so they can be
// replayed later.
type DeadLetter interface {
	PushAudit(ctx context.Context, logs []models.AuditLog) error
}

// repoErr passes taxonomy errors through and hides everything else behind a
// repository error carrying msg.
func repoErr(msg string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Repository(msg, err)
}

func checkLinea(linea int) error {
	if !models.ValidLinea(linea) {
		return apperr.Validation("Línea de producción no válida")
	}
	return nil
}
