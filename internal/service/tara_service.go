package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/models"
	"incentivos/api/internal/repository"
	"incentivos/api/internal/weights"
)

type TaraService struct {
	taras TaraStore
	tx    Transactor
	audit Auditor
	log   zerolog.Logger
}

func NewTaraService(taras TaraStore, tx Transactor, audit Auditor, log zerolog.Logger) *TaraService {
	return &TaraService{taras: taras, tx: tx, audit: audit, log: log}
}

type TaraInput struct {
	Nombre      string          `json:"nombre"`
	Descripcion *string         `json:"descripcion"`
	PesoKg      decimal.Decimal `json:"peso_kg"`
}

func (s *TaraService) Create(ctx context.Context, actorID int64, input TaraInput) (models.Tara, error) {
	input.Nombre = strings.TrimSpace(input.Nombre)
	if input.Nombre == "" {
		return models.Tara{}, apperr.Validation("El nombre de la tara es obligatorio")
	}
	if !input.PesoKg.IsPositive() {
		return models.Tara{}, apperr.Validation("El peso debe ser mayor que cero.")
	}

	created, err := s.taras.Create(ctx, models.Tara{
		Nombre:      input.Nombre,
		Descripcion: input.Descripcion,
		PesoKg:      weights.Round(input.PesoKg),
		IsActive:    true,
	})
	if err != nil {
		return models.Tara{}, repoErr("Error al crear tara", err)
	}

	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditCreate,
		Model:    models.AuditModelTara,
		EntityID: strconv.FormatInt(created.ID, 10),
		New:      created.Snapshot(),
	})
	return created, nil
}

func (s *TaraService) List(ctx context.Context, onlyActive bool) ([]models.Tara, error) {
	taras, err := s.taras.List(ctx, onlyActive)
	if err != nil {
		return nil, repoErr("Error al consultar taras", err)
	}
	if taras == nil {
		taras = []models.Tara{}
	}
	return taras, nil
}

func (s *TaraService) Get(ctx context.Context, id int64) (models.Tara, error) {
	tara, err := s.taras.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTaraNotFound) {
			return models.Tara{}, errTaraNotFound
		}
		return models.Tara{}, repoErr("Error al consultar tara", err)
	}
	return tara, nil
}

// SetPrincipal marks one tare as the principal one. Clearing the previous
// principal and setting the new one happen in the same transaction, so at
// most one tare is principal at any time.
func (s *TaraService) SetPrincipal(ctx context.Context, actorID, id int64) (models.Tara, error) {
	var before, after models.Tara
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		before, err = s.taras.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrTaraNotFound) {
				return errTaraNotFound
			}
			return err
		}
		if !before.IsActive {
			return apperr.Validation("Una tara inactiva no puede ser principal")
		}
		after, err = s.taras.SetPrincipal(ctx, id)
		return err
	})
	if err != nil {
		return models.Tara{}, repoErr("Error al actualizar tara", err)
	}

	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditUpdate,
		Model:    models.AuditModelTara,
		EntityID: strconv.FormatInt(id, 10),
		Prior:    before.Snapshot(),
		New:      after.Snapshot(),
	})
	return after, nil
}
