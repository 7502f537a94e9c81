package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/models"
	"incentivos/api/internal/repository"
	"incentivos/api/internal/weights"
)

var errEntradaNotFound = apperr.NotFound("La línea de entrada no existe")

// EntradaService owns the entry records of the production lines. Panza and
// grill code corrections follow the same transaction and audit rules as the
// exit records.
type EntradaService struct {
	entradas LineaEntradaStore
	tx       Transactor
	audit    Auditor
	log      zerolog.Logger
}

func NewEntradaService(entradas LineaEntradaStore, tx Transactor, audit Auditor, log zerolog.Logger) *EntradaService {
	return &EntradaService{entradas: entradas, tx: tx, audit: audit, log: log}
}

func (s *EntradaService) List(ctx context.Context, linea int, filter models.LineaFilter, page, pageSize int) (models.Page[models.LineaEntrada], error) {
	if err := checkLinea(linea); err != nil {
		return models.Page[models.LineaEntrada]{}, err
	}
	page, pageSize = normalizePage(page, pageSize)

	records, total, err := s.entradas.List(ctx, linea, filter, page, pageSize)
	if err != nil {
		return models.Page[models.LineaEntrada]{}, repoErr("Error al consultar registros de entrada", err)
	}
	return models.NewPage(records, total, page, pageSize), nil
}

func (s *EntradaService) Get(ctx context.Context, linea int, id int64) (models.LineaEntrada, error) {
	if err := checkLinea(linea); err != nil {
		return models.LineaEntrada{}, err
	}
	record, err := s.entradas.GetByID(ctx, linea, id)
	if err != nil {
		return models.LineaEntrada{}, s.notFound(err, "Error al consultar registro de entrada")
	}
	return record, nil
}

// AgregarPanza adds the same weight to every entry record of a date and lot,
// all in one transaction.
func (s *EntradaService) AgregarPanza(ctx context.Context, actorID int64, linea int, input PanzaInput) (int, error) {
	if err := checkLinea(linea); err != nil {
		return 0, err
	}
	filter, err := panzaFilter(input)
	if err != nil {
		return 0, err
	}
	model := models.EntradaAuditModel(linea)

	var entries []models.AuditEntry
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		entries = nil
		records, err := s.entradas.ListForUpdate(ctx, linea, filter)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return errPanzaSinRegistros
		}
		for _, before := range records {
			peso, err := weights.AddDelta(before.PesoKg, input.PesoKg)
			if err != nil {
				return errPesoNoPositivo
			}
			after, err := s.entradas.UpdatePeso(ctx, linea, before.ID, peso)
			if err != nil {
				return fmt.Errorf("registro %d: %w", before.ID, err)
			}
			entries = append(entries, models.AuditEntry{
				Action:   models.AuditUpdate,
				Model:    model,
				EntityID: strconv.FormatInt(before.ID, 10),
				Prior:    before.Snapshot(),
				New:      after.Snapshot(),
			})
		}
		return nil
	})
	if err != nil {
		return 0, repoErr("Error al aplicar panza", err)
	}

	s.log.Info().Int("linea", linea).Str("lote", filter.Lote).Int("registros", len(entries)).Msg("entry panza applied")
	s.audit.LogActionsBatch(ctx, actorID, entries)
	return len(entries), nil
}

// UpdateCodigoParrilla shifts both the grill code and the sequence code of an
// entry record by valor.
func (s *EntradaService) UpdateCodigoParrilla(ctx context.Context, actorID int64, linea int, id int64, valor int) (models.LineaEntrada, error) {
	if err := checkLinea(linea); err != nil {
		return models.LineaEntrada{}, err
	}
	if valor == 0 {
		return models.LineaEntrada{}, errValorCero
	}

	var before, after models.LineaEntrada
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		before, err = s.entradas.GetForUpdate(ctx, linea, id)
		if err != nil {
			return s.notFound(err, "Error al actualizar código de parrilla")
		}
		parrilla, err := addToCodigo(before.CodigoParrilla, valor, "parrilla")
		if err != nil {
			return err
		}
		secuencia, err := addToCodigo(before.CodigoSecuencia, valor, "secuencia")
		if err != nil {
			return err
		}
		after, err = s.entradas.UpdateCodigos(ctx, linea, id, parrilla, secuencia)
		return err
	})
	if err != nil {
		return models.LineaEntrada{}, repoErr("Error al actualizar código de parrilla", err)
	}

	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditUpdate,
		Model:    models.EntradaAuditModel(linea),
		EntityID: strconv.FormatInt(id, 10),
		Prior:    before.Snapshot(),
		New:      after.Snapshot(),
	})
	return after, nil
}

func (s *EntradaService) Remove(ctx context.Context, actorID int64, linea int, id int64) error {
	if err := checkLinea(linea); err != nil {
		return err
	}

	var before models.LineaEntrada
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		before, err = s.entradas.GetForUpdate(ctx, linea, id)
		if err != nil {
			return s.notFound(err, "Error al eliminar registro de entrada")
		}
		return s.entradas.Delete(ctx, linea, id)
	})
	if err != nil {
		return repoErr("Error al eliminar registro de entrada", err)
	}

	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditDelete,
		Model:    models.EntradaAuditModel(linea),
		EntityID: strconv.FormatInt(id, 10),
		Prior:    before.Snapshot(),
	})
	return nil
}

func (s *EntradaService) notFound(err error, msg string) error {
	if errors.Is(err, repository.ErrLineaNotFound) {
		return errEntradaNotFound
	}
	return repoErr(msg, err)
}
