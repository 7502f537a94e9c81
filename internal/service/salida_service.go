package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/models"
	"incentivos/api/internal/repository"
	"incentivos/api/internal/weights"
)

// SalidaService owns the exit records of the production lines and the weight
// corrections applied to them. Every correction runs in one transaction and
// is audited after it commits.
type SalidaService struct {
	salidas LineaSalidaStore
	taras   TaraStore
	migas   MigaStore
	tx      Transactor
	audit   Auditor
	log     zerolog.Logger
}

func NewSalidaService(
	salidas LineaSalidaStore,
	taras TaraStore,
	migas MigaStore,
	tx Transactor,
	audit Auditor,
	log zerolog.Logger,
) *SalidaService {
	return &SalidaService{
		salidas: salidas,
		taras:   taras,
		migas:   migas,
		tx:      tx,
		audit:   audit,
		log:     log,
	}
}

type PanzaInput struct {
	Fecha  time.Time       `json:"fecha"`
	Lote   string          `json:"lote"`
	PesoKg decimal.Decimal `json:"peso_kg"`
}

type MigaInput struct {
	Registro int64            `json:"linea_id"`
	PMiga    *decimal.Decimal `json:"p_miga"`
	TaraID   *int64           `json:"tara_id"`
}

var (
	errSalidaNotFound = apperr.NotFound("La línea de salida no existe")
	errTaraNotFound   = apperr.NotFound("La tara no existe")
	errMigaExists     = apperr.Validation("La miga ya existe")
	errMigaNotFound   = apperr.NotFound("La miga no existe")
)

// List joins each record of the page with its miga measurement.
func (s *SalidaService) List(ctx context.Context, linea int, filter models.LineaFilter, page, pageSize int) (models.Page[models.LineaSalidaMiga], error) {
	if err := checkLinea(linea); err != nil {
		return models.Page[models.LineaSalidaMiga]{}, err
	}
	page, pageSize = normalizePage(page, pageSize)

	records, total, err := s.salidas.List(ctx, linea, filter, page, pageSize)
	if err != nil {
		return models.Page[models.LineaSalidaMiga]{}, repoErr("Error al consultar registros de salida", err)
	}
	if len(records) == 0 {
		return models.NewPage([]models.LineaSalidaMiga{}, total, page, pageSize), nil
	}

	registros := make([]int64, len(records))
	for i, r := range records {
		registros[i] = r.ID
	}
	migas, err := s.migas.ListByRegistros(ctx, linea, registros)
	if err != nil {
		return models.Page[models.LineaSalidaMiga]{}, repoErr("Error al consultar registros de salida", err)
	}
	byRegistro := make(map[int64]models.Miga, len(migas))
	for _, m := range migas {
		byRegistro[m.Registro] = m
	}

	out := make([]models.LineaSalidaMiga, len(records))
	for i, r := range records {
		out[i] = models.LineaSalidaMiga{LineaSalida: r}
		if m, ok := byRegistro[r.ID]; ok {
			out[i].PMiga = m.PMiga
			out[i].Porcentaje = m.Porcentaje
		}
	}
	return models.NewPage(out, total, page, pageSize), nil
}

func (s *SalidaService) Get(ctx context.Context, linea int, id int64) (models.LineaSalida, error) {
	if err := checkLinea(linea); err != nil {
		return models.LineaSalida{}, err
	}
	record, err := s.salidas.GetByID(ctx, linea, id)
	if err != nil {
		return models.LineaSalida{}, s.notFound(err, "Error al consultar registro de salida")
	}
	return record, nil
}

// AgregarTara subtracts a tare from one record.
func (s *SalidaService) AgregarTara(ctx context.Context, actorID int64, linea int, id, taraID int64) (models.LineaSalida, error) {
	if err := checkLinea(linea); err != nil {
		return models.LineaSalida{}, err
	}

	var before, after models.LineaSalida
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		before, err = s.salidas.GetForUpdate(ctx, linea, id)
		if err != nil {
			return s.notFound(err, "Error al aplicar tara")
		}
		tara, err := s.taras.GetByID(ctx, taraID)
		if err != nil {
			if errors.Is(err, repository.ErrTaraNotFound) {
				return errTaraNotFound
			}
			return err
		}
		peso, err := weights.SubtractTare(before.PesoKg, tara.PesoKg)
		if err != nil {
			return apperr.Validation("El peso debe quedar mayor que cero")
		}
		after, err = s.salidas.UpdatePeso(ctx, linea, id, peso)
		return err
	})
	if err != nil {
		return models.LineaSalida{}, repoErr("Error al aplicar tara", err)
	}

	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditUpdate,
		Model:    models.SalidaAuditModel(linea),
		EntityID: strconv.FormatInt(id, 10),
		Prior:    before.Snapshot(),
		New:      after.Snapshot(),
	})
	return after, nil
}

// AgregarPanza adds the same weight to every record of a date and lot. The
// whole set is updated in one transaction and audited as one batch.
func (s *SalidaService) AgregarPanza(ctx context.Context, actorID int64, linea int, input PanzaInput) (int, error) {
	if err := checkLinea(linea); err != nil {
		return 0, err
	}
	filter, err := panzaFilter(input)
	if err != nil {
		return 0, err
	}
	model := models.SalidaAuditModel(linea)

	var entries []models.AuditEntry
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		entries = nil
		records, err := s.salidas.ListForUpdate(ctx, linea, filter)
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
			after, err := s.salidas.UpdatePeso(ctx, linea, before.ID, peso)
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

	s.log.Info().Int("linea", linea).Str("lote", filter.Lote).Int("registros", len(entries)).Msg("panza applied")
	s.audit.LogActionsBatch(ctx, actorID, entries)
	return len(entries), nil
}

// UpdateCodigoParrilla adds valor to the numeric grill code of a record. An
// empty code counts as zero.
func (s *SalidaService) UpdateCodigoParrilla(ctx context.Context, actorID int64, linea int, id int64, valor int) (models.LineaSalida, error) {
	if err := checkLinea(linea); err != nil {
		return models.LineaSalida{}, err
	}
	if valor == 0 {
		return models.LineaSalida{}, errValorCero
	}

	var before, after models.LineaSalida
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		before, err = s.salidas.GetForUpdate(ctx, linea, id)
		if err != nil {
			return s.notFound(err, "Error al actualizar código de parrilla")
		}
		codigo, err := addToCodigo(before.CodigoParrilla, valor, "parrilla")
		if err != nil {
			return err
		}
		after, err = s.salidas.UpdateCodigoParrilla(ctx, linea, id, codigo)
		return err
	})
	if err != nil {
		return models.LineaSalida{}, repoErr("Error al actualizar código de parrilla", err)
	}

	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditUpdate,
		Model:    models.SalidaAuditModel(linea),
		EntityID: strconv.FormatInt(id, 10),
		Prior:    before.Snapshot(),
		New:      after.Snapshot(),
	})
	return after, nil
}

// UpdateLoteBatch assigns lote to every id. Either all ids resolve and are
// updated or nothing changes.
func (s *SalidaService) UpdateLoteBatch(ctx context.Context, actorID int64, linea int, ids []int64, lote string) (int, error) {
	if err := checkLinea(linea); err != nil {
		return 0, err
	}
	lote = strings.TrimSpace(lote)
	if lote == "" {
		return 0, apperr.Validation("El lote no puede estar vacío.")
	}
	if len(ids) == 0 {
		return 0, apperr.Validation("Debe indicar al menos un registro.")
	}

	notFound := apperr.NotFound("Uno o más registros no existen.")
	model := models.SalidaAuditModel(linea)

	var entries []models.AuditEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		entries = nil
		before, err := s.salidas.ListByIDsForUpdate(ctx, linea, ids)
		if err != nil {
			return err
		}
		if len(before) != countUnique(ids) {
			return notFound
		}
		after, err := s.salidas.UpdateLote(ctx, linea, ids, lote)
		if err != nil {
			if errors.Is(err, repository.ErrLineaNotFound) {
				return notFound
			}
			return err
		}
		updated := make(map[int64]models.LineaSalida, len(after))
		for _, r := range after {
			updated[r.ID] = r
		}
		for _, prior := range before {
			next := updated[prior.ID]
			entries = append(entries, models.AuditEntry{
				Action:   models.AuditUpdate,
				Model:    model,
				EntityID: strconv.FormatInt(prior.ID, 10),
				Prior:    prior.Snapshot(),
				New:      next.Snapshot(),
			})
		}
		return nil
	})
	if err != nil {
		return 0, repoErr("Error al actualizar lote", err)
	}

	s.audit.LogActionsBatch(ctx, actorID, entries)
	return len(entries), nil
}

func (s *SalidaService) CreateMiga(ctx context.Context, actorID int64, linea int, input MigaInput) (models.LineaSalidaMiga, error) {
	if err := checkMigaInput(linea, input); err != nil {
		return models.LineaSalidaMiga{}, err
	}

	var (
		record  models.LineaSalida
		created models.Miga
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.migas.GetByRegistro(ctx, linea, input.Registro); err == nil {
			return errMigaExists
		} else if !errors.Is(err, repository.ErrMigaNotFound) {
			return err
		}

		var (
			porcentaje decimal.Decimal
			err        error
		)
		record, porcentaje, err = s.migaPercentage(ctx, linea, input)
		if err != nil {
			return err
		}

		created, err = s.migas.Create(ctx, models.Miga{
			Linea:      linea,
			Registro:   input.Registro,
			PMiga:      weights.Round(*input.PMiga),
			Porcentaje: porcentaje,
		})
		if errors.Is(err, repository.ErrMigaExists) {
			return errMigaExists
		}
		return err
	})
	if err != nil {
		return models.LineaSalidaMiga{}, repoErr("Error al registrar miga", err)
	}

	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditCreate,
		Model:    models.AuditModelMiga,
		EntityID: strconv.FormatInt(created.ID, 10),
		New:      created.Snapshot(),
	})
	return models.LineaSalidaMiga{LineaSalida: record, PMiga: created.PMiga, Porcentaje: created.Porcentaje}, nil
}

func (s *SalidaService) UpdateMiga(ctx context.Context, actorID int64, linea int, input MigaInput) (models.LineaSalidaMiga, error) {
	if err := checkMigaInput(linea, input); err != nil {
		return models.LineaSalidaMiga{}, err
	}

	var (
		record        models.LineaSalida
		prior, nextMg models.Miga
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		prior, err = s.migas.GetByRegistro(ctx, linea, input.Registro)
		if err != nil {
			if errors.Is(err, repository.ErrMigaNotFound) {
				return errMigaNotFound
			}
			return err
		}

		var porcentaje decimal.Decimal
		record, porcentaje, err = s.migaPercentage(ctx, linea, input)
		if err != nil {
			return err
		}
		nextMg, err = s.migas.Update(ctx, prior.ID, weights.Round(*input.PMiga), porcentaje)
		return err
	})
	if err != nil {
		return models.LineaSalidaMiga{}, repoErr("Error al actualizar miga", err)
	}

	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditUpdate,
		Model:    models.AuditModelMiga,
		EntityID: strconv.FormatInt(prior.ID, 10),
		Prior:    prior.Snapshot(),
		New:      nextMg.Snapshot(),
	})
	return models.LineaSalidaMiga{LineaSalida: record, PMiga: nextMg.PMiga, Porcentaje: nextMg.Porcentaje}, nil
}

func (s *SalidaService) migaPercentage(ctx context.Context, linea int, input MigaInput) (models.LineaSalida, decimal.Decimal, error) {
	record, err := s.salidas.GetByID(ctx, linea, input.Registro)
	if err != nil {
		if errors.Is(err, repository.ErrLineaNotFound) {
			return models.LineaSalida{}, decimal.Decimal{}, errSalidaNotFound
		}
		return models.LineaSalida{}, decimal.Decimal{}, err
	}

	var taraPeso *decimal.Decimal
	if input.TaraID != nil {
		tara, err := s.taras.GetByID(ctx, *input.TaraID)
		if err != nil {
			if errors.Is(err, repository.ErrTaraNotFound) {
				return models.LineaSalida{}, decimal.Decimal{}, errTaraNotFound
			}
			return models.LineaSalida{}, decimal.Decimal{}, err
		}
		taraPeso = &tara.PesoKg
	}

	porcentaje, err := weights.MigaPercentage(record.PesoKg, *input.PMiga, taraPeso)
	if err != nil {
		return models.LineaSalida{}, decimal.Decimal{}, apperr.Validation("El peso del registro debe ser mayor que cero.")
	}
	return record, porcentaje, nil
}

// Remove deletes one exit record.
func (s *SalidaService) Remove(ctx context.Context, actorID int64, linea int, id int64) error {
	if err := checkLinea(linea); err != nil {
		return err
	}

	var before models.LineaSalida
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		before, err = s.salidas.GetForUpdate(ctx, linea, id)
		if err != nil {
			return s.notFound(err, "Error al eliminar registro de salida")
		}
		return s.salidas.Delete(ctx, linea, id)
	})
	if err != nil {
		return repoErr("Error al eliminar registro de salida", err)
	}

	s.audit.LogAction(ctx, actorID, models.AuditEntry{
		Action:   models.AuditDelete,
		Model:    models.SalidaAuditModel(linea),
		EntityID: strconv.FormatInt(id, 10),
		Prior:    before.Snapshot(),
	})
	return nil
}

func (s *SalidaService) notFound(err error, msg string) error {
	if errors.Is(err, repository.ErrLineaNotFound) {
		return errSalidaNotFound
	}
	return repoErr(msg, err)
}

func checkMigaInput(linea int, input MigaInput) error {
	if err := checkLinea(linea); err != nil {
		return err
	}
	if input.PMiga == nil {
		return apperr.Validation("El campo p_miga no puede ser nulo")
	}
	if input.Registro <= 0 {
		return apperr.Validation("El campo linea_id no puede ser nulo")
	}
	return nil
}

func countUnique(ids []int64) int {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
