package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"incentivos/api/internal/database"
	"incentivos/api/internal/models"
)

var entradaTables = map[int]string{
	1: "reg_linea_uno_entrad",
	2: "reg_linea_dos_entrad",
	3: "reg_linea_tres_entrad",
	4: "reg_linea_cuatro_entrad",
	5: "reg_linea_cinco_entrad",
	6: "reg_linea_seis_entrad",
}

const entradaColumns = `id, fecha_p, fecha, peso_kg::text, turno, codigo_secuencia, codigo_parrilla, p_lote, hora_inicio::text, guid`

func entradaTable(linea int) (string, error) {
	table, ok := entradaTables[linea]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrInvalidLinea, linea)
	}
	return table, nil
}

// LineaEntradaRepository reads and writes the per-line entry tables.
type LineaEntradaRepository struct {
	db database.Querier
}

func NewLineaEntradaRepository(db database.Querier) *LineaEntradaRepository {
	return &LineaEntradaRepository{db: db}
}

func (r *LineaEntradaRepository) GetByID(ctx context.Context, linea int, id int64) (models.LineaEntrada, error) {
	return r.getByID(ctx, linea, id, "")
}

func (r *LineaEntradaRepository) GetForUpdate(ctx context.Context, linea int, id int64) (models.LineaEntrada, error) {
	return r.getByID(ctx, linea, id, " FOR UPDATE")
}

func (r *LineaEntradaRepository) getByID(ctx context.Context, linea int, id int64, lock string) (models.LineaEntrada, error) {
	table, err := entradaTable(linea)
	if err != nil {
		return models.LineaEntrada{}, err
	}
	query := `SELECT ` + entradaColumns + ` FROM ` + table + ` WHERE id = $1` + lock
	return scanLineaEntrada(database.From(ctx, r.db).QueryRow(ctx, query, id))
}

func (r *LineaEntradaRepository) List(ctx context.Context, linea int, filter models.LineaFilter, page, pageSize int) ([]models.LineaEntrada, int64, error) {
	table, err := entradaTable(linea)
	if err != nil {
		return nil, 0, err
	}
	total, err := countRows(ctx, database.From(ctx, r.db), table, filter)
	if err != nil || total == 0 {
		return []models.LineaEntrada{}, total, err
	}

	where, args := filterWhere(filter)
	args = append(args, pageSize, (page-1)*pageSize)
	query := `SELECT ` + entradaColumns + ` FROM ` + table + where +
		fmt.Sprintf(" ORDER BY fecha_p DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	records, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListForUpdate locks every row of the filter in id order.
func (r *LineaEntradaRepository) ListForUpdate(ctx context.Context, linea int, filter models.LineaFilter) ([]models.LineaEntrada, error) {
	table, err := entradaTable(linea)
	if err != nil {
		return nil, err
	}
	where, args := filterWhere(filter)
	return r.query(ctx, `SELECT `+entradaColumns+` FROM `+table+where+` ORDER BY id FOR UPDATE`, args...)
}

func (r *LineaEntradaRepository) UpdatePeso(ctx context.Context, linea int, id int64, peso decimal.Decimal) (models.LineaEntrada, error) {
	table, err := entradaTable(linea)
	if err != nil {
		return models.LineaEntrada{}, err
	}
	query := `UPDATE ` + table + ` SET peso_kg = $2::numeric WHERE id = $1 RETURNING ` + entradaColumns
	return scanLineaEntrada(database.From(ctx, r.db).QueryRow(ctx, query, id, peso.StringFixed(3)))
}

// UpdateCodigos writes the grill and sequence codes together.
func (r *LineaEntradaRepository) UpdateCodigos(ctx context.Context, linea int, id int64, parrilla, secuencia string) (models.LineaEntrada, error) {
	table, err := entradaTable(linea)
	if err != nil {
		return models.LineaEntrada{}, err
	}
	query := `UPDATE ` + table + ` SET codigo_parrilla = $2, codigo_secuencia = $3 WHERE id = $1 RETURNING ` + entradaColumns
	return scanLineaEntrada(database.From(ctx, r.db).QueryRow(ctx, query, id, parrilla, secuencia))
}

func (r *LineaEntradaRepository) Delete(ctx context.Context, linea int, id int64) error {
	table, err := entradaTable(linea)
	if err != nil {
		return err
	}
	cmd, err := database.From(ctx, r.db).Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrLineaNotFound
	}
	return nil
}

func (r *LineaEntradaRepository) query(ctx context.Context, query string, args ...any) ([]models.LineaEntrada, error) {
	rows, err := database.From(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.LineaEntrada{}
	for rows.Next() {
		record, err := scanLineaEntrada(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanLineaEntrada(row pgx.Row) (models.LineaEntrada, error) {
	var (
		record models.LineaEntrada
		peso   *string
	)
	if err := row.Scan(
		&record.ID,
		&record.FechaP,
		&record.Fecha,
		&peso,
		&record.Turno,
		&record.CodigoSecuencia,
		&record.CodigoParrilla,
		&record.Lote,
		&record.HoraInicio,
		&record.GUID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.LineaEntrada{}, ErrLineaNotFound
		}
		return models.LineaEntrada{}, err
	}
	if peso != nil {
		parsed, err := decimal.NewFromString(*peso)
		if err != nil {
			return models.LineaEntrada{}, fmt.Errorf("parse peso_kg of %d: %w", record.ID, err)
		}
		record.PesoKg = parsed
	}
	return record, nil
}
