package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"incentivos/api/internal/database"
	"incentivos/api/internal/models"
)

var (
	ErrLineaNotFound = errors.New("production line record not found")
	ErrInvalidLinea  = errors.New("invalid production line")
)

var salidaTables = map[int]string{
	1: "reg_linea_uno_salid",
	2: "reg_linea_dos_salid",
	3: "reg_linea_tres_salid",
	4: "reg_linea_cuatro_salid",
	5: "reg_linea_cinco_salid",
	6: "reg_linea_seis_salid",
}

const salidaColumns = `id, fecha_p, fecha, peso_kg::text, codigo_bastidor, p_lote, codigo_parrilla, codigo_obrero, guid`

func salidaTable(linea int) (string, error) {
	table, ok := salidaTables[linea]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrInvalidLinea, linea)
	}
	return table, nil
}

// LineaSalidaRepository reads and writes the per-line exit tables. The table
// is picked from the line number, never from caller text.
type LineaSalidaRepository struct {
	db database.Querier
}

func NewLineaSalidaRepository(db database.Querier) *LineaSalidaRepository {
	return &LineaSalidaRepository{db: db}
}

func (r *LineaSalidaRepository) GetByID(ctx context.Context, linea int, id int64) (models.LineaSalida, error) {
	return r.getByID(ctx, linea, id, "")
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (r *LineaSalidaRepository) GetForUpdate(ctx context.Context, linea int, id int64) (models.LineaSalida, error) {
	return r.getByID(ctx, linea, id, " FOR UPDATE")
}

func (r *LineaSalidaRepository) getByID(ctx context.Context, linea int, id int64, lock string) (models.LineaSalida, error) {
	table, err := salidaTable(linea)
	if err != nil {
		return models.LineaSalida{}, err
	}
	query := `SELECT ` + salidaColumns + ` FROM ` + table + ` WHERE id = $1` + lock
	return scanLineaSalida(database.From(ctx, r.db).QueryRow(ctx, query, id))
}

func filterWhere(filter models.LineaFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Fecha != nil {
		args = append(args, *filter.Fecha)
		conds = append(conds, fmt.Sprintf("fecha_p = $%d", len(args)))
	}
	if filter.Lote != "" {
		args = append(args, filter.Lote)
		conds = append(conds, fmt.Sprintf("p_lote = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func countRows(ctx context.Context, q database.Querier, table string, filter models.LineaFilter) (int64, error) {
	where, args := filterWhere(filter)
	var total int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return total, nil
}

func (r *LineaSalidaRepository) List(ctx context.Context, linea int, filter models.LineaFilter, page, pageSize int) ([]models.LineaSalida, int64, error) {
	table, err := salidaTable(linea)
	if err != nil {
		return nil, 0, err
	}
	total, err := countRows(ctx, database.From(ctx, r.db), table, filter)
	if err != nil || total == 0 {
		return []models.LineaSalida{}, total, err
	}

	where, args := filterWhere(filter)
	args = append(args, pageSize, (page-1)*pageSize)
	query := `SELECT ` + salidaColumns + ` FROM ` + table + where +
		fmt.Sprintf(" ORDER BY fecha_p DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	records, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListForUpdate locks the full matching set, ordered by id so concurrent
// batches lock in the same order.
func (r *LineaSalidaRepository) ListForUpdate(ctx context.Context, linea int, filter models.LineaFilter) ([]models.LineaSalida, error) {
	table, err := salidaTable(linea)
	if err != nil {
		return nil, err
	}
	where, args := filterWhere(filter)
	return r.query(ctx, `SELECT `+salidaColumns+` FROM `+table+where+` ORDER BY id FOR UPDATE`, args...)
}

func (r *LineaSalidaRepository) ListByIDsForUpdate(ctx context.Context, linea int, ids []int64) ([]models.LineaSalida, error) {
	table, err := salidaTable(linea)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + salidaColumns + ` FROM ` + table + ` WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	return r.query(ctx, query, ids)
}

func (r *LineaSalidaRepository) UpdatePeso(ctx context.Context, linea int, id int64, peso decimal.Decimal) (models.LineaSalida, error) {
	table, err := salidaTable(linea)
	if err != nil {
		return models.LineaSalida{}, err
	}
	query := `UPDATE ` + table + ` SET peso_kg = $2::numeric WHERE id = $1 RETURNING ` + salidaColumns
	return scanLineaSalida(database.From(ctx, r.db).QueryRow(ctx, query, id, peso.StringFixed(3)))
}

func (r *LineaSalidaRepository) UpdateCodigoParrilla(ctx context.Context, linea int, id int64, codigo string) (models.LineaSalida, error) {
	table, err := salidaTable(linea)
	if err != nil {
		return models.LineaSalida{}, err
	}
	query := `UPDATE ` + table + ` SET codigo_parrilla = $2 WHERE id = $1 RETURNING ` + salidaColumns
	return scanLineaSalida(database.From(ctx, r.db).QueryRow(ctx, query, id, codigo))
}

// UpdateLote sets the lot of every id in one statement. When any id is
// missing nothing is reported as updated and ErrLineaNotFound is returned;
// callers run it inside a transaction so the partial write rolls back.
func (r *LineaSalidaRepository) UpdateLote(ctx context.Context, linea int, ids []int64, lote string) ([]models.LineaSalida, error) {
	table, err := salidaTable(linea)
	if err != nil {
		return nil, err
	}
	query := `UPDATE ` + table + ` SET p_lote = $2 WHERE id = ANY($1) RETURNING ` + salidaColumns
	records, err := r.query(ctx, query, ids, lote)
	if err != nil {
		return nil, err
	}
	if len(records) != len(uniqueIDs(ids)) {
		return nil, ErrLineaNotFound
	}
	return records, nil
}

func (r *LineaSalidaRepository) Delete(ctx context.Context, linea int, id int64) error {
	table, err := salidaTable(linea)
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

func (r *LineaSalidaRepository) query(ctx context.Context, query string, args ...any) ([]models.LineaSalida, error) {
	rows, err := database.From(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.LineaSalida{}
	for rows.Next() {
		record, err := scanLineaSalida(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanLineaSalida(row pgx.Row) (models.LineaSalida, error) {
	var (
		record models.LineaSalida
		peso   *string
	)
	if err := row.Scan(
		&record.ID,
		&record.FechaP,
		&record.Fecha,
		&peso,
		&record.CodigoBastidor,
		&record.Lote,
		&record.CodigoParrilla,
		&record.CodigoObrero,
		&record.GUID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.LineaSalida{}, ErrLineaNotFound
		}
		return models.LineaSalida{}, err
	}
	if peso != nil {
		parsed, err := decimal.NewFromString(*peso)
		if err != nil {
			return models.LineaSalida{}, fmt.Errorf("parse peso_kg of %d: %w", record.ID, err)
		}
		record.PesoKg = parsed
	}
	return record, nil
}

func uniqueIDs(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
