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

var ErrTaraNotFound = errors.New("tara not found")

const taraColumns = `id, nombre, descripcion, peso_kg::text, is_active, is_principal`

type TaraRepository struct {
	db database.Querier
}

func NewTaraRepository(db database.Querier) *TaraRepository {
	return &TaraRepository{db: db}
}

func (r *TaraRepository) Create(ctx context.Context, tara models.Tara) (models.Tara, error) {
	const query = `
		INSERT INTO control_tara (nombre, descripcion, peso_kg, is_active, is_principal)
		VALUES ($1, $2, $3::numeric, $4, FALSE)
		RETURNING ` + taraColumns
	row := database.From(ctx, r.db).QueryRow(ctx, query, tara.Nombre, tara.Descripcion, tara.PesoKg.StringFixed(3), tara.IsActive)
	return scanTara(row)
}

func (r *TaraRepository) GetByID(ctx context.Context, id int64) (models.Tara, error) {
	const query = `SELECT ` + taraColumns + ` FROM control_tara WHERE id = $1`
	return scanTara(database.From(ctx, r.db).QueryRow(ctx, query, id))
}

func (r *TaraRepository) List(ctx context.Context, onlyActive bool) ([]models.Tara, error) {
	query := `SELECT ` + taraColumns + ` FROM control_tara`
	if onlyActive {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY is_principal DESC, nombre`

	rows, err := database.From(ctx, r.db).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	taras := []models.Tara{}
	for rows.Next() {
		tara, err := scanTara(rows)
		if err != nil {
			return nil, err
		}
		taras = append(taras, tara)
	}
	return taras, rows.Err()
}

// SetPrincipal clears the flag on every other tara and sets it on id. Run it
// inside a transaction: the two statements together keep a single principal.
func (r *TaraRepository) SetPrincipal(ctx context.Context, id int64) (models.Tara, error) {
	q := database.From(ctx, r.db)
	if _, err := q.Exec(ctx, `UPDATE control_tara SET is_principal = FALSE WHERE is_principal = TRUE AND id <> $1`, id); err != nil {
		return models.Tara{}, fmt.Errorf("clear principal tara: %w", err)
	}
	const query = `UPDATE control_tara SET is_principal = TRUE WHERE id = $1 RETURNING ` + taraColumns
	return scanTara(q.QueryRow(ctx, query, id))
}

func scanTara(row pgx.Row) (models.Tara, error) {
	var (
		tara models.Tara
		peso string
	)
	if err := row.Scan(&tara.ID, &tara.Nombre, &tara.Descripcion, &peso, &tara.IsActive, &tara.IsPrincipal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Tara{}, ErrTaraNotFound
		}
		return models.Tara{}, err
	}
	parsed, err := decimal.NewFromString(peso)
	if err != nil {
		return models.Tara{}, fmt.Errorf("parse tara peso_kg: %w", err)
	}
	tara.PesoKg = parsed
	return tara, nil
}
