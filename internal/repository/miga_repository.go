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

var (
	ErrMigaNotFound = errors.New("miga not found")
	ErrMigaExists   = errors.New("miga already exists")
)

const migaColumns = `id, linea, registro, p_miga::text, porcentaje::text`

type MigaRepository struct {
	db database.Querier
}

func NewMigaRepository(db database.Querier) *MigaRepository {
	return &MigaRepository{db: db}
}

func (r *MigaRepository) GetByRegistro(ctx context.Context, linea int, registro int64) (models.Miga, error) {
	const query = `SELECT ` + migaColumns + ` FROM control_miga WHERE linea = $1 AND registro = $2`
	return scanMiga(database.From(ctx, r.db).QueryRow(ctx, query, linea, registro))
}

// Create relies on the (linea, registro) unique index to reject a second
// measurement racing past the service-level check.
func (r *MigaRepository) Create(ctx context.Context, miga models.Miga) (models.Miga, error) {
	const query = `
		INSERT INTO control_miga (linea, registro, p_miga, porcentaje)
		VALUES ($1, $2, $3::numeric, $4::numeric)
		RETURNING ` + migaColumns
	created, err := scanMiga(database.From(ctx, r.db).QueryRow(ctx, query,
		miga.Linea, miga.Registro, miga.PMiga.StringFixed(3), miga.Porcentaje.StringFixed(3)))
	if err != nil && isUniqueViolation(err) {
		return models.Miga{}, ErrMigaExists
	}
	return created, err
}

func (r *MigaRepository) Update(ctx context.Context, id int64, pMiga, porcentaje decimal.Decimal) (models.Miga, error) {
	const query = `
		UPDATE control_miga SET p_miga = $2::numeric, porcentaje = $3::numeric
		WHERE id = $1
		RETURNING ` + migaColumns
	return scanMiga(database.From(ctx, r.db).QueryRow(ctx, query, id, pMiga.StringFixed(3), porcentaje.StringFixed(3)))
}

func (r *MigaRepository) ListByRegistros(ctx context.Context, linea int, registros []int64) ([]models.Miga, error) {
	if len(registros) == 0 {
		return []models.Miga{}, nil
	}
	const query = `SELECT ` + migaColumns + ` FROM control_miga WHERE linea = $1 AND registro = ANY($2)`
	rows, err := database.From(ctx, r.db).Query(ctx, query, linea, registros)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	migas := []models.Miga{}
	for rows.Next() {
		miga, err := scanMiga(rows)
		if err != nil {
			return nil, err
		}
		migas = append(migas, miga)
	}
	return migas, rows.Err()
}

func scanMiga(row pgx.Row) (models.Miga, error) {
	var (
		miga             models.Miga
		pMiga, porcentaje string
	)
	if err := row.Scan(&miga.ID, &miga.Linea, &miga.Registro, &pMiga, &porcentaje); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Miga{}, ErrMigaNotFound
		}
		return models.Miga{}, err
	}
	var err error
	if miga.PMiga, err = decimal.NewFromString(pMiga); err != nil {
		return models.Miga{}, fmt.Errorf("parse p_miga: %w", err)
	}
	if miga.Porcentaje, err = decimal.NewFromString(porcentaje); err != nil {
		return models.Miga{}, fmt.Errorf("parse porcentaje: %w", err)
	}
	return miga, nil
}
