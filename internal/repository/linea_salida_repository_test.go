package repository

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incentivos/api/internal/models"
)

var salidaCols = []string{"id", "fecha_p", "fecha", "peso_kg", "codigo_bastidor", "p_lote", "codigo_parrilla", "codigo_obrero", "guid"}

func TestSalidaTable(t *testing.T) {
	table, err := salidaTable(4)
	require.NoError(t, err)
	assert.Equal(t, "reg_linea_cuatro_salid", table)

	_, err = salidaTable(7)
	assert.ErrorIs(t, err, ErrInvalidLinea)
}

func TestUpdatePesoSendsFixedPrecision(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`UPDATE reg_linea_uno_salid SET peso_kg = \$2::numeric WHERE id = \$1`).
		WithArgs(int64(42), "9.750").
		WillReturnRows(pgxmock.NewRows(salidaCols).AddRow(int64(42), nil, nil, "9.750", nil, nil, nil, nil, nil))

	record, err := NewLineaSalidaRepository(mock).UpdatePeso(context.Background(), 1, 42, decimal.RequireFromString("9.75"))
	require.NoError(t, err)
	assert.True(t, record.PesoKg.Equal(decimal.RequireFromString("9.75")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLoteDetectsMissingIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	lote := "L-200"
	mock.ExpectQuery(`UPDATE reg_linea_dos_salid SET p_lote = \$2 WHERE id = ANY\(\$1\)`).
		WithArgs([]int64{1, 2, 3}, lote).
		WillReturnRows(pgxmock.NewRows(salidaCols).
			AddRow(int64(1), nil, nil, "1.000", nil, &lote, nil, nil, nil).
			AddRow(int64(2), nil, nil, "2.000", nil, &lote, nil, nil, nil))

	_, err = NewLineaSalidaRepository(mock).UpdateLote(context.Background(), 2, []int64{1, 2, 3}, lote)
	assert.ErrorIs(t, err, ErrLineaNotFound)
}

func TestListBuildsFilterAndPagination(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reg_linea_tres_salid WHERE p_lote = \$1`).
		WithArgs("L-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(`FROM reg_linea_tres_salid WHERE p_lote = \$1 ORDER BY fecha_p DESC, id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("L-1", 20, 20).
		WillReturnRows(pgxmock.NewRows(salidaCols).AddRow(int64(5), nil, nil, "3.100", nil, nil, nil, nil, nil))

	records, total, err := NewLineaSalidaRepository(mock).List(context.Background(), 3, modelsFilter("L-1"), 2, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, "3.1", records[0].PesoKg.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func modelsFilter(lote string) models.LineaFilter {
	return models.LineaFilter{Lote: lote}
}
