package service

import (
	"strconv"
	"strings"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/models"
)

// Rules shared by the entry and exit record corrections.

var (
	errValorCero         = apperr.Validation("El valor no puede ser cero.")
	errPesoNoPositivo    = apperr.Validation("El peso debe ser mayor que cero.")
	errPanzaSinRegistros = apperr.NotFound("No se encontraron registros con los filtros proporcionados.")
)

// panzaFilter validates a panza request and returns the date and lot filter
// selecting the rows it applies to.
func panzaFilter(input PanzaInput) (models.LineaFilter, error) {
	if !input.PesoKg.IsPositive() {
		return models.LineaFilter{}, errPesoNoPositivo
	}
	lote := strings.TrimSpace(input.Lote)
	if lote == "" || input.Fecha.IsZero() {
		return models.LineaFilter{}, apperr.Validation("La fecha y el lote son obligatorios.")
	}
	fecha := input.Fecha
	return models.LineaFilter{Fecha: &fecha, Lote: lote}, nil
}

// addToCodigo adds valor to a numeric code column stored as text. An empty
// code counts as zero.
func addToCodigo(codigo *string, valor int, campo string) (string, error) {
	current := 0
	if codigo != nil && strings.TrimSpace(*codigo) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(*codigo))
		if err != nil {
			return "", apperr.Validation("El código de " + campo + " actual no es numérico.")
		}
		current = n
	}
	return strconv.Itoa(current + valor), nil
}
