package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// LineaSalida is one exit record of a production line.
type LineaSalida struct {
	ID             int64
	FechaP         *time.Time
	Fecha          *time.Time
	PesoKg         decimal.Decimal
	CodigoBastidor *string
	Lote           *string
	CodigoParrilla *string
	CodigoObrero   *string
	GUID           *string
}

// Snapshot renders the record the way audit rows and API responses show it.
// Weights are emitted as JSON numbers fixed at three decimals.
func (l *LineaSalida) Snapshot() map[string]any {
	return map[string]any{
		"id":              l.ID,
		"fecha_p":         formatDate(l.FechaP),
		"fecha":           formatTimestamp(l.Fecha),
		"peso_kg":         json.Number(l.PesoKg.StringFixed(3)),
		"codigo_bastidor": l.CodigoBastidor,
		"p_lote":          l.Lote,
		"codigo_parrilla": l.CodigoParrilla,
		"codigo_obrero":   l.CodigoObrero,
		"guid":            l.GUID,
	}
}

// LineaEntrada is one entry record of a production line. Entry rows carry a
// sequence code that moves together with the grill code.
type LineaEntrada struct {
	ID              int64
	FechaP          *time.Time
	Fecha           *time.Time
	PesoKg          decimal.Decimal
	Turno           *int32
	CodigoSecuencia *string
	CodigoParrilla  *string
	Lote            *string
	HoraInicio      *string
	GUID            *string
}

func (l *LineaEntrada) Snapshot() map[string]any {
	return map[string]any{
		"id":               l.ID,
		"fecha_p":          formatDate(l.FechaP),
		"fecha":            formatTimestamp(l.Fecha),
		"peso_kg":          json.Number(l.PesoKg.StringFixed(3)),
		"turno":            l.Turno,
		"codigo_secuencia": l.CodigoSecuencia,
		"codigo_parrilla":  l.CodigoParrilla,
		"p_lote":           l.Lote,
		"hora_inicio":      l.HoraInicio,
		"guid":             l.GUID,
	}
}

type LineaFilter struct {
	Fecha *time.Time
	Lote  string
}

type Tara struct {
	ID          int64
	Nombre      string
	Descripcion *string
	PesoKg      decimal.Decimal
	IsActive    bool
	IsPrincipal bool
}

func (t *Tara) Snapshot() map[string]any {
	return map[string]any{
		"id":           t.ID,
		"nombre":       t.Nombre,
		"descripcion":  t.Descripcion,
		"peso_kg":      json.Number(t.PesoKg.StringFixed(3)),
		"is_active":    t.IsActive,
		"is_principal": t.IsPrincipal,
	}
}

type Miga struct {
	ID         int64
	Linea      int
	Registro   int64
	PMiga      decimal.Decimal
	Porcentaje decimal.Decimal
}

func (m *Miga) Snapshot() map[string]any {
	return map[string]any{
		"id":         m.ID,
		"linea":      m.Linea,
		"registro":   m.Registro,
		"p_miga":     json.Number(m.PMiga.StringFixed(3)),
		"porcentaje": json.Number(m.Porcentaje.StringFixed(3)),
	}
}

// LineaSalidaMiga joins an exit record with its miga measurement, zero when
// none was taken yet.
type LineaSalidaMiga struct {
	LineaSalida
	PMiga      decimal.Decimal
	Porcentaje decimal.Decimal
}

func (l *LineaSalidaMiga) Snapshot() map[string]any {
	snap := l.LineaSalida.Snapshot()
	snap["p_miga"] = json.Number(l.PMiga.StringFixed(3))
	snap["porcentaje"] = json.Number(l.Porcentaje.StringFixed(3))
	return snap
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}

func formatTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
