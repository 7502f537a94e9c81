package models

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

func (a AuditAction) Valid() bool {
	switch a {
	case AuditCreate, AuditUpdate, AuditDelete:
		return true
	}
	return false
}

type AuditLog struct {
	ID        int64           `json:"log_id"`
	Model     string          `json:"modelo"`
	EntityID  string          `json:"entidad_id"`
	Action    AuditAction     `json:"accion"`
	PriorData json.RawMessage `json:"datos_anteriores"`
	NewData   json.RawMessage `json:"datos_nuevos"`
	ActorID   int64           `json:"ejecutado_por_id"`
	ActorSnap json.RawMessage `json:"ejecutado_por_json"`
	BatchID   *string         `json:"lote_auditoria,omitempty"`
	CreatedAt time.Time       `json:"fecha"`
	// ReplayKey is set only on rows written back from the dead-letter stream;
	// a second replay with the same key is a no-op.
	ReplayKey *string         `json:"-"`
}

// AuditEntry is what a mutating use case hands to the audit service. Prior
// and New are plain values encoded to JSON at write time.
type AuditEntry struct {
	Action   AuditAction
	Model    string
	EntityID string
	New      any
	Prior    any
}

type AuditFilter struct {
	ActorID *int64
	Action  *AuditAction
	Model   string
	Date    *time.Time
}

// Page is the paginated envelope shared by list endpoints.
type Page[T any] struct {
	TotalRecords int64 `json:"total_records"`
	TotalPages   int64 `json:"total_pages"`
	Page         int   `json:"page"`
	PageSize     int   `json:"page_size"`
	Data         []T   `json:"data"`
}

func NewPage[T any](data []T, total int64, page, pageSize int) Page[T] {
	var pages int64
	if total > 0 && pageSize > 0 {
		pages = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	if data == nil {
		data = []T{}
	}
	return Page[T]{TotalRecords: total, TotalPages: pages, Page: page, PageSize: pageSize, Data: data}
}
