package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"incentivos/api/internal/ids"
)

// ObjectWriter stores one exported object.
type ObjectWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// ExportService archives one day of audit rows as newline-delimited JSON.
type ExportService struct {
	audit   AuditStore
	objects ObjectWriter
	log     zerolog.Logger
}

func NewExportService(audit AuditStore, objects ObjectWriter, log zerolog.Logger) *ExportService {
	return &ExportService{audit: audit, objects: objects, log: log}
}

// ExportAuditDay writes the rows of day to auditoria/YYYY/MM/DD/<id>.ndjson
// and returns the key. A day without rows writes nothing and returns "".
func (s *ExportService) ExportAuditDay(ctx context.Context, day time.Time) (string, error) {
	rows, err := s.audit.ListByDay(ctx, day)
	if err != nil {
		return "", fmt.Errorf("list audit rows: %w", err)
	}
	if len(rows) == 0 {
		s.log.Info().Str("day", day.Format(time.DateOnly)).Msg("no audit rows to export")
		return "", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return "", fmt.Errorf("encode audit row %d: %w", row.ID, err)
		}
	}

	key := fmt.Sprintf("auditoria/%s/%s.ndjson", day.Format("2006/01/02"), ids.New())
	if err := s.objects.Put(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return "", err
	}
	s.log.Info().Str("key", key).Int("rows", len(rows)).Msg("audit day exported")
	return key, nil
}
