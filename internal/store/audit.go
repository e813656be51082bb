package store

import (
	"context"
	"fmt"
	"time"

	"github.com/inful/docgen/internal/domain"
)

// AppendAudit inserts one append-only audit row. There is no update or
// delete path for audit rows.
func (s *Store) AppendAudit(ctx context.Context, entityType, entityID, action string, metadata map[string]any) error {
	body, err := marshalJSON(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (entity_type, entity_id, action, metadata, timestamp) VALUES (?, ?, ?, ?, ?)`,
		entityType, entityID, action, body, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListOptions bounds a paged audit query.
type ListOptions struct {
	After *int64 // exclusive cursor on audit_log.id
	Limit int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 500 {
		return 100
	}
	return o.Limit
}

// ListByEntity returns audit rows for one entity, oldest first, page by
// ListOptions. This is the only entity-scoped read path exposed — there
// is no general-purpose scan-then-filter query.
func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string, opts ListOptions) ([]domain.AuditLog, error) {
	after := int64(0)
	if opts.After != nil {
		after = *opts.After
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, action, metadata, timestamp
		 FROM audit_log WHERE entity_type = ? AND entity_id = ? AND id > ?
		 ORDER BY id ASC LIMIT ?`,
		entityType, entityID, after, opts.limit(),
	)
	if err != nil {
		return nil, fmt.Errorf("list audit by entity: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// ListByJob returns audit rows recorded against a JOB entity id.
func (s *Store) ListByJob(ctx context.Context, jobID string, opts ListOptions) ([]domain.AuditLog, error) {
	return s.ListByEntity(ctx, "JOB", jobID, opts)
}

func scanAuditRows(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		var metadata string
		var ts int64
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.Action, &metadata, &ts); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		a.Timestamp = time.Unix(ts, 0)
		m, err := unmarshalJSONMap(metadata)
		if err != nil {
			return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
		a.Metadata = m
		out = append(out, a)
	}
	return out, rows.Err()
}
