// Package audit is the append-only audit journal for the generation
// platform: every entity transition records one typed, immutable row.
// It wraps internal/store's audit_log table with the typed entity/action
// vocabulary the rest of the system uses, exposing only the documented
// query predicates (by entity, by job) rather than a general-purpose
// filter-then-scan — the teacher's event-projection package answered
// "what happened during this build" by loading every event and filtering
// in memory, which does not scale to an audit log with years of rows, so
// this package deliberately does not offer that shape.
package audit

import (
	"context"
	"fmt"

	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/store"
)

// EntityType names the kind of row an audit entry is about.
type EntityType string

const (
	EntityTemplate         EntityType = "TEMPLATE"
	EntityTemplateVersion  EntityType = "TEMPLATE_VERSION"
	EntityDocument         EntityType = "DOCUMENT"
	EntityDocumentVersion  EntityType = "DOCUMENT_VERSION"
	EntitySection          EntityType = "SECTION"
	EntityJob              EntityType = "JOB"
	EntityGenerationBatch  EntityType = "GENERATION_BATCH"
	EntitySectionOutput    EntityType = "SECTION_OUTPUT"
	EntitySectionOutputSet EntityType = "SECTION_OUTPUT_BATCH"
	EntityAssembledDoc     EntityType = "ASSEMBLED_DOCUMENT"
	EntityRenderedDoc      EntityType = "RENDERED_DOCUMENT"
)

// Action names what happened to an entity.
type Action string

const (
	ActionCreated                   Action = "CREATE"
	ActionUpdateCurrentVersion      Action = "UPDATE_CURRENT_VERSION"
	ActionGenerationInitiated       Action = "GENERATION_INITIATED"
	ActionSectionGenerationComplete Action = "SECTION_GENERATION_COMPLETED"
	ActionSectionGenerationFailed   Action = "SECTION_GENERATION_FAILED"
	ActionBatchGenerationComplete   Action = "BATCH_GENERATION_COMPLETED"
	ActionBatchGenerationFailed     Action = "BATCH_GENERATION_FAILED"
	ActionAssemblyComplete          Action = "DOCUMENT_ASSEMBLY_COMPLETED"
	ActionAssemblyFailed            Action = "DOCUMENT_ASSEMBLY_FAILED"
	ActionRenderingComplete         Action = "DOCUMENT_RENDERING_COMPLETED"
	ActionRenderingFailed           Action = "DOCUMENT_RENDERING_FAILED"
	ActionVersionCreated            Action = "DOCUMENT_VERSION_CREATED"
)

// Entry mirrors store.domain.AuditLog with the typed wrappers above.
type Entry struct {
	ID         int64
	EntityType EntityType
	EntityID   string
	Action     Action
	Metadata   map[string]any
}

// Log appends one audit entry.
type Log struct {
	store *store.Store
}

// New wraps a *store.Store as an audit Log.
func New(s *store.Store) *Log {
	return &Log{store: s}
}

// Record appends an audit entry for entityType/entityID/action.
func (l *Log) Record(ctx context.Context, entityType EntityType, entityID string, action Action, metadata map[string]any) error {
	if err := l.store.AppendAudit(ctx, string(entityType), entityID, string(action), metadata); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail for one entity, oldest first.
func (l *Log) ListByEntity(ctx context.Context, entityType EntityType, entityID string, opts store.ListOptions) ([]Entry, error) {
	rows, err := l.store.ListByEntity(ctx, string(entityType), entityID, opts)
	if err != nil {
		return nil, fmt.Errorf("list audit by entity: %w", err)
	}
	return toEntries(rows), nil
}

// ListByJob returns the audit trail recorded against a job id.
func (l *Log) ListByJob(ctx context.Context, jobID string, opts store.ListOptions) ([]Entry, error) {
	rows, err := l.store.ListByJob(ctx, jobID, opts)
	if err != nil {
		return nil, fmt.Errorf("list audit by job: %w", err)
	}
	return toEntries(rows), nil
}

func toEntries(rows []domain.AuditLog) []Entry {
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{
			ID:         r.ID,
			EntityType: EntityType(r.EntityType),
			EntityID:   r.EntityID,
			Action:     Action(r.Action),
			Metadata:   r.Metadata,
		}
	}
	return out
}
