package versioning

import (
	"context"
	"fmt"

	"github.com/inful/docgen/internal/audit"
)

// Service wraps a Manager with the audit trail every version creation
// must leave: one entry for the new DocumentVersion, one for the
// Document's advanced current_version pointer. A content-deduplicated
// hit produces neither entry — nothing new happened.
type Service struct {
	manager *Manager
	audit   *audit.Log
}

// NewService builds a Service over manager, recording audit entries
// through log.
func NewService(manager *Manager, log *audit.Log) *Service {
	return &Service{manager: manager, audit: log}
}

// CreateVersion runs Manager.CreateVersion and, on an actual new version,
// appends the two required audit entries.
func (s *Service) CreateVersion(ctx context.Context, documentID string, rendered []byte) (Result, error) {
	result, err := s.manager.CreateVersion(ctx, documentID, rendered)
	if err != nil {
		return Result{}, err
	}
	if result.Code != ResultCreated {
		return result, nil
	}

	if err := s.audit.Record(ctx, audit.EntityDocumentVersion, result.Version.ID, audit.ActionVersionCreated, map[string]any{
		"document_id":    documentID,
		"version_number": result.Version.VersionNumber,
		"content_hash":   result.Version.GenerationMetadata.ContentHash,
		"output_path":    result.Version.OutputPath,
	}); err != nil {
		return Result{}, fmt.Errorf("record version created audit entry: %w", err)
	}

	if err := s.audit.Record(ctx, audit.EntityDocument, documentID, audit.ActionUpdateCurrentVersion, map[string]any{
		"current_version": result.Version.VersionNumber,
	}); err != nil {
		return Result{}, fmt.Errorf("record current version audit entry: %w", err)
	}

	return result, nil
}
