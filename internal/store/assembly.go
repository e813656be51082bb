package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inful/docgen/internal/domain"
)

// CreateAssembledDocument inserts a new AssembledDocument row with the
// status the caller sets on a.
func (s *Store) CreateAssembledDocument(ctx context.Context, a domain.AssembledDocument) error {
	injections, err := marshalJSON(a.InjectionResults)
	if err != nil {
		return fmt.Errorf("marshal injection results: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assembled_documents
			(id, document_id, template_version_id, version_intent, section_output_batch_id, status,
			 assembly_hash, block_count, dynamic_block_count, injection_results, is_immutable, error_code, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DocumentID, a.TemplateVersionID, a.VersionIntent, a.SectionOutputBatchID, a.Status,
		a.AssemblyHash, a.BlockCount, a.DynamicBlockCount, injections, boolToInt(a.IsImmutable),
		a.ErrorCode, a.ErrorMessage, a.CreatedAt.Unix(), a.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create assembled document: %w", err)
	}
	return nil
}

// CompleteAssembly transitions PENDING/IN_PROGRESS -> VALIDATED, records
// the final assembly hash and block counts, and marks the row immutable.
func (s *Store) CompleteAssembly(ctx context.Context, id, assemblyHash string, blockCount, dynamicBlockCount int, injectionResults []domain.InjectionResult) error {
	injections, err := marshalJSON(injectionResults)
	if err != nil {
		return fmt.Errorf("marshal injection results: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE assembled_documents
		 SET status = ?, assembly_hash = ?, block_count = ?, dynamic_block_count = ?, injection_results = ?, is_immutable = 1, updated_at = ?
		 WHERE id = ? AND is_immutable = 0`,
		domain.AssemblyValidated, assemblyHash, blockCount, dynamicBlockCount, injections, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("complete assembly: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrImmutable
	}
	return nil
}

// FailAssembly transitions an AssembledDocument to FAILED with a
// structural-integrity error code and message.
func (s *Store) FailAssembly(ctx context.Context, id, errorCode, errorMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE assembled_documents SET status = ?, error_code = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND is_immutable = 0`,
		domain.AssemblyFailed, errorCode, errorMessage, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("fail assembly: %w", err)
	}
	return nil
}

// GetAssembledDocument fetches an AssembledDocument by id.
func (s *Store) GetAssembledDocument(ctx context.Context, id string) (domain.AssembledDocument, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, template_version_id, version_intent, section_output_batch_id, status,
			assembly_hash, block_count, dynamic_block_count, injection_results, is_immutable, error_code, error_message, created_at, updated_at
		 FROM assembled_documents WHERE id = ?`, id)
	var a domain.AssembledDocument
	var immutable int
	var injections string
	var createdAt, updatedAt int64
	err := row.Scan(&a.ID, &a.DocumentID, &a.TemplateVersionID, &a.VersionIntent, &a.SectionOutputBatchID, &a.Status,
		&a.AssemblyHash, &a.BlockCount, &a.DynamicBlockCount, &injections, &immutable, &a.ErrorCode, &a.ErrorMessage, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AssembledDocument{}, ErrNotFound
		}
		return domain.AssembledDocument{}, fmt.Errorf("get assembled document: %w", err)
	}
	a.IsImmutable = immutable != 0
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)
	if err := unmarshalInto(injections, &a.InjectionResults); err != nil {
		return domain.AssembledDocument{}, fmt.Errorf("unmarshal injection results: %w", err)
	}
	return a, nil
}

// CreateRenderedDocument inserts a RenderedDocument row binding an
// AssembledDocument to an object-storage artifact.
func (s *Store) CreateRenderedDocument(ctx context.Context, r domain.RenderedDocument) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rendered_documents (id, assembled_document_id, output_path, content_hash, size, block_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AssembledDocumentID, r.OutputPath, r.ContentHash, r.Size, r.BlockCount, r.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create rendered document: %w", err)
	}
	return nil
}

// FindDocumentVersionByContentHash looks up an existing DocumentVersion
// for a document with a matching content hash — the dedup check that
// makes re-generating identical content a no-op.
func (s *Store) FindDocumentVersionByContentHash(ctx context.Context, documentID, contentHash string) (domain.DocumentVersion, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, version_number, output_path, content_hash, file_size_bytes, created_at
		 FROM document_versions WHERE document_id = ? AND content_hash = ?`, documentID, contentHash)
	v, err := scanDocumentVersion(row)
	if errors.Is(err, ErrNotFound) {
		return domain.DocumentVersion{}, false, nil
	}
	if err != nil {
		return domain.DocumentVersion{}, false, err
	}
	return v, true, nil
}

// NextVersionNumber returns the next dense version number for a document
// (1 for the first version).
func (s *Store) NextVersionNumber(ctx context.Context, documentID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM document_versions WHERE document_id = ?`, documentID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("next version number: %w", err)
	}
	return n, nil
}

// CreateDocumentVersion inserts a new, immutable DocumentVersion row.
// The unique index on (document_id, content_hash) makes a concurrent
// duplicate insert fail; callers should treat a unique-constraint error
// here as "another writer already created the deduplicated version" and
// re-read via FindDocumentVersionByContentHash.
func (s *Store) CreateDocumentVersion(ctx context.Context, v domain.DocumentVersion) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_versions (id, document_id, version_number, output_path, content_hash, file_size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.DocumentID, v.VersionNumber, v.OutputPath,
		v.GenerationMetadata.ContentHash, v.GenerationMetadata.FileSizeBytes, v.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create document version: %w", err)
	}
	return nil
}

// GetDocumentVersion fetches a specific DocumentVersion.
func (s *Store) GetDocumentVersion(ctx context.Context, documentID string, versionNumber int) (domain.DocumentVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, version_number, output_path, content_hash, file_size_bytes, created_at
		 FROM document_versions WHERE document_id = ? AND version_number = ?`, documentID, versionNumber)
	return scanDocumentVersion(row)
}

func scanDocumentVersion(row *sql.Row) (domain.DocumentVersion, error) {
	var v domain.DocumentVersion
	var createdAt int64
	err := row.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.OutputPath,
		&v.GenerationMetadata.ContentHash, &v.GenerationMetadata.FileSizeBytes, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DocumentVersion{}, ErrNotFound
		}
		return domain.DocumentVersion{}, fmt.Errorf("scan document version: %w", err)
	}
	v.CreatedAt = time.Unix(createdAt, 0)
	return v, nil
}
