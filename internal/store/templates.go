package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inful/docgen/internal/domain"
)

// CreateTemplate inserts a new Template row.
func (s *Store) CreateTemplate(ctx context.Context, t domain.Template) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, t.CreatedAt.Unix(), t.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// GetTemplate fetches a Template by id.
func (s *Store) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM templates WHERE id = ?`, id)
	var t domain.Template
	var createdAt, updatedAt int64
	if err := row.Scan(&t.ID, &t.Name, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Template{}, ErrNotFound
		}
		return domain.Template{}, fmt.Errorf("get template: %w", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)
	return t, nil
}

// CreateTemplateVersion inserts a new TemplateVersion row with status
// PENDING (or whatever ParsingStatus is set on tv).
func (s *Store) CreateTemplateVersion(ctx context.Context, tv domain.TemplateVersion) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO template_versions
			(id, template_id, version_number, source_path, parsed_path, parsing_status, content_hash, parsing_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tv.ID, tv.TemplateID, tv.VersionNumber, tv.SourcePath, tv.ParsedPath,
		tv.ParsingStatus, tv.ContentHash, tv.ParsingError, tv.CreatedAt.Unix(), tv.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create template version: %w", err)
	}
	return nil
}

// GetTemplateVersion fetches a TemplateVersion by id.
func (s *Store) GetTemplateVersion(ctx context.Context, id string) (domain.TemplateVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, template_id, version_number, source_path, parsed_path, parsing_status, content_hash, parsing_error, created_at, updated_at
		 FROM template_versions WHERE id = ?`, id)
	return scanTemplateVersion(row)
}

func scanTemplateVersion(row *sql.Row) (domain.TemplateVersion, error) {
	var tv domain.TemplateVersion
	var createdAt, updatedAt int64
	err := row.Scan(&tv.ID, &tv.TemplateID, &tv.VersionNumber, &tv.SourcePath, &tv.ParsedPath,
		&tv.ParsingStatus, &tv.ContentHash, &tv.ParsingError, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TemplateVersion{}, ErrNotFound
		}
		return domain.TemplateVersion{}, fmt.Errorf("scan template version: %w", err)
	}
	tv.CreatedAt = time.Unix(createdAt, 0)
	tv.UpdatedAt = time.Unix(updatedAt, 0)
	return tv, nil
}

// CompleteParsing transitions a TemplateVersion PENDING/IN_PROGRESS ->
// COMPLETED, recording its parsed artifact path and content hash. The row
// is immutable afterward; calling this twice returns ErrImmutable.
func (s *Store) CompleteParsing(ctx context.Context, id, parsedPath, contentHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE template_versions SET parsed_path = ?, content_hash = ?, parsing_status = ?, updated_at = ?
		 WHERE id = ? AND parsing_status != ?`,
		parsedPath, contentHash, domain.ParsingCompleted, time.Now().Unix(), id, domain.ParsingCompleted,
	)
	if err != nil {
		return fmt.Errorf("complete parsing: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrImmutable
	}
	return nil
}

// FailParsing transitions a TemplateVersion to FAILED with the given error.
func (s *Store) FailParsing(ctx context.Context, id, parsingError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE template_versions SET parsing_status = ?, parsing_error = ?, updated_at = ?
		 WHERE id = ? AND parsing_status != ?`,
		domain.ParsingFailed, parsingError, time.Now().Unix(), id, domain.ParsingCompleted,
	)
	if err != nil {
		return fmt.Errorf("fail parsing: %w", err)
	}
	return nil
}

// CreateSection inserts a classified Section row. Sections are immutable
// once created; there is no update path.
func (s *Store) CreateSection(ctx context.Context, sec domain.Section) (int, error) {
	cfg, err := marshalJSON(sec.PromptConfig)
	if err != nil {
		return 0, fmt.Errorf("marshal prompt config: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sections (template_version_id, section_type, structural_path, prompt_config, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sec.TemplateVersionID, sec.SectionType, sec.StructuralPath, cfg, sec.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("create section: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("section last insert id: %w", err)
	}
	return int(id), nil
}

// ListSectionsByTemplateVersion returns every Section classified for a
// template version, ordered by structural path.
func (s *Store) ListSectionsByTemplateVersion(ctx context.Context, templateVersionID string) ([]domain.Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, template_version_id, section_type, structural_path, prompt_config, created_at
		 FROM sections WHERE template_version_id = ? ORDER BY structural_path`, templateVersionID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var out []domain.Section
	for rows.Next() {
		var sec domain.Section
		var cfg string
		var createdAt int64
		if err := rows.Scan(&sec.ID, &sec.TemplateVersionID, &sec.SectionType, &sec.StructuralPath, &cfg, &createdAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sec.CreatedAt = time.Unix(createdAt, 0)
		if sec.PromptConfig, err = unmarshalJSONMap(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal prompt config: %w", err)
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

// GetSectionByPath fetches the Section classified at a structural path
// within a template version.
func (s *Store) GetSectionByPath(ctx context.Context, templateVersionID, structuralPath string) (domain.Section, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, template_version_id, section_type, structural_path, prompt_config, created_at
		 FROM sections WHERE template_version_id = ? AND structural_path = ?`, templateVersionID, structuralPath)
	var sec domain.Section
	var cfg string
	var createdAt int64
	if err := row.Scan(&sec.ID, &sec.TemplateVersionID, &sec.SectionType, &sec.StructuralPath, &cfg, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Section{}, ErrNotFound
		}
		return domain.Section{}, fmt.Errorf("get section by path: %w", err)
	}
	sec.CreatedAt = time.Unix(createdAt, 0)
	cfgMap, err := unmarshalJSONMap(cfg)
	if err != nil {
		return domain.Section{}, fmt.Errorf("unmarshal prompt config: %w", err)
	}
	sec.PromptConfig = cfgMap
	return sec, nil
}

// CreateDocument inserts a new Document row.
func (s *Store) CreateDocument(ctx context.Context, d domain.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, template_version_id, current_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.TemplateVersionID, d.CurrentVersion, d.CreatedAt.Unix(), d.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetDocument fetches a Document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, template_version_id, current_version, created_at, updated_at FROM documents WHERE id = ?`, id)
	var d domain.Document
	var createdAt, updatedAt int64
	if err := row.Scan(&d.ID, &d.TemplateVersionID, &d.CurrentVersion, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, ErrNotFound
		}
		return domain.Document{}, fmt.Errorf("get document: %w", err)
	}
	d.CreatedAt = time.Unix(createdAt, 0)
	d.UpdatedAt = time.Unix(updatedAt, 0)
	return d, nil
}

// AdvanceCurrentVersion sets a Document's current_version forward. It
// refuses to move the pointer backward, since CurrentVersion only ever
// advances.
func (s *Store) AdvanceCurrentVersion(ctx context.Context, documentID string, versionNumber int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET current_version = ?, updated_at = ? WHERE id = ? AND current_version < ?`,
		versionNumber, time.Now().Unix(), documentID, versionNumber,
	)
	if err != nil {
		return fmt.Errorf("advance current version: %w", err)
	}
	return nil
}
