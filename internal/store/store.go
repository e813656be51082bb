// Package store is the SQLite-backed persistence layer for the generation
// platform: templates, template versions, sections, generation input
// batches and inputs, section outputs, assembled and rendered documents,
// document versions, and the durable job queue. It follows the same
// sql.Open("sqlite", dsn) plus explicit-schema idiom as the teacher's
// eventstore package, widened to many tables and wrapped with the
// BEGIN IMMEDIATE-based atomic job claim spec §4.2 requires.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store owns the SQLite connection and exposes typed accessors grouped
// across sibling files: templates.go, batches.go, assembly.go, jobs.go,
// audit.go.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at dsn and
// applies the schema. Use ":memory:" for ephemeral/test databases.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single *sql.DB backs many goroutines; SQLite only truly serializes
	// writers, so keep one connection to avoid SQLITE_BUSY from concurrent
	// writers on separate connections racing each other.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw connection for callers (e.g. migrations tooling)
// that need it directly.
func (s *Store) DB() *sql.DB {
	return s.db
}

const schema = `
CREATE TABLE IF NOT EXISTS templates (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS template_versions (
	id TEXT PRIMARY KEY,
	template_id TEXT NOT NULL REFERENCES templates(id),
	version_number INTEGER NOT NULL,
	source_path TEXT NOT NULL,
	parsed_path TEXT NOT NULL DEFAULT '',
	parsing_status TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	parsing_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(template_id, version_number)
);
CREATE INDEX IF NOT EXISTS idx_template_versions_template ON template_versions(template_id);

CREATE TABLE IF NOT EXISTS sections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	template_version_id TEXT NOT NULL REFERENCES template_versions(id),
	section_type TEXT NOT NULL,
	structural_path TEXT NOT NULL,
	prompt_config TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	UNIQUE(template_version_id, structural_path)
);
CREATE INDEX IF NOT EXISTS idx_sections_template_version ON sections(template_version_id);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	template_version_id TEXT NOT NULL REFERENCES template_versions(id),
	current_version INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS generation_input_batches (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	template_version_id TEXT NOT NULL REFERENCES template_versions(id),
	version_intent INTEGER NOT NULL,
	status TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	total_inputs INTEGER NOT NULL DEFAULT 0,
	is_immutable INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batches_document ON generation_input_batches(document_id);

CREATE TABLE IF NOT EXISTS generation_inputs (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL REFERENCES generation_input_batches(id),
	section_id INTEGER NOT NULL REFERENCES sections(id),
	sequence_order INTEGER NOT NULL,
	hierarchy_ctx TEXT NOT NULL DEFAULT '{}',
	prompt_config TEXT NOT NULL DEFAULT '{}',
	client_data TEXT NOT NULL DEFAULT '{}',
	surrounding TEXT NOT NULL DEFAULT '{}',
	input_hash TEXT NOT NULL,
	UNIQUE(batch_id, section_id)
);
CREATE INDEX IF NOT EXISTS idx_inputs_batch ON generation_inputs(batch_id);

CREATE TABLE IF NOT EXISTS section_outputs (
	id TEXT PRIMARY KEY,
	output_batch_id TEXT NOT NULL,
	input_batch_id TEXT NOT NULL REFERENCES generation_input_batches(id),
	section_id INTEGER NOT NULL REFERENCES sections(id),
	status TEXT NOT NULL,
	generated_content TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	is_validated INTEGER NOT NULL DEFAULT 0,
	is_immutable INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outputs_batch ON section_outputs(output_batch_id);

CREATE TABLE IF NOT EXISTS assembled_documents (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	template_version_id TEXT NOT NULL REFERENCES template_versions(id),
	version_intent INTEGER NOT NULL,
	section_output_batch_id TEXT NOT NULL,
	status TEXT NOT NULL,
	assembly_hash TEXT NOT NULL DEFAULT '',
	block_count INTEGER NOT NULL DEFAULT 0,
	dynamic_block_count INTEGER NOT NULL DEFAULT 0,
	injection_results TEXT NOT NULL DEFAULT '[]',
	is_immutable INTEGER NOT NULL DEFAULT 0,
	error_code TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assembled_document ON assembled_documents(document_id);

CREATE TABLE IF NOT EXISTS rendered_documents (
	id TEXT PRIMARY KEY,
	assembled_document_id TEXT NOT NULL REFERENCES assembled_documents(id),
	output_path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	size INTEGER NOT NULL,
	block_count INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS document_versions (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	version_number INTEGER NOT NULL,
	output_path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	file_size_bytes INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(document_id, version_number)
);
CREATE INDEX IF NOT EXISTS idx_versions_document ON document_versions(document_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_versions_content ON document_versions(document_id, content_hash);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	worker_id TEXT NOT NULL DEFAULT '',
	started_at INTEGER,
	completed_at INTEGER,
	result TEXT NOT NULL DEFAULT '{}',
	error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_type_status ON jobs(type, status);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	action TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_job ON audit_log(entity_type, entity_id) WHERE entity_type = 'JOB';
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = fmt.Errorf("store: not found")

// ErrImmutable is returned when a caller attempts to modify a row past
// its immutability-on-transition point.
var ErrImmutable = fmt.Errorf("store: immutable")
