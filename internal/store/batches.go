package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inful/docgen/internal/domain"
)

// CreateInputBatch inserts a GenerationInputBatch row in PENDING status.
func (s *Store) CreateInputBatch(ctx context.Context, b domain.GenerationInputBatch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_input_batches
			(id, document_id, template_version_id, version_intent, status, content_hash, total_inputs, is_immutable, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.DocumentID, b.TemplateVersionID, b.VersionIntent, b.Status, b.ContentHash,
		b.TotalInputs, boolToInt(b.IsImmutable), b.CreatedAt.Unix(), b.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create input batch: %w", err)
	}
	return nil
}

// ValidateInputBatch transitions a batch PENDING -> VALIDATED, stamping
// its content hash and input count, and makes it immutable. Calling this
// on an already-immutable batch returns ErrImmutable.
func (s *Store) ValidateInputBatch(ctx context.Context, id, contentHash string, totalInputs int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE generation_input_batches SET status = ?, content_hash = ?, total_inputs = ?, is_immutable = 1, updated_at = ?
		 WHERE id = ? AND is_immutable = 0`,
		domain.BatchValidated, contentHash, totalInputs, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("validate input batch: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrImmutable
	}
	return nil
}

// FailInputBatch transitions a batch to FAILED. FAILED batches are
// terminal but are not flagged immutable (there is nothing left to
// protect once input preparation gives up).
func (s *Store) FailInputBatch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE generation_input_batches SET status = ?, updated_at = ? WHERE id = ? AND is_immutable = 0`,
		domain.BatchFailed, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("fail input batch: %w", err)
	}
	return nil
}

// GetInputBatch fetches a GenerationInputBatch by id.
func (s *Store) GetInputBatch(ctx context.Context, id string) (domain.GenerationInputBatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, template_version_id, version_intent, status, content_hash, total_inputs, is_immutable, created_at, updated_at
		 FROM generation_input_batches WHERE id = ?`, id)
	var b domain.GenerationInputBatch
	var immutable int
	var createdAt, updatedAt int64
	err := row.Scan(&b.ID, &b.DocumentID, &b.TemplateVersionID, &b.VersionIntent, &b.Status,
		&b.ContentHash, &b.TotalInputs, &immutable, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GenerationInputBatch{}, ErrNotFound
		}
		return domain.GenerationInputBatch{}, fmt.Errorf("get input batch: %w", err)
	}
	b.IsImmutable = immutable != 0
	b.CreatedAt = time.Unix(createdAt, 0)
	b.UpdatedAt = time.Unix(updatedAt, 0)
	return b, nil
}

// CreateInput inserts one GenerationInput row within a batch.
func (s *Store) CreateInput(ctx context.Context, in domain.GenerationInput) error {
	hier, err := marshalJSON(in.HierarchyCtx)
	if err != nil {
		return fmt.Errorf("marshal hierarchy context: %w", err)
	}
	cfg, err := marshalJSON(in.PromptConfig)
	if err != nil {
		return fmt.Errorf("marshal prompt config: %w", err)
	}
	client, err := marshalJSON(in.ClientData)
	if err != nil {
		return fmt.Errorf("marshal client data: %w", err)
	}
	surrounding, err := marshalJSON(in.Surrounding)
	if err != nil {
		return fmt.Errorf("marshal surrounding context: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO generation_inputs
			(id, batch_id, section_id, sequence_order, hierarchy_ctx, prompt_config, client_data, surrounding, input_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.BatchID, in.SectionID, in.SequenceOrder, hier, cfg, client, surrounding, in.InputHash,
	)
	if err != nil {
		return fmt.Errorf("create input: %w", err)
	}
	return nil
}

// ListInputsByBatch returns every GenerationInput in a batch, ordered by
// sequence_order.
func (s *Store) ListInputsByBatch(ctx context.Context, batchID string) ([]domain.GenerationInput, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, section_id, sequence_order, hierarchy_ctx, prompt_config, client_data, surrounding, input_hash
		 FROM generation_inputs WHERE batch_id = ? ORDER BY sequence_order`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	defer rows.Close()

	var out []domain.GenerationInput
	for rows.Next() {
		var in domain.GenerationInput
		var hier, cfg, client, surrounding string
		if err := rows.Scan(&in.ID, &in.BatchID, &in.SectionID, &in.SequenceOrder, &hier, &cfg, &client, &surrounding, &in.InputHash); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		if err := unmarshalInto(hier, &in.HierarchyCtx); err != nil {
			return nil, fmt.Errorf("unmarshal hierarchy context: %w", err)
		}
		if in.PromptConfig, err = unmarshalJSONMap(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal prompt config: %w", err)
		}
		if in.ClientData, err = unmarshalJSONMap(client); err != nil {
			return nil, fmt.Errorf("unmarshal client data: %w", err)
		}
		if err := unmarshalInto(surrounding, &in.Surrounding); err != nil {
			return nil, fmt.Errorf("unmarshal surrounding context: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// CreateSectionOutput inserts a new SectionOutput row in PENDING status.
func (s *Store) CreateSectionOutput(ctx context.Context, o domain.SectionOutput) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO section_outputs
			(id, output_batch_id, input_batch_id, section_id, status, generated_content, content_hash, is_validated, is_immutable, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OutputBatchID, o.InputBatchID, o.SectionID, o.Status, o.GeneratedContent, o.ContentHash,
		boolToInt(o.IsValidated), boolToInt(o.IsImmutable), o.CreatedAt.Unix(), o.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create section output: %w", err)
	}
	return nil
}

// ValidateSectionOutput transitions a SectionOutput to VALIDATED and
// immutable, recording its generated content and content hash.
func (s *Store) ValidateSectionOutput(ctx context.Context, id, content, contentHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE section_outputs SET status = ?, generated_content = ?, content_hash = ?, is_validated = 1, is_immutable = 1, updated_at = ?
		 WHERE id = ? AND is_immutable = 0`,
		domain.OutputValidated, content, contentHash, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("validate section output: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrImmutable
	}
	return nil
}

// FailSectionOutput marks a SectionOutput FAILED without making it
// immutable — a failed output carries no protected content.
func (s *Store) FailSectionOutput(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE section_outputs SET status = ?, updated_at = ? WHERE id = ? AND is_immutable = 0`,
		domain.OutputFailed, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("fail section output: %w", err)
	}
	return nil
}

// ListOutputsByBatch returns every SectionOutput produced for an output
// batch, ordered by section_id.
func (s *Store) ListOutputsByBatch(ctx context.Context, outputBatchID string) ([]domain.SectionOutput, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, output_batch_id, input_batch_id, section_id, status, generated_content, content_hash, is_validated, is_immutable, created_at, updated_at
		 FROM section_outputs WHERE output_batch_id = ? ORDER BY section_id`, outputBatchID)
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	defer rows.Close()

	var out []domain.SectionOutput
	for rows.Next() {
		var o domain.SectionOutput
		var validated, immutable int
		var createdAt, updatedAt int64
		if err := rows.Scan(&o.ID, &o.OutputBatchID, &o.InputBatchID, &o.SectionID, &o.Status,
			&o.GeneratedContent, &o.ContentHash, &validated, &immutable, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan section output: %w", err)
		}
		o.IsValidated = validated != 0
		o.IsImmutable = immutable != 0
		o.CreatedAt = time.Unix(createdAt, 0)
		o.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountFailedOutputs returns the number of FAILED SectionOutputs in an
// output batch — the pipeline handler consults this to decide whether a
// GENERATE run as a whole failed.
func (s *Store) CountFailedOutputs(ctx context.Context, outputBatchID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM section_outputs WHERE output_batch_id = ? AND status = ?`,
		outputBatchID, domain.OutputFailed,
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count failed outputs: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
