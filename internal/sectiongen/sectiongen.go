// Package sectiongen implements the Section Generation pipeline stage:
// turning each validated GenerationInput into a validated SectionOutput
// by invoking an external LLM client, enforcing content constraints, and
// persisting the result immutably. Grounded on the teacher's retry.Policy
// for transient-failure backoff around the external call.
package sectiongen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/hashing"
	"github.com/inful/docgen/internal/retry"
)

// LLMClient is the narrow external collaborator that turns one
// GenerationInput into generated text. It is the only I/O boundary of
// this package; everything else is pure.
type LLMClient interface {
	Generate(ctx context.Context, in domain.GenerationInput) (string, error)
}

// Constraints bounds the generated content's length and shape.
type Constraints struct {
	MinLength int
	MaxLength int
}

// DefaultConstraints mirrors a conservative section-length expectation:
// long enough to be substantive, short enough to fit a document section.
func DefaultConstraints() Constraints {
	return Constraints{MinLength: 10, MaxLength: 4000}
}

// ContentConstraintError reports generated content that violates
// Constraints.
type ContentConstraintError struct {
	SectionID int
	Reason    string
}

func (e *ContentConstraintError) Error() string {
	return fmt.Sprintf("section %d: generated content violates constraints: %s", e.SectionID, e.Reason)
}

func enforce(content string, c Constraints) error {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < c.MinLength {
		return fmt.Errorf("content length %d below minimum %d", len(trimmed), c.MinLength)
	}
	if len(trimmed) > c.MaxLength {
		return fmt.Errorf("content length %d exceeds maximum %d", len(trimmed), c.MaxLength)
	}
	if !endsWithSentenceTerminator(trimmed) {
		return fmt.Errorf("content does not end in a complete sentence")
	}
	return nil
}

func endsWithSentenceTerminator(s string) bool {
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	return last == '.' || last == '!' || last == '?' || last == '"' || last == '\''
}

// outputStore is the narrow slice of internal/store.Store this package
// depends on.
type outputStore interface {
	CreateSectionOutput(ctx context.Context, o domain.SectionOutput) error
	ValidateSectionOutput(ctx context.Context, id, content, contentHash string) error
	FailSectionOutput(ctx context.Context, id string) error
}

// Service drives content generation for a whole batch of inputs.
type Service struct {
	llm         LLMClient
	constraints Constraints
	policy      retry.Policy
}

// NewService builds a Service. A zero Constraints uses DefaultConstraints.
func NewService(llm LLMClient, constraints Constraints, policy retry.Policy) *Service {
	if constraints == (Constraints{}) {
		constraints = DefaultConstraints()
	}
	return &Service{llm: llm, constraints: constraints, policy: policy}
}

// GenerateBatch produces one SectionOutput per input, in input
// sequence-order. Failures are recorded per-section (status=FAILED) and
// do not abort the batch — the caller (pipeline handler) decides whether
// any failure fails the run as a whole by consulting the persisted
// failed_count.
func (s *Service) GenerateBatch(ctx context.Context, st outputStore, outputBatchID, inputBatchID string, inputs []domain.GenerationInput) ([]domain.SectionOutput, error) {
	outputs := make([]domain.SectionOutput, 0, len(inputs))
	for _, in := range inputs {
		out, err := s.generateOne(ctx, st, outputBatchID, inputBatchID, in)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", in.SectionID, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (s *Service) generateOne(ctx context.Context, st outputStore, outputBatchID, inputBatchID string, in domain.GenerationInput) (domain.SectionOutput, error) {
	now := time.Now()
	out := domain.SectionOutput{
		ID:            uuid.NewString(),
		OutputBatchID: outputBatchID,
		InputBatchID:  inputBatchID,
		SectionID:     in.SectionID,
		Status:        domain.OutputPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := st.CreateSectionOutput(ctx, out); err != nil {
		return domain.SectionOutput{}, fmt.Errorf("create section output: %w", err)
	}

	content, err := s.callWithRetry(ctx, in)
	if err != nil {
		_ = st.FailSectionOutput(ctx, out.ID)
		out.Status = domain.OutputFailed
		return out, nil
	}

	if err := enforce(content, s.constraints); err != nil {
		_ = st.FailSectionOutput(ctx, out.ID)
		out.Status = domain.OutputFailed
		return out, nil
	}

	contentHash := hashing.Text(content)
	if err := st.ValidateSectionOutput(ctx, out.ID, content, contentHash); err != nil {
		return domain.SectionOutput{}, fmt.Errorf("validate section output: %w", err)
	}
	out.GeneratedContent = content
	out.ContentHash = contentHash
	out.IsValidated = true
	out.IsImmutable = true
	out.Status = domain.OutputValidated
	return out, nil
}

func (s *Service) callWithRetry(ctx context.Context, in domain.GenerationInput) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.policy.Delay(attempt)):
			}
		}
		content, err := s.llm.Generate(ctx, in)
		if err == nil {
			return content, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("llm generate failed after %d attempts: %w", s.policy.MaxRetries+1, lastErr)
}
