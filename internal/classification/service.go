package classification

import (
	"context"
	"log/slog"

	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/logfields"
)

// fallbackJustification is the literal justification recorded whenever
// the pipeline bottoms out without a confident decision.
const fallbackJustification = "Conservative fallback"

// Service runs the three-stage classification pipeline per block:
// rule-based, then an optional LLM pass, then a conservative fallback.
// It holds no mutable state of its own (the RuleClassifier is stateless
// and thread-safe, the LLM collaborator is externally owned), so a single
// Service may be shared across worker goroutines.
type Service struct {
	rules     *RuleClassifier
	llm       LLMClassifier // nil disables the LLM-assisted stage
	threshold float64
}

// NewService builds a Service. llm may be nil to run rule-based +
// fallback only.
func NewService(threshold float64, llm LLMClassifier) *Service {
	return &Service{rules: NewRuleClassifier(threshold), llm: llm, threshold: threshold}
}

// Classify decides STATIC/DYNAMIC for block b within the document
// described by all, at index i. It never returns an error: an LLM
// collaborator failure degrades to the fallback rather than propagating,
// since classification must make progress for every block.
func (s *Service) Classify(ctx context.Context, all []block.Block, i int) Result {
	b := all[i]
	cctx := neighborContext(all, i)

	if res, ok := s.rules.Classify(b, cctx); ok {
		return res
	}

	if s.llm != nil {
		res, ok, err := s.llm.Classify(ctx, b, cctx)
		if err != nil {
			slog.Warn("llm classification failed, falling back", logfields.Error(err), "block_id", b.BlockID)
		} else if ok && res.Confidence >= s.threshold {
			return res
		}
	}

	return Result{
		SectionType:   domain.SectionStatic,
		Confidence:    0.5,
		Method:        MethodFallback,
		Justification: fallbackJustification,
		Metadata:      map[string]any{},
	}
}

func neighborContext(all []block.Block, i int) Context {
	var c Context
	if i > 0 {
		c.PreviousBlockType = string(all[i-1].Type)
	}
	if i+1 < len(all) {
		c.NextBlockType = string(all[i+1].Type)
	}
	c.PositionInDocument = i
	return c
}
