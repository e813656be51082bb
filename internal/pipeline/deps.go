package pipeline

import (
	"context"

	"github.com/inful/docgen/internal/audit"
	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/classification"
	"github.com/inful/docgen/internal/config"
	"github.com/inful/docgen/internal/queue"
	"github.com/inful/docgen/internal/rendering"
	"github.com/inful/docgen/internal/retry"
	"github.com/inful/docgen/internal/sectiongen"
	"github.com/inful/docgen/internal/storage"
	"github.com/inful/docgen/internal/store"
	"github.com/inful/docgen/internal/versioning"
)

// Parser is the external collaborator that turns an uploaded source
// document's bytes into a ParsedDocument. The parser's own implementation
// (binary office-document decoding) is out of scope for this module; only
// the seam is defined here.
type Parser interface {
	Parse(ctx context.Context, source []byte) (block.ParsedDocument, error)
}

// Dependencies bundles every collaborator the job handlers in this
// package need: the durable store, the object store, the two external
// collaborators (Parser, Renderer), the optional LLM clients for
// classification and section generation, and the queue used to
// self-enqueue a pipeline's successor job.
type Dependencies struct {
	Store   *store.Store
	Objects storage.Store
	Queue   *queue.Queue
	Audit   *audit.Log

	Parser   Parser
	Renderer rendering.Renderer

	ClassificationThreshold float64
	LLMClassifier           classification.LLMClassifier
	SectionGenLLM           sectiongen.LLMClient
	SectionGenConstraints   sectiongen.Constraints
	SectionGenRetryPolicy   retry.Policy
}

// NewDependencies builds a Dependencies bag from config defaults plus the
// collaborators the caller supplies.
func NewDependencies(s *store.Store, objects storage.Store, q *queue.Queue, a *audit.Log, parser Parser, renderer rendering.Renderer, llmClassifier classification.LLMClassifier, sectionGenLLM sectiongen.LLMClient, llmCfg config.LLMConfig, retryCfg config.RetryConfig) Dependencies {
	threshold := llmCfg.ConfidenceThreshold
	if threshold == 0 {
		threshold = 0.85
	}
	return Dependencies{
		Store:                   s,
		Objects:                 objects,
		Queue:                   q,
		Audit:                   a,
		Parser:                  parser,
		Renderer:                renderer,
		ClassificationThreshold: threshold,
		LLMClassifier:           llmClassifier,
		SectionGenLLM:           sectionGenLLM,
		SectionGenConstraints:   sectiongen.DefaultConstraints(),
		SectionGenRetryPolicy:   retry.NewPolicy(retryCfg.Mode, retryCfg.Initial, retryCfg.Max, retryCfg.MaxRetries),
	}
}

func (d Dependencies) versioningService() *versioning.Service {
	return versioning.NewService(versioning.NewManager(d.Store, d.Objects), d.Audit)
}

func (d Dependencies) classificationService() *classification.Service {
	return classification.NewService(d.ClassificationThreshold, d.LLMClassifier)
}
