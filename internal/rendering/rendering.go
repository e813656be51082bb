// Package rendering defines the Document Rendering collaborator boundary
// (spec §4.7): converting an assembled block tree back into a binary
// office document is explicitly out of scope for the core, which only
// consumes a pure Renderer and persists its result.
package rendering

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inful/docgen/internal/domain"
)

// Result is what a Renderer produces for one AssembledDocument.
type Result struct {
	Success     bool
	OutputPath  string
	ContentHash string
	FileSize    int64
	BlockCount  int
	Error       string
}

// Renderer is a pure function of the assembled document: given the same
// input it must return the same artifact. The core never inspects the
// artifact's bytes directly — it only records the path, hash, and size
// the Renderer reports, and uploads/fetches the blob through the object
// store under that path.
type Renderer interface {
	Render(ctx context.Context, doc domain.AssembledDocument) (Result, error)
}

// renderedDocumentStore is the narrow slice of internal/store.Store this
// package depends on.
type renderedDocumentStore interface {
	CreateRenderedDocument(ctx context.Context, r domain.RenderedDocument) error
}

// Render invokes r against doc and persists a RenderedDocument row
// binding the AssembledDocument to the artifact the Renderer produced.
// A Renderer-reported failure (Result.Success == false) is surfaced as an
// error without writing a row — there is nothing to bind yet.
func Render(ctx context.Context, r Renderer, st renderedDocumentStore, doc domain.AssembledDocument) (domain.RenderedDocument, error) {
	result, err := r.Render(ctx, doc)
	if err != nil {
		return domain.RenderedDocument{}, fmt.Errorf("render assembled document %s: %w", doc.ID, err)
	}
	if !result.Success {
		return domain.RenderedDocument{}, fmt.Errorf("render assembled document %s failed: %s", doc.ID, result.Error)
	}

	row := domain.RenderedDocument{
		ID:                  uuid.NewString(),
		AssembledDocumentID: doc.ID,
		OutputPath:          result.OutputPath,
		ContentHash:         result.ContentHash,
		Size:                result.FileSize,
		BlockCount:          result.BlockCount,
		CreatedAt:           time.Now(),
	}
	if err := st.CreateRenderedDocument(ctx, row); err != nil {
		return domain.RenderedDocument{}, fmt.Errorf("persist rendered document: %w", err)
	}
	return row, nil
}
