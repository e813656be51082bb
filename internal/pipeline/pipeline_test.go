package pipeline_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/inful/docgen/internal/assembly"
	"github.com/inful/docgen/internal/audit"
	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/config"
	"github.com/inful/docgen/internal/domain"
	derrors "github.com/inful/docgen/internal/foundation/errors"
	"github.com/inful/docgen/internal/hashing"
	"github.com/inful/docgen/internal/pipeline"
	"github.com/inful/docgen/internal/queue"
	"github.com/inful/docgen/internal/rendering"
	"github.com/inful/docgen/internal/storage"
	"github.com/inful/docgen/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeObjects is an in-memory storage.Store used across every pipeline test.
type fakeObjects struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func newFakeObjects() *fakeObjects { return &fakeObjects{objs: map[string][]byte{}} }

func (f *fakeObjects) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objs[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeObjects) Get(_ context.Context, key string) (*storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{Data: data}, nil
}

func (f *fakeObjects) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objs[key]
	return ok, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objs, key)
	return nil
}

func (f *fakeObjects) Close() error { return nil }

// fakeParser returns a fixed three-block document regardless of input
// bytes: a disclaimer paragraph (classifies STATIC by rule), a heading,
// and a placeholder paragraph (classifies DYNAMIC by rule).
type fakeParser struct{}

func (fakeParser) Parse(_ context.Context, _ []byte) (block.ParsedDocument, error) {
	blocks := []block.Block{
		{BlockID: "b0", Sequence: 0, Type: block.TypeHeading, Level: 1, Runs: []block.Run{{Text: "Engagement Summary"}}},
		{BlockID: "b1", Sequence: 1, Type: block.TypeParagraph, Runs: []block.Run{{Text: "This document is confidential and privileged."}}},
		{BlockID: "b2", Sequence: 2, Type: block.TypeParagraph, Runs: []block.Run{{Text: "Prepared specifically for {client_name}."}}},
	}
	return block.ParsedDocument{
		Blocks:   blocks,
		Metadata: block.Metadata{BlockCount: len(blocks)},
	}, nil
}

// fakeLLMGen returns deterministic, constraint-satisfying content for any
// GenerationInput.
type fakeLLMGen struct{}

func (fakeLLMGen) Generate(_ context.Context, in domain.GenerationInput) (string, error) {
	return fmt.Sprintf("Generated narrative for section %d, tailored to the client's engagement.", in.SectionID), nil
}

// fakeRenderer uploads a small deterministic payload to the object store
// under a path keyed by the assembled document, mirroring how a real
// renderer would persist its own artifact before the core re-fetches it.
type fakeRenderer struct {
	objects *fakeObjects
}

func (r fakeRenderer) Render(ctx context.Context, doc domain.AssembledDocument) (rendering.Result, error) {
	payload := []byte(fmt.Sprintf("rendered-document:%s:%d:%d", doc.DocumentID, doc.VersionIntent, doc.BlockCount))
	path := fmt.Sprintf("renders/%s.docx", doc.ID)
	if err := r.objects.Put(ctx, path, payload, "application/octet-stream"); err != nil {
		return rendering.Result{}, err
	}
	return rendering.Result{
		Success:     true,
		OutputPath:  path,
		ContentHash: hashing.Bytes(payload),
		FileSize:    int64(len(payload)),
		BlockCount:  doc.BlockCount,
	}, nil
}

func seedTemplateAndDocument(t *testing.T, s *store.Store, objects *fakeObjects) (templateVersionID, documentID string) {
	t.Helper()
	ctx := context.Background()

	templateID := uuid.NewString()
	require.NoError(t, s.CreateTemplate(ctx, domain.Template{ID: templateID, Name: "engagement-letter", CreatedAt: time.Now(), UpdatedAt: time.Now()}))

	sourceKey := storage.TemplateSourceKey(templateID, 1)
	require.NoError(t, objects.Put(ctx, sourceKey, []byte("fake docx bytes"), "application/octet-stream"))

	tvID := uuid.NewString()
	require.NoError(t, s.CreateTemplateVersion(ctx, domain.TemplateVersion{
		ID: tvID, TemplateID: templateID, VersionNumber: 1, SourcePath: sourceKey,
		ParsingStatus: domain.ParsingPending, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	docID := uuid.NewString()
	require.NoError(t, s.CreateDocument(ctx, domain.Document{ID: docID, TemplateVersionID: tvID, CurrentVersion: 0, CreatedAt: time.Now(), UpdatedAt: time.Now()}))

	return tvID, docID
}

func newDeps(s *store.Store, objects *fakeObjects, q *queue.Queue) pipeline.Dependencies {
	return pipeline.NewDependencies(
		s, objects, q, audit.New(s),
		fakeParser{}, fakeRenderer{objects: objects},
		nil, fakeLLMGen{},
		config.LLMConfig{ConfidenceThreshold: 0.85},
		config.RetryConfig{Mode: config.RetryBackoffFixed, MaxRetries: 0},
	)
}

func TestParseHandlerParsesAndEnqueuesClassify(t *testing.T) {
	s := newTestStore(t)
	objects := newFakeObjects()
	q := queue.New(s, nil)
	ctx := context.Background()

	tvID, _ := seedTemplateAndDocument(t, s, objects)
	deps := newDeps(s, objects, q)

	result, err := deps.ParseHandler(ctx, domain.Job{Payload: map[string]any{"template_version_id": tvID}})
	require.NoError(t, err)
	require.Equal(t, true, result["should_advance_pipeline"])

	tv, err := s.GetTemplateVersion(ctx, tvID)
	require.NoError(t, err)
	require.Equal(t, domain.ParsingCompleted, tv.ParsingStatus)
	require.NotEmpty(t, tv.ParsedPath)

	job, err := q.Claim(ctx, "worker-1", domain.JobClassify)
	require.NoError(t, err)
	require.Equal(t, tvID, job.Payload["template_version_id"])
}

func TestClassifyHandlerPersistsOneSectionPerBlock(t *testing.T) {
	s := newTestStore(t)
	objects := newFakeObjects()
	q := queue.New(s, nil)
	ctx := context.Background()

	tvID, _ := seedTemplateAndDocument(t, s, objects)
	deps := newDeps(s, objects, q)

	_, err := deps.ParseHandler(ctx, domain.Job{Payload: map[string]any{"template_version_id": tvID}})
	require.NoError(t, err)

	result, err := deps.ClassifyHandler(ctx, domain.Job{Payload: map[string]any{"template_version_id": tvID}})
	require.NoError(t, err)
	require.Equal(t, 3, result["section_count"])

	sections, err := s.ListSectionsByTemplateVersion(ctx, tvID)
	require.NoError(t, err)
	require.Len(t, sections, 3)

	var dynamicCount int
	for _, sec := range sections {
		if sec.SectionType == domain.SectionDynamic {
			dynamicCount++
			require.NotNil(t, sec.PromptConfig)
		}
	}
	require.Equal(t, 1, dynamicCount)
}

func runThroughClassify(t *testing.T, s *store.Store, objects *fakeObjects, q *queue.Queue, deps pipeline.Dependencies, tvID string) {
	t.Helper()
	ctx := context.Background()
	_, err := deps.ParseHandler(ctx, domain.Job{Payload: map[string]any{"template_version_id": tvID}})
	require.NoError(t, err)
	_, err = deps.ClassifyHandler(ctx, domain.Job{Payload: map[string]any{"template_version_id": tvID}})
	require.NoError(t, err)
}

func TestGenerateHandlerRunsAllFiveStages(t *testing.T) {
	s := newTestStore(t)
	objects := newFakeObjects()
	q := queue.New(s, nil)
	ctx := context.Background()

	tvID, docID := seedTemplateAndDocument(t, s, objects)
	deps := newDeps(s, objects, q)
	runThroughClassify(t, s, objects, q, deps, tvID)

	result, err := deps.GenerateHandler(ctx, domain.Job{Payload: map[string]any{
		"template_version_id": tvID,
		"document_id":         docID,
		"version_intent":      1,
		"client_data": map[string]any{
			"client_id":   "client-1",
			"client_name": "Acme Corp",
		},
	}})
	require.NoError(t, err)
	require.Equal(t, string(pipeline.StageCompleted), result["stage"])
	require.NotEmpty(t, result["input_batch_id"])
	require.NotEmpty(t, result["output_batch_id"])
	require.NotEmpty(t, result["assembled_document_id"])
	require.EqualValues(t, 1, result["version_number"])

	doc, err := s.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, 1, doc.CurrentVersion)

	entries, err := audit.New(s).ListByEntity(ctx, audit.EntityDocument, docID, store.ListOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestGenerateHandlerAttributesFailureToInputPreparationStage(t *testing.T) {
	s := newTestStore(t)
	objects := newFakeObjects()
	q := queue.New(s, nil)
	ctx := context.Background()

	// No classification has run, so there are no DYNAMIC sections and
	// input preparation must fail before any other stage runs.
	tvID, docID := seedTemplateAndDocument(t, s, objects)
	deps := newDeps(s, objects, q)
	_, err := deps.ParseHandler(ctx, domain.Job{Payload: map[string]any{"template_version_id": tvID}})
	require.NoError(t, err)

	result, err := deps.GenerateHandler(ctx, domain.Job{Payload: map[string]any{
		"template_version_id": tvID,
		"document_id":         docID,
	}})
	require.Error(t, err)
	require.Equal(t, string(pipeline.StageInputPreparation), result["error_stage"])

	classified, ok := derrors.AsClassified(err)
	require.True(t, ok, "runGeneration failures should be *errors.ClassifiedError")
	require.Equal(t, derrors.CategoryPipeline, classified.Category())
	require.True(t, classified.IsFatal())
}

func TestRegenerateHandlerDefaultsToNextVersionIntent(t *testing.T) {
	s := newTestStore(t)
	objects := newFakeObjects()
	q := queue.New(s, nil)
	ctx := context.Background()

	tvID, docID := seedTemplateAndDocument(t, s, objects)
	deps := newDeps(s, objects, q)
	runThroughClassify(t, s, objects, q, deps, tvID)

	_, err := deps.GenerateHandler(ctx, domain.Job{Payload: map[string]any{
		"template_version_id": tvID,
		"document_id":         docID,
		"version_intent":      1,
	}})
	require.NoError(t, err)

	result, err := deps.RegenerateHandler(ctx, domain.Job{Payload: map[string]any{"document_id": docID}})
	require.NoError(t, err)
	require.EqualValues(t, 2, result["version_number"])
}

func TestRegenerateSectionsHandlerCompletesWithTargetedSectionIDs(t *testing.T) {
	s := newTestStore(t)
	objects := newFakeObjects()
	q := queue.New(s, nil)
	ctx := context.Background()

	tvID, docID := seedTemplateAndDocument(t, s, objects)
	deps := newDeps(s, objects, q)
	runThroughClassify(t, s, objects, q, deps, tvID)

	sections, err := s.ListSectionsByTemplateVersion(ctx, tvID)
	require.NoError(t, err)
	var dynamicID int
	for _, sec := range sections {
		if sec.SectionType == domain.SectionDynamic {
			dynamicID = sec.ID
		}
	}
	require.NotZero(t, dynamicID)

	result, err := deps.RegenerateSectionsHandler(ctx, domain.Job{Payload: map[string]any{
		"document_id":    docID,
		"version_intent": 1,
		"section_ids":    []any{dynamicID},
	}})
	require.NoError(t, err)
	require.Equal(t, string(pipeline.StageCompleted), result["stage"])
}
