package sectiongen_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/retry"
	"github.com/inful/docgen/internal/sectiongen"
)

type fakeStore struct {
	created   []domain.SectionOutput
	validated map[string]bool
	failed    map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{validated: map[string]bool{}, failed: map[string]bool{}}
}

func (f *fakeStore) CreateSectionOutput(_ context.Context, o domain.SectionOutput) error {
	f.created = append(f.created, o)
	return nil
}
func (f *fakeStore) ValidateSectionOutput(_ context.Context, id, content, contentHash string) error {
	f.validated[id] = true
	return nil
}
func (f *fakeStore) FailSectionOutput(_ context.Context, id string) error {
	f.failed[id] = true
	return nil
}

type fakeLLM struct {
	content string
	err     error
}

func (f fakeLLM) Generate(_ context.Context, _ domain.GenerationInput) (string, error) {
	return f.content, f.err
}

func TestGenerateBatchHappyPath(t *testing.T) {
	llm := fakeLLM{content: "This is generated content for the section."}
	svc := sectiongen.NewService(llm, sectiongen.Constraints{}, retry.Policy{MaxRetries: 0})
	st := newFakeStore()
	inputs := []domain.GenerationInput{{SectionID: 1}, {SectionID: 2}}

	outputs, err := svc.GenerateBatch(context.Background(), st, "ob-1", "ib-1", inputs)
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	for _, o := range outputs {
		require.Equal(t, domain.OutputValidated, o.Status)
		require.True(t, o.IsImmutable)
		require.NotEmpty(t, o.ContentHash)
	}
}

func TestGenerateBatchRecordsPerSectionFailureWithoutAborting(t *testing.T) {
	llm := fakeLLM{err: errors.New("llm unavailable")}
	svc := sectiongen.NewService(llm, sectiongen.Constraints{}, retry.Policy{MaxRetries: 0})
	st := newFakeStore()
	inputs := []domain.GenerationInput{{SectionID: 1}}

	outputs, err := svc.GenerateBatch(context.Background(), st, "ob-1", "ib-1", inputs)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Equal(t, domain.OutputFailed, outputs[0].Status)
}

func TestGenerateBatchRejectsContentBelowMinLength(t *testing.T) {
	llm := fakeLLM{content: "Too short."}
	svc := sectiongen.NewService(llm, sectiongen.Constraints{MinLength: 100, MaxLength: 4000}, retry.Policy{MaxRetries: 0})
	st := newFakeStore()
	inputs := []domain.GenerationInput{{SectionID: 1}}

	outputs, err := svc.GenerateBatch(context.Background(), st, "ob-1", "ib-1", inputs)
	require.NoError(t, err)
	require.Equal(t, domain.OutputFailed, outputs[0].Status)
}
