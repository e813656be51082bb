package inputprep_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/inputprep"
)

type fakeStore struct {
	sections      []domain.Section
	batches       []domain.GenerationInputBatch
	inputs        []domain.GenerationInput
	failedBatches map[string]bool
}

func newFakeStore(sections []domain.Section) *fakeStore {
	return &fakeStore{sections: sections, failedBatches: map[string]bool{}}
}

func (f *fakeStore) ListSectionsByTemplateVersion(_ context.Context, _ string) ([]domain.Section, error) {
	return f.sections, nil
}
func (f *fakeStore) CreateInputBatch(_ context.Context, b domain.GenerationInputBatch) error {
	f.batches = append(f.batches, b)
	return nil
}
func (f *fakeStore) CreateInput(_ context.Context, in domain.GenerationInput) error {
	f.inputs = append(f.inputs, in)
	return nil
}
func (f *fakeStore) ValidateInputBatch(_ context.Context, id, contentHash string, totalInputs int) error {
	for i := range f.batches {
		if f.batches[i].ID == id {
			f.batches[i].Status = domain.BatchValidated
			f.batches[i].ContentHash = contentHash
			f.batches[i].TotalInputs = totalInputs
			f.batches[i].IsImmutable = true
		}
	}
	return nil
}
func (f *fakeStore) FailInputBatch(_ context.Context, id string) error {
	f.failedBatches[id] = true
	return nil
}

func dynamicSection(id int, path string) domain.Section {
	return domain.Section{
		ID: id, SectionType: domain.SectionDynamic, StructuralPath: path,
		PromptConfig: map[string]any{
			"classification_confidence": 0.9,
			"classification_method":     "RULE_BASED",
			"justification":             "test",
		},
	}
}

func TestPrepareHappyPath(t *testing.T) {
	sections := []domain.Section{
		dynamicSection(2, "body/block/2"),
		dynamicSection(1, "body/block/1"),
		{ID: 3, SectionType: domain.SectionStatic, StructuralPath: "body/block/3"},
	}
	st := newFakeStore(sections)
	client := inputprep.ClientData{ClientID: "c1", ClientName: "Acme"}

	batch, inputs, err := inputprep.Prepare(context.Background(), st, "doc-1", "tv-1", 1, client)
	require.NoError(t, err)
	require.Equal(t, domain.BatchValidated, batch.Status)
	require.True(t, batch.IsImmutable)
	require.Len(t, inputs, 2)
	require.Equal(t, 1, inputs[0].SectionID)
	require.Equal(t, 0, inputs[0].SequenceOrder)
	require.Equal(t, 2, inputs[1].SectionID)
	require.Equal(t, 1, inputs[1].SequenceOrder)
	require.NotEmpty(t, batch.ContentHash)
}

func TestPrepareNoDynamicSectionsFails(t *testing.T) {
	st := newFakeStore([]domain.Section{{ID: 1, SectionType: domain.SectionStatic, StructuralPath: "body/block/1"}})
	_, _, err := inputprep.Prepare(context.Background(), st, "doc-1", "tv-1", 1, inputprep.ClientData{})
	require.Error(t, err)
	var target *inputprep.NoDynamicSectionsError
	require.ErrorAs(t, err, &target)
	require.Empty(t, st.batches)
}

func TestPrepareMissingPromptConfigFails(t *testing.T) {
	st := newFakeStore([]domain.Section{{ID: 1, SectionType: domain.SectionDynamic, StructuralPath: "body/block/1"}})
	_, _, err := inputprep.Prepare(context.Background(), st, "doc-1", "tv-1", 1, inputprep.ClientData{})
	require.Error(t, err)
	var target *inputprep.MissingPromptConfigError
	require.ErrorAs(t, err, &target)
	require.Empty(t, st.batches)
}

func TestPrepareDeterministicHash(t *testing.T) {
	sections := []domain.Section{dynamicSection(1, "body/block/1")}
	st1 := newFakeStore(sections)
	st2 := newFakeStore(sections)
	client := inputprep.ClientData{ClientID: "c1", ClientName: "Acme"}

	b1, _, err := inputprep.Prepare(context.Background(), st1, "doc-1", "tv-1", 1, client)
	require.NoError(t, err)
	b2, _, err := inputprep.Prepare(context.Background(), st2, "doc-1", "tv-1", 1, client)
	require.NoError(t, err)
	require.Equal(t, b1.ContentHash, b2.ContentHash)
}
