package assembly_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inful/docgen/internal/assembly"
	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/domain"
)

type fakeStore struct {
	created   []domain.AssembledDocument
	completed bool
	failedCode string
}

func (f *fakeStore) CreateAssembledDocument(_ context.Context, a domain.AssembledDocument) error {
	f.created = append(f.created, a)
	return nil
}
func (f *fakeStore) CompleteAssembly(_ context.Context, id, assemblyHash string, blockCount, dynamicBlockCount int, injectionResults []domain.InjectionResult) error {
	f.completed = true
	return nil
}
func (f *fakeStore) FailAssembly(_ context.Context, id, errorCode, errorMessage string) error {
	f.failedCode = errorCode
	return nil
}

func threeBlockDoc() block.ParsedDocument {
	return block.ParsedDocument{
		Blocks: []block.Block{
			{BlockID: "b0", Sequence: 0, Type: block.TypeParagraph, Runs: []block.Run{{Text: "Static intro."}}},
			{BlockID: "b1", Sequence: 1, Type: block.TypeParagraph, Runs: []block.Run{{Text: "placeholder"}}},
			{BlockID: "b2", Sequence: 2, Type: block.TypeParagraph, Runs: []block.Run{{Text: "Static outro."}}},
		},
	}
}

func TestAssembleHappyPath(t *testing.T) {
	doc := threeBlockDoc()
	sections := []domain.Section{
		{ID: 1, StructuralPath: "body/block/0", SectionType: domain.SectionStatic},
		{ID: 2, StructuralPath: "body/block/1", SectionType: domain.SectionDynamic},
		{ID: 3, StructuralPath: "body/block/2", SectionType: domain.SectionStatic},
	}
	outputs := []domain.SectionOutput{
		{SectionID: 2, IsValidated: true, GeneratedContent: "Acme Corp specific generated text."},
	}
	st := &fakeStore{}
	req := assembly.Request{
		DocumentID: "d1", TemplateVersionID: "tv1", VersionIntent: 1, SectionOutputBatchID: "ob1",
		Parsed: doc, Sections: sections, Outputs: outputs,
	}
	result, err := assembly.Assemble(context.Background(), st, req)
	require.NoError(t, err)
	require.Equal(t, domain.AssemblyValidated, result.Status)
	require.True(t, result.IsImmutable)
	require.Equal(t, 3, result.BlockCount)
	require.Equal(t, 1, result.DynamicBlockCount)
	require.NotEmpty(t, result.AssemblyHash)
	require.True(t, st.completed)
}

func TestAssembleMissingValidatedContentFails(t *testing.T) {
	doc := threeBlockDoc()
	sections := []domain.Section{
		{ID: 1, StructuralPath: "body/block/0", SectionType: domain.SectionStatic},
		{ID: 2, StructuralPath: "body/block/1", SectionType: domain.SectionDynamic},
		{ID: 3, StructuralPath: "body/block/2", SectionType: domain.SectionStatic},
	}
	st := &fakeStore{}
	req := assembly.Request{
		DocumentID: "d1", TemplateVersionID: "tv1", VersionIntent: 1, SectionOutputBatchID: "ob1",
		Parsed: doc, Sections: sections, Outputs: nil,
	}
	_, err := assembly.Assemble(context.Background(), st, req)
	require.Error(t, err)
	var target *assembly.Error
	require.ErrorAs(t, err, &target)
	require.Equal(t, assembly.CodeMissingValidatedContent, target.Code)
}

func TestAssembleAlreadyExistsBlocksReassembly(t *testing.T) {
	doc := threeBlockDoc()
	st := &fakeStore{}
	req := assembly.Request{
		DocumentID: "d1", TemplateVersionID: "tv1", VersionIntent: 1, SectionOutputBatchID: "ob1",
		Parsed: doc, ExistingAssembly: &domain.AssembledDocument{IsImmutable: true},
	}
	_, err := assembly.Assemble(context.Background(), st, req)
	require.Error(t, err)
	var target *assembly.Error
	require.ErrorAs(t, err, &target)
	require.Equal(t, assembly.CodeAssemblyAlreadyExists, target.Code)
}

func TestAssembleDeterministicHash(t *testing.T) {
	doc := threeBlockDoc()
	sections := []domain.Section{
		{ID: 1, StructuralPath: "body/block/0", SectionType: domain.SectionStatic},
		{ID: 2, StructuralPath: "body/block/1", SectionType: domain.SectionDynamic},
		{ID: 3, StructuralPath: "body/block/2", SectionType: domain.SectionStatic},
	}
	outputs := []domain.SectionOutput{
		{SectionID: 2, IsValidated: true, GeneratedContent: "Acme Corp specific generated text."},
	}
	req := assembly.Request{
		DocumentID: "d1", TemplateVersionID: "tv1", VersionIntent: 1, SectionOutputBatchID: "ob1",
		Parsed: doc, Sections: sections, Outputs: outputs,
	}
	r1, err := assembly.Assemble(context.Background(), &fakeStore{}, req)
	require.NoError(t, err)
	r2, err := assembly.Assemble(context.Background(), &fakeStore{}, req)
	require.NoError(t, err)
	require.Equal(t, r1.AssemblyHash, r2.AssemblyHash)
}
