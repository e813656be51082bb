package classification_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/classification"
	"github.com/inful/docgen/internal/domain"
)

func paragraph(id string, seq int, text string) block.Block {
	return block.Block{BlockID: id, Sequence: seq, Type: block.TypeParagraph, Runs: []block.Run{{Text: text}}}
}

func TestRuleBasedStaticDisclaimer(t *testing.T) {
	svc := classification.NewService(0.85, nil)
	blocks := []block.Block{paragraph("b1", 0, "Confidential: all rights reserved.")}
	res := svc.Classify(context.Background(), blocks, 0)
	require.Equal(t, domain.SectionStatic, res.SectionType)
	require.Equal(t, classification.MethodRuleBased, res.Method)
}

func TestRuleBasedDynamicPlaceholder(t *testing.T) {
	svc := classification.NewService(0.85, nil)
	blocks := []block.Block{paragraph("b1", 0, "Client name: {client_name}")}
	res := svc.Classify(context.Background(), blocks, 0)
	require.Equal(t, domain.SectionDynamic, res.SectionType)
}

func TestStructuralHeaderIsStatic(t *testing.T) {
	svc := classification.NewService(0.85, nil)
	blocks := []block.Block{{BlockID: "h1", Sequence: 0, Type: block.TypeHeader, Runs: []block.Run{{Text: "Acme Corp"}}}}
	res := svc.Classify(context.Background(), blocks, 0)
	require.Equal(t, domain.SectionStatic, res.SectionType)
	require.GreaterOrEqual(t, res.Confidence, 0.85)
}

func TestLongNarrativeParagraphIsDynamic(t *testing.T) {
	svc := classification.NewService(0.70, nil)
	long := ""
	for i := 0; i < 60; i++ {
		long += "word "
	}
	blocks := []block.Block{paragraph("b1", 0, long)}
	res := svc.Classify(context.Background(), blocks, 0)
	require.Equal(t, domain.SectionDynamic, res.SectionType)
	require.Equal(t, classification.MethodRuleBased, res.Method)
}

func TestFallbackWhenNothingConfident(t *testing.T) {
	svc := classification.NewService(0.99, nil)
	blocks := []block.Block{paragraph("b1", 0, "Some moderately ambiguous sentence of average length here.")}
	res := svc.Classify(context.Background(), blocks, 0)
	require.Equal(t, domain.SectionStatic, res.SectionType)
	require.Equal(t, classification.MethodFallback, res.Method)
	require.Equal(t, 0.5, res.Confidence)
}

type fakeLLM struct {
	result Result
	ok     bool
}

type Result = classification.Result

func (f fakeLLM) Classify(_ context.Context, _ block.Block, _ classification.Context) (classification.Result, bool, error) {
	return f.result, f.ok, nil
}

func TestLLMAssistedUsedWhenRulesInconclusive(t *testing.T) {
	llm := fakeLLM{ok: true, result: classification.Result{
		SectionType: domain.SectionDynamic,
		Confidence:  0.9,
		Method:      classification.MethodLLM,
	}}
	svc := classification.NewService(0.85, llm)
	blocks := []block.Block{paragraph("b1", 0, "Some moderately ambiguous sentence of average length here.")}
	res := svc.Classify(context.Background(), blocks, 0)
	require.Equal(t, domain.SectionDynamic, res.SectionType)
	require.Equal(t, classification.MethodLLM, res.Method)
}

type fakeStore struct {
	created []domain.Section
	nextID  int
}

func (f *fakeStore) CreateSection(_ context.Context, sec domain.Section) (int, error) {
	f.nextID++
	sec.ID = f.nextID
	f.created = append(f.created, sec)
	return f.nextID, nil
}

func TestClassifyAndPersistOneSectionPerBlock(t *testing.T) {
	svc := classification.NewService(0.85, nil)
	blocks := []block.Block{
		paragraph("b1", 0, "Confidential: all rights reserved."),
		paragraph("b2", 1, "Client name: {client_name}"),
	}
	st := &fakeStore{}
	sections, err := classification.ClassifyAndPersist(context.Background(), svc, st, "tv-1", blocks)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	require.Equal(t, domain.SectionStatic, sections[0].SectionType)
	require.Nil(t, sections[0].PromptConfig)
	require.Equal(t, domain.SectionDynamic, sections[1].SectionType)
	require.NotNil(t, sections[1].PromptConfig)
	require.Equal(t, "body/block/1", sections[1].StructuralPath)
}
