package rendering_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/rendering"
)

type fakeRenderer struct {
	result rendering.Result
	err    error
}

func (f fakeRenderer) Render(_ context.Context, _ domain.AssembledDocument) (rendering.Result, error) {
	return f.result, f.err
}

type fakeStore struct {
	created []domain.RenderedDocument
}

func (f *fakeStore) CreateRenderedDocument(_ context.Context, r domain.RenderedDocument) error {
	f.created = append(f.created, r)
	return nil
}

func TestRenderPersistsOnSuccess(t *testing.T) {
	r := fakeRenderer{result: rendering.Result{Success: true, OutputPath: "documents/d1/1/output.docx", ContentHash: "abc", FileSize: 42, BlockCount: 3}}
	st := &fakeStore{}
	doc := domain.AssembledDocument{ID: "a1"}

	out, err := rendering.Render(context.Background(), r, st, doc)
	require.NoError(t, err)
	require.Equal(t, "a1", out.AssembledDocumentID)
	require.Equal(t, "documents/d1/1/output.docx", out.OutputPath)
	require.Len(t, st.created, 1)
}

func TestRenderFailurePersistsNothing(t *testing.T) {
	r := fakeRenderer{result: rendering.Result{Success: false, Error: "parser crashed"}}
	st := &fakeStore{}
	doc := domain.AssembledDocument{ID: "a1"}

	_, err := rendering.Render(context.Background(), r, st, doc)
	require.Error(t, err)
	require.Empty(t, st.created)
}
