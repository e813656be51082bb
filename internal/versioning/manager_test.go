package versioning_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/storage"
	storestd "github.com/inful/docgen/internal/store"
	"github.com/inful/docgen/internal/versioning"
)

type fakeDocumentStore struct {
	documents map[string]domain.Document
	versions  map[string][]domain.DocumentVersion
	current   map[string]int
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{
		documents: map[string]domain.Document{},
		versions:  map[string][]domain.DocumentVersion{},
		current:   map[string]int{},
	}
}

func (f *fakeDocumentStore) GetDocument(_ context.Context, id string) (domain.Document, error) {
	d, ok := f.documents[id]
	if !ok {
		return domain.Document{}, storestd.ErrNotFound
	}
	return d, nil
}

func (f *fakeDocumentStore) FindDocumentVersionByContentHash(_ context.Context, documentID, contentHash string) (domain.DocumentVersion, bool, error) {
	for _, v := range f.versions[documentID] {
		if v.GenerationMetadata.ContentHash == contentHash {
			return v, true, nil
		}
	}
	return domain.DocumentVersion{}, false, nil
}

func (f *fakeDocumentStore) NextVersionNumber(_ context.Context, documentID string) (int, error) {
	return len(f.versions[documentID]) + 1, nil
}

func (f *fakeDocumentStore) CreateDocumentVersion(_ context.Context, v domain.DocumentVersion) error {
	f.versions[v.DocumentID] = append(f.versions[v.DocumentID], v)
	return nil
}

func (f *fakeDocumentStore) AdvanceCurrentVersion(_ context.Context, documentID string, versionNumber int) error {
	f.current[documentID] = versionNumber
	return nil
}

// fakeObjectStore implements storage.Store in memory.
type fakeObjectStore struct {
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore { return &fakeObjectStore{objects: map[string][]byte{}} }

func (f *fakeObjectStore) Put(_ context.Context, key string, data []byte, _ string) error {
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) (*storage.Object, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{Key: key, Data: data}, nil
}

func (f *fakeObjectStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeObjectStore) Close() error { return nil }

func TestCreateVersionHappyPath(t *testing.T) {
	ds := newFakeDocumentStore()
	ds.documents["d1"] = domain.Document{ID: "d1"}
	objs := newFakeObjectStore()
	mgr := versioning.NewManager(ds, objs)

	result, err := mgr.CreateVersion(context.Background(), "d1", []byte("rendered bytes v1"))
	require.NoError(t, err)
	require.Equal(t, versioning.ResultCreated, result.Code)
	require.Equal(t, 1, result.Version.VersionNumber)
	require.Equal(t, 1, ds.current["d1"])
}

func TestCreateVersionDeduplicatesIdenticalContent(t *testing.T) {
	ds := newFakeDocumentStore()
	ds.documents["d1"] = domain.Document{ID: "d1"}
	objs := newFakeObjectStore()
	mgr := versioning.NewManager(ds, objs)

	first, err := mgr.CreateVersion(context.Background(), "d1", []byte("same content"))
	require.NoError(t, err)
	require.Equal(t, versioning.ResultCreated, first.Code)

	second, err := mgr.CreateVersion(context.Background(), "d1", []byte("same content"))
	require.NoError(t, err)
	require.Equal(t, versioning.ResultDuplicateContent, second.Code)
	require.Equal(t, first.Version.VersionNumber, second.Version.VersionNumber)
	require.Len(t, ds.versions["d1"], 1)
}

func TestCreateVersionNumbersAreMonotonic(t *testing.T) {
	ds := newFakeDocumentStore()
	ds.documents["d1"] = domain.Document{ID: "d1"}
	objs := newFakeObjectStore()
	mgr := versioning.NewManager(ds, objs)

	r1, err := mgr.CreateVersion(context.Background(), "d1", []byte("content one"))
	require.NoError(t, err)
	r2, err := mgr.CreateVersion(context.Background(), "d1", []byte("content two"))
	require.NoError(t, err)
	require.Equal(t, 1, r1.Version.VersionNumber)
	require.Equal(t, 2, r2.Version.VersionNumber)
}

func TestCreateVersionFailsForUnknownDocument(t *testing.T) {
	ds := newFakeDocumentStore()
	objs := newFakeObjectStore()
	mgr := versioning.NewManager(ds, objs)

	_, err := mgr.CreateVersion(context.Background(), "missing", []byte("content"))
	require.Error(t, err)
	var target *versioning.Error
	require.ErrorAs(t, err, &target)
	require.Equal(t, versioning.ErrDocumentNotFound, target.Code)
}

func TestVerifyDetectsContentHashMismatch(t *testing.T) {
	ds := newFakeDocumentStore()
	ds.documents["d1"] = domain.Document{ID: "d1"}
	objs := newFakeObjectStore()
	mgr := versioning.NewManager(ds, objs)

	result, err := mgr.CreateVersion(context.Background(), "d1", []byte("original content"))
	require.NoError(t, err)

	objs.objects[result.Version.OutputPath] = []byte("tampered content")

	err = mgr.Verify(context.Background(), result.Version)
	require.Error(t, err)
	var target *versioning.Error
	require.ErrorAs(t, err, &target)
	require.Equal(t, versioning.ErrContentHashMismatch, target.Code)
}
