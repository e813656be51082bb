package versioning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/hashing"
	"github.com/inful/docgen/internal/logfields"
	"github.com/inful/docgen/internal/storage"
)

// documentStore is the narrow slice of internal/store.Store this package
// depends on.
type documentStore interface {
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	FindDocumentVersionByContentHash(ctx context.Context, documentID, contentHash string) (domain.DocumentVersion, bool, error)
	NextVersionNumber(ctx context.Context, documentID string) (int, error)
	CreateDocumentVersion(ctx context.Context, v domain.DocumentVersion) error
	AdvanceCurrentVersion(ctx context.Context, documentID string, versionNumber int) error
}

// Manager implements the versioning algorithm against a document store
// and an object store, coordinating the two as a single logical
// operation: upload, verify, persist, advance pointer — with
// best-effort rollback of the uploaded blob on any later failure.
type Manager struct {
	store   documentStore
	objects storage.Store
}

// NewManager builds a Manager over store s and object store objects.
func NewManager(s documentStore, objects storage.Store) *Manager {
	return &Manager{store: s, objects: objects}
}

// Result is what CreateVersion returns: either a freshly minted version
// or a reference to the pre-existing, content-identical one.
type Result struct {
	Code    ResultCode
	Version domain.DocumentVersion
}

// CreateVersion binds rendered bytes to documentID as a new
// DocumentVersion, deduplicating by content hash and upholding dense,
// monotonic version numbers per document.
func (m *Manager) CreateVersion(ctx context.Context, documentID string, rendered []byte) (Result, error) {
	if _, err := m.store.GetDocument(ctx, documentID); err != nil {
		return Result{}, fail(ErrDocumentNotFound, "document %s: %v", documentID, err)
	}

	contentHash := hashing.Bytes(rendered)

	if existing, ok, err := m.store.FindDocumentVersionByContentHash(ctx, documentID, contentHash); err != nil {
		return Result{}, fmt.Errorf("check content dedup: %w", err)
	} else if ok {
		slog.Info("duplicate content, reusing existing version",
			logfields.DocumentID(documentID), "version_number", existing.VersionNumber)
		return Result{Code: ResultDuplicateContent, Version: existing}, nil
	}

	versionNumber, err := m.store.NextVersionNumber(ctx, documentID)
	if err != nil {
		return Result{}, fmt.Errorf("compute next version number: %w", err)
	}

	key := storage.DocumentOutputKey(documentID, versionNumber)
	if err := m.objects.Put(ctx, key, rendered, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"); err != nil {
		return Result{}, fail(ErrStorageFailed, "upload to %s: %v", key, err)
	}

	if exists, err := m.objects.Exists(ctx, key); err != nil || !exists {
		_ = m.objects.Delete(ctx, key)
		return Result{}, fail(ErrStorageFailed, "blob missing after upload at %s", key)
	}

	version := domain.DocumentVersion{
		ID:            uuid.NewString(),
		DocumentID:    documentID,
		VersionNumber: versionNumber,
		OutputPath:    key,
		GenerationMetadata: domain.GenerationMetadata{
			ContentHash:   contentHash,
			FileSizeBytes: int64(len(rendered)),
		},
		CreatedAt: time.Now(),
	}

	if err := m.store.CreateDocumentVersion(ctx, version); err != nil {
		_ = m.objects.Delete(ctx, key)
		if isUniqueConstraintErr(err) {
			return Result{}, fail(ErrDuplicateVersion, "version %d for document %s: %v", versionNumber, documentID, err)
		}
		return Result{}, fail(ErrPersistenceFailed, "persist version: %v", err)
	}

	if err := m.store.AdvanceCurrentVersion(ctx, documentID, versionNumber); err != nil {
		return Result{}, fail(ErrPersistenceFailed, "advance current version: %v", err)
	}

	return Result{Code: ResultCreated, Version: version}, nil
}

// Verify re-fetches the blob for v from the object store and compares its
// hash against the recorded content hash, detecting silent corruption or
// out-of-band tampering.
func (m *Manager) Verify(ctx context.Context, v domain.DocumentVersion) error {
	obj, err := m.objects.Get(ctx, v.OutputPath)
	if err != nil {
		return fail(ErrStorageFailed, "fetch %s: %v", v.OutputPath, err)
	}
	actual := hashing.Bytes(obj.Data)
	if actual != v.GenerationMetadata.ContentHash {
		return fail(ErrContentHashMismatch, "stored hash %s != recorded hash %s", actual, v.GenerationMetadata.ContentHash)
	}
	return nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
