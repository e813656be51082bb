// Package storage provides the keyed object store the generation platform
// writes template sources, parsed documents and rendered outputs to.
// Unlike the teacher's content-addressable store (objects named by their
// own hash, for build-artifact dedup) this domain needs path-keyed
// access — callers choose the key (templates/{id}/{version}/source.docx),
// and content hashing is a property the caller records separately, not
// the storage key itself.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("storage: not found")

// Object is a stored artifact and its metadata.
type Object struct {
	Key         string
	Data        []byte
	ContentType string
	Metadata    Metadata
}

// Metadata carries object bookkeeping.
type Metadata struct {
	CreatedAt    time.Time
	LastAccessed time.Time
	Size         int64
}

// Store is the path-keyed object store contract: put/get/exists/delete
// against deterministic keys such as templates/{id}/{version}/source.docx
// or documents/{id}/{version}/output.docx.
type Store interface {
	// Put writes data under key with the given content type, overwriting
	// any existing object at that key.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get retrieves the object stored at key. Returns ErrNotFound if
	// nothing is stored there.
	Get(ctx context.Context, key string) (*Object, error)

	// Exists reports whether key has a stored object.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object at key. Returns ErrNotFound if nothing
	// is stored there.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// TemplateSourceKey is the canonical key for a template version's
// uploaded source document.
func TemplateSourceKey(templateID string, version int) string {
	return fmt.Sprintf("templates/%s/%d/source.docx", templateID, version)
}

// TemplateParsedKey is the canonical key for a template version's parsed
// document artifact.
func TemplateParsedKey(templateID string, version int) string {
	return fmt.Sprintf("templates/%s/%d/parsed.json", templateID, version)
}

// DocumentOutputKey is the canonical key for a document version's
// rendered output.
func DocumentOutputKey(documentID string, version int) string {
	return fmt.Sprintf("documents/%s/%d/output.docx", documentID, version)
}
