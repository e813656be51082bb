// Package domain holds the entities and enums shared across the generation
// pipeline: templates, sections, generation batches, assembled/rendered
// documents, versions, jobs and audit rows. The types here are plain data —
// behavior lives in the packages that own each entity's lifecycle
// (internal/store for persistence, internal/pipeline for orchestration).
package domain

import "time"

// ParsingStatus tracks a TemplateVersion's progress through the PARSE job.
type ParsingStatus string

const (
	ParsingPending    ParsingStatus = "PENDING"
	ParsingInProgress ParsingStatus = "IN_PROGRESS"
	ParsingCompleted  ParsingStatus = "COMPLETED"
	ParsingFailed     ParsingStatus = "FAILED"
)

// SectionType classifies a block as fixed boilerplate or per-client content.
type SectionType string

const (
	SectionStatic  SectionType = "STATIC"
	SectionDynamic SectionType = "DYNAMIC"
)

// BatchStatus tracks a GenerationInputBatch's lifecycle.
type BatchStatus string

const (
	BatchPending   BatchStatus = "PENDING"
	BatchValidated BatchStatus = "VALIDATED"
	BatchFailed    BatchStatus = "FAILED"
)

// OutputStatus tracks a SectionOutput's lifecycle.
type OutputStatus string

const (
	OutputPending   OutputStatus = "PENDING"
	OutputGenerated OutputStatus = "GENERATED"
	OutputValidated OutputStatus = "VALIDATED"
	OutputFailed    OutputStatus = "FAILED"
)

// AssemblyStatus tracks an AssembledDocument's lifecycle.
type AssemblyStatus string

const (
	AssemblyPending    AssemblyStatus = "PENDING"
	AssemblyInProgress AssemblyStatus = "IN_PROGRESS"
	AssemblyCompleted  AssemblyStatus = "COMPLETED"
	AssemblyValidated  AssemblyStatus = "VALIDATED"
	AssemblyFailed     AssemblyStatus = "FAILED"
)

// JobType enumerates the job kinds the scheduler dispatches.
type JobType string

const (
	JobParse                JobType = "PARSE"
	JobClassify             JobType = "CLASSIFY"
	JobGenerate             JobType = "GENERATE"
	JobRegenerate           JobType = "REGENERATE"
	JobRegenerateSections   JobType = "REGENERATE_SECTIONS"
)

// JobStatus is the job queue state machine's current state.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Template is the top-level owner of a family of TemplateVersions.
type Template struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TemplateVersion is one parsed revision of a Template's source document.
type TemplateVersion struct {
	ID            string
	TemplateID    string
	VersionNumber int
	SourcePath    string
	ParsedPath    string // empty until parsing completes
	ParsingStatus ParsingStatus
	ContentHash   string
	ParsingError  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Section is the classification decision for one block of a template
// version. Exactly one Section exists per classified block, and it is
// immutable once created.
type Section struct {
	ID                int
	TemplateVersionID string
	SectionType       SectionType
	StructuralPath    string
	PromptConfig      map[string]any // required iff SectionType == SectionDynamic
	CreatedAt         time.Time
}

// Document is a generation target bound to a specific TemplateVersion family
// via its DocumentVersions; CurrentVersion only ever advances.
type Document struct {
	ID                string
	TemplateVersionID string
	CurrentVersion    int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// GenerationInputBatch is the immutable, content-addressed set of per-section
// generation inputs assembled for one generation run.
type GenerationInputBatch struct {
	ID                string
	DocumentID        string
	TemplateVersionID string
	VersionIntent     int
	Status            BatchStatus
	ContentHash       string
	TotalInputs       int
	IsImmutable       bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// GenerationInput is one section's generation-ready snapshot within a batch.
type GenerationInput struct {
	ID             string
	BatchID        string
	SectionID      int
	SequenceOrder  int
	HierarchyCtx   HierarchyContext
	PromptConfig   map[string]any
	ClientData     map[string]any
	Surrounding    SurroundingContext
	InputHash      string
}

// HierarchyContext places a section within its template's structural tree.
type HierarchyContext struct {
	ParentHeading  string   `json:"parent_heading"`
	ParentLevel    int      `json:"parent_level"`
	SiblingIndex   int      `json:"sibling_index"`
	TotalSiblings  int      `json:"total_siblings"`
	Depth          int      `json:"depth"`
	PathSegments   []string `json:"path_segments"`
}

// SurroundingContext describes the sections immediately before/after a block.
type SurroundingContext struct {
	PrecedingPath string `json:"preceding_path,omitempty"`
	PrecedingType string `json:"preceding_type,omitempty"`
	FollowingPath string `json:"following_path,omitempty"`
	FollowingType string `json:"following_type,omitempty"`
	Hint          string `json:"hint,omitempty"`
}

// SectionOutput is the validated, immutable per-section content produced by
// the generator.
type SectionOutput struct {
	ID              string
	OutputBatchID   string
	InputBatchID    string
	SectionID       int
	Status          OutputStatus
	GeneratedContent string
	ContentHash     string
	IsValidated     bool
	IsImmutable     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InjectionResult records whether a block received dynamic content during
// assembly, and why not when it didn't.
type InjectionResult struct {
	BlockID      string
	WasInjected  bool
	WasModified  bool
	IsDynamic    bool
	Reason       string
	OriginalHash string
	AssembledHash string
}

// AssembledDocument is the reconstructed block tree combining static
// originals with injected dynamic content.
type AssembledDocument struct {
	ID                  string
	DocumentID          string
	TemplateVersionID   string
	VersionIntent       int
	SectionOutputBatchID string
	Status              AssemblyStatus
	AssemblyHash        string
	BlockCount          int
	DynamicBlockCount   int
	InjectionResults    []InjectionResult
	IsImmutable         bool
	ErrorCode           string
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RenderedDocument binds an AssembledDocument row to an object-storage blob.
type RenderedDocument struct {
	ID                  string
	AssembledDocumentID string
	OutputPath          string
	ContentHash         string
	Size                int64
	BlockCount          int
	CreatedAt           time.Time
}

// DocumentVersion is a durable, numbered, content-addressed artifact bound
// to a Document.
type DocumentVersion struct {
	ID                 string
	DocumentID         string
	VersionNumber      int
	OutputPath         string
	GenerationMetadata GenerationMetadata
	CreatedAt          time.Time
}

// GenerationMetadata is the structured payload stored with a DocumentVersion.
type GenerationMetadata struct {
	ContentHash   string `json:"content_hash"`
	FileSizeBytes int64  `json:"file_size_bytes"`
}

// Job is one unit of queued, durable work.
type Job struct {
	ID          string
	Type        JobType
	Status      JobStatus
	Payload     map[string]any
	WorkerID    string
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      map[string]any
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AuditLog is one append-only, immutable event in the audit journal.
type AuditLog struct {
	ID         int64
	EntityType string
	EntityID   string
	Action     string
	Metadata   map[string]any
	Timestamp  time.Time
}
