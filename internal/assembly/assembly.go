package assembly

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/hashing"
)

// assembledDocumentStore is the narrow slice of internal/store.Store this
// package depends on.
type assembledDocumentStore interface {
	CreateAssembledDocument(ctx context.Context, a domain.AssembledDocument) error
	CompleteAssembly(ctx context.Context, id, assemblyHash string, blockCount, dynamicBlockCount int, injectionResults []domain.InjectionResult) error
	FailAssembly(ctx context.Context, id, errorCode, errorMessage string) error
}

// Request is everything Assemble needs to run one assembly pass.
type Request struct {
	DocumentID         string
	TemplateVersionID  string
	VersionIntent      int
	SectionOutputBatchID string
	Parsed             block.ParsedDocument
	Sections           []domain.Section         // classification for every block, by structural path
	Outputs            []domain.SectionOutput   // VALIDATED outputs for this batch
	ForceReassembly    bool
	ExistingAssembly   *domain.AssembledDocument // non-nil if one already exists for this batch
}

// Assemble runs the full Document Assembly algorithm (spec §4.6):
// precondition checks, per-block injection, structural-integrity
// validation, and persistence of the resulting AssembledDocument.
// Precondition failures return an *Error before any row is created;
// injection and structural-validation failures transition the created row
// to FAILED with the first error encountered and return that *Error. Store
// failures are returned as wrapped plain errors. The caller never sees a
// partially-assembled success.
func Assemble(ctx context.Context, st assembledDocumentStore, req Request) (domain.AssembledDocument, error) {
	if req.ExistingAssembly != nil && req.ExistingAssembly.IsImmutable && !req.ForceReassembly {
		return domain.AssembledDocument{}, fail(CodeAssemblyAlreadyExists,
			"assembled document already exists for batch %s", req.SectionOutputBatchID)
	}

	outputsBySection := make(map[int]domain.SectionOutput, len(req.Outputs))
	for _, o := range req.Outputs {
		if !o.IsValidated || o.GeneratedContent == "" {
			return domain.AssembledDocument{}, fail(CodeInvalidSectionOutput,
				"output %s for section %d is not validated or has no content", o.ID, o.SectionID)
		}
		outputsBySection[o.SectionID] = o
	}

	sectionsByPath := make(map[string]domain.Section, len(req.Sections))
	for _, s := range req.Sections {
		sectionsByPath[s.StructuralPath] = s
	}
	for _, s := range req.Sections {
		if s.SectionType != domain.SectionDynamic {
			continue
		}
		if _, ok := outputsBySection[s.ID]; !ok {
			return domain.AssembledDocument{}, fail(CodeMissingValidatedContent,
				"dynamic section %d (%s) has no validated output", s.ID, s.StructuralPath)
		}
	}

	now := time.Now()
	row := domain.AssembledDocument{
		ID:                   uuid.NewString(),
		DocumentID:           req.DocumentID,
		TemplateVersionID:    req.TemplateVersionID,
		VersionIntent:        req.VersionIntent,
		SectionOutputBatchID: req.SectionOutputBatchID,
		Status:               domain.AssemblyInProgress,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := st.CreateAssembledDocument(ctx, row); err != nil {
		return domain.AssembledDocument{}, fmt.Errorf("create assembled document: %w", err)
	}

	results, dynamicCount, asmErr := inject(req.Parsed.Blocks, sectionsByPath, outputsBySection)
	if asmErr != nil {
		_ = st.FailAssembly(ctx, row.ID, string(asmErr.Code), asmErr.Message)
		row.Status = domain.AssemblyFailed
		row.ErrorCode = string(asmErr.Code)
		row.ErrorMessage = asmErr.Message
		return row, asmErr
	}

	if asmErr := validateStructure(req.Parsed.Blocks, results); asmErr != nil {
		_ = st.FailAssembly(ctx, row.ID, string(asmErr.Code), asmErr.Message)
		row.Status = domain.AssemblyFailed
		row.ErrorCode = string(asmErr.Code)
		row.ErrorMessage = asmErr.Message
		return row, asmErr
	}

	entries := make([]hashing.AssemblyHashEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, hashing.AssemblyHashEntry{BlockID: r.BlockID, AssembledContentHash: r.AssembledHash})
	}
	assemblyHash := hashing.AssemblyHash(req.DocumentID, req.TemplateVersionID, req.VersionIntent, req.SectionOutputBatchID, entries)

	if err := st.CompleteAssembly(ctx, row.ID, assemblyHash, len(req.Parsed.Blocks), dynamicCount, results); err != nil {
		return domain.AssembledDocument{}, fmt.Errorf("complete assembly: %w", err)
	}

	row.Status = domain.AssemblyValidated
	row.AssemblyHash = assemblyHash
	row.BlockCount = len(req.Parsed.Blocks)
	row.DynamicBlockCount = dynamicCount
	row.InjectionResults = results
	row.IsImmutable = true
	return row, nil
}

// inject walks the parsed document's blocks in original order, replacing
// DYNAMIC blocks that have validated content with a single-run
// substitution and preserving everything else verbatim.
func inject(blocks []block.Block, sectionsByPath map[string]domain.Section, outputsBySection map[int]domain.SectionOutput) ([]domain.InjectionResult, int, *Error) {
	results := make([]domain.InjectionResult, 0, len(blocks))
	dynamicCount := 0

	for _, b := range blocks {
		originalHash := hashing.Text(b.ContentHash())
		sec, hasSection := sectionsByPath[b.StructuralPath()]

		if !hasSection || sec.SectionType != domain.SectionDynamic {
			results = append(results, domain.InjectionResult{
				BlockID: b.BlockID, WasInjected: false, WasModified: false, IsDynamic: false,
				OriginalHash: originalHash, AssembledHash: originalHash,
			})
			continue
		}

		output, ok := outputsBySection[sec.ID]
		if !ok || output.GeneratedContent == "" {
			return nil, 0, fail(CodeMissingValidatedContent, "no validated content for block %s", b.BlockID)
		}
		dynamicCount++

		switch b.Type {
		case block.TypeParagraph, block.TypeHeading:
			assembledHash := hashing.Text(output.GeneratedContent)
			results = append(results, domain.InjectionResult{
				BlockID: b.BlockID, WasInjected: true, WasModified: true, IsDynamic: true,
				OriginalHash: originalHash, AssembledHash: assembledHash,
			})
		default:
			results = append(results, domain.InjectionResult{
				BlockID: b.BlockID, WasInjected: false, WasModified: false, IsDynamic: true,
				Reason:       "Unsupported block type for injection",
				OriginalHash: originalHash, AssembledHash: originalHash,
			})
		}
	}
	return results, dynamicCount, nil
}

// validateStructure enforces spec §4.6's structural-integrity checks:
// block preservation (count, id set, order, duplicate ids) and static
// immutability (unmodified hash for every STATIC block). Block types are
// not compared.
func validateStructure(original []block.Block, results []domain.InjectionResult) *Error {
	if len(original) != len(results) {
		return fail(CodeBlockCountMismatch, "original has %d blocks, assembled has %d", len(original), len(results))
	}

	seen := make(map[string]bool, len(original))
	for i, b := range original {
		r := results[i]
		if r.BlockID != b.BlockID {
			return fail(CodeBlockOrderMismatch, "block order mismatch at index %d: expected %s, got %s", i, b.BlockID, r.BlockID)
		}
		if seen[b.BlockID] {
			return fail(CodeDuplicateBlockID, "duplicate block id %s", b.BlockID)
		}
		seen[b.BlockID] = true

		if !r.IsDynamic && r.OriginalHash != r.AssembledHash {
			return fail(CodeStaticSectionModified, "static block %s was modified", b.BlockID)
		}
	}

	resultIDs := make(map[string]bool, len(results))
	for _, r := range results {
		resultIDs[r.BlockID] = true
	}
	for _, b := range original {
		if !resultIDs[b.BlockID] {
			return fail(CodeOrphanedBlock, "block %s missing from assembled output", b.BlockID)
		}
	}

	return nil
}
