package inputprep

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/hashing"
)

// ClientData is the frozen, per-request client context attached to every
// snapshot in a batch.
type ClientData struct {
	ClientID      string         `json:"client_id"`
	ClientName    string         `json:"client_name"`
	DataFields    map[string]any `json:"data_fields,omitempty"`
	CustomContext map[string]any `json:"custom_context,omitempty"`
}

func (c ClientData) toMap() map[string]any {
	return map[string]any{
		"client_id":      c.ClientID,
		"client_name":    c.ClientName,
		"data_fields":    c.DataFields,
		"custom_context": c.CustomContext,
	}
}

// snapshot is the exact shape hashed to produce a GenerationInput's
// input-hash. It must contain no timestamps, UUIDs, or environment-derived
// data so that hashes are reproducible byte-for-byte across runs.
type snapshot struct {
	SectionID   int                       `json:"section_id"`
	Hierarchy   domain.HierarchyContext   `json:"hierarchy_context"`
	PromptCfg   map[string]any            `json:"prompt_config"`
	ClientData  map[string]any            `json:"client_data"`
	Surrounding domain.SurroundingContext `json:"surrounding_context"`
}

// sectionStore is the narrow slice of internal/store.Store this package
// depends on, kept as an interface for testability without SQLite.
type sectionStore interface {
	ListSectionsByTemplateVersion(ctx context.Context, templateVersionID string) ([]domain.Section, error)
	CreateInputBatch(ctx context.Context, b domain.GenerationInputBatch) error
	CreateInput(ctx context.Context, in domain.GenerationInput) error
	ValidateInputBatch(ctx context.Context, id, contentHash string, totalInputs int) error
	FailInputBatch(ctx context.Context, id string) error
}

// Prepare runs the full input-preparation algorithm (spec §4.4): load
// DYNAMIC sections for templateVersionID, order them deterministically,
// assemble and validate a snapshot per section, persist a PENDING batch
// and its inputs, then transition it to VALIDATED and immutable.
//
// On any validation error the batch is never created — validation happens
// entirely in memory before the first write, so a failed run leaves no
// partial state.
func Prepare(ctx context.Context, st sectionStore, documentID, templateVersionID string, versionIntent int, client ClientData) (domain.GenerationInputBatch, []domain.GenerationInput, error) {
	sections, err := st.ListSectionsByTemplateVersion(ctx, templateVersionID)
	if err != nil {
		return domain.GenerationInputBatch{}, nil, fmt.Errorf("list sections: %w", err)
	}

	dynamic := make([]domain.Section, 0, len(sections))
	for _, s := range sections {
		if s.SectionType == domain.SectionDynamic {
			dynamic = append(dynamic, s)
		}
	}
	if len(dynamic) == 0 {
		return domain.GenerationInputBatch{}, nil, &NoDynamicSectionsError{TemplateVersionID: templateVersionID}
	}

	sort.Slice(dynamic, func(i, j int) bool {
		if dynamic[i].ID != dynamic[j].ID {
			return dynamic[i].ID < dynamic[j].ID
		}
		return dynamic[i].StructuralPath < dynamic[j].StructuralPath
	})

	inputs := make([]domain.GenerationInput, 0, len(dynamic))
	hashes := make([]string, 0, len(dynamic))
	clientMap := client.toMap()

	for i, sec := range dynamic {
		promptCfg, err := validatedPromptConfig(sec)
		if err != nil {
			return domain.GenerationInputBatch{}, nil, err
		}

		hier := hierarchyContext(sec, sections)
		surrounding := surroundingContext(i, dynamic)

		snap := snapshot{
			SectionID:   sec.ID,
			Hierarchy:   hier,
			PromptCfg:   promptCfg,
			ClientData:  clientMap,
			Surrounding: surrounding,
		}
		if strings.TrimSpace(sec.StructuralPath) == "" {
			return domain.GenerationInputBatch{}, nil, &InputValidationError{
				Field: "structural_path", Reason: "must not be empty", SectionID: sec.ID, InvalidValue: sec.StructuralPath,
			}
		}
		if err := validateSnapshot(snap); err != nil {
			return domain.GenerationInputBatch{}, nil, err
		}

		inputHash, err := hashing.InputHash(snap)
		if err != nil {
			return domain.GenerationInputBatch{}, nil, fmt.Errorf("compute input hash: %w", err)
		}

		in := domain.GenerationInput{
			ID:            uuid.NewString(),
			SectionID:     sec.ID,
			SequenceOrder: i,
			HierarchyCtx:  hier,
			PromptConfig:  promptCfg,
			ClientData:    clientMap,
			Surrounding:   surrounding,
			InputHash:     inputHash,
		}
		inputs = append(inputs, in)
		hashes = append(hashes, inputHash)
	}

	batchHash, err := hashing.BatchHash(hashes)
	if err != nil {
		return domain.GenerationInputBatch{}, nil, fmt.Errorf("compute batch hash: %w", err)
	}

	now := time.Now()
	batch := domain.GenerationInputBatch{
		ID:                uuid.NewString(),
		DocumentID:        documentID,
		TemplateVersionID: templateVersionID,
		VersionIntent:     versionIntent,
		Status:            domain.BatchPending,
		TotalInputs:       len(inputs),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := st.CreateInputBatch(ctx, batch); err != nil {
		return domain.GenerationInputBatch{}, nil, fmt.Errorf("create input batch: %w", err)
	}

	for i := range inputs {
		inputs[i].BatchID = batch.ID
		if err := st.CreateInput(ctx, inputs[i]); err != nil {
			_ = st.FailInputBatch(ctx, batch.ID)
			return domain.GenerationInputBatch{}, nil, fmt.Errorf("create input %d: %w", i, err)
		}
	}

	if err := st.ValidateInputBatch(ctx, batch.ID, batchHash, len(inputs)); err != nil {
		return domain.GenerationInputBatch{}, nil, fmt.Errorf("validate input batch: %w", err)
	}
	batch.Status = domain.BatchValidated
	batch.ContentHash = batchHash
	batch.IsImmutable = true

	return batch, inputs, nil
}

func validatedPromptConfig(sec domain.Section) (map[string]any, error) {
	if sec.PromptConfig == nil {
		return nil, &MissingPromptConfigError{SectionID: sec.ID, StructuralPath: sec.StructuralPath, MissingFields: []string{
			"classification_confidence", "classification_method", "justification",
		}}
	}

	var missing []string
	if _, ok := sec.PromptConfig["classification_confidence"]; !ok {
		missing = append(missing, "classification_confidence")
	}
	if _, ok := sec.PromptConfig["classification_method"]; !ok {
		missing = append(missing, "classification_method")
	}
	if _, ok := sec.PromptConfig["justification"]; !ok {
		missing = append(missing, "justification")
	}
	if len(missing) > 0 {
		return nil, &MissingPromptConfigError{SectionID: sec.ID, StructuralPath: sec.StructuralPath, MissingFields: missing}
	}

	if _, ok := sec.PromptConfig["classification_confidence"].(float64); !ok {
		return nil, &MalformedSectionMetadataError{SectionID: sec.ID, Reason: "classification_confidence is not a number"}
	}
	if _, ok := sec.PromptConfig["classification_method"].(string); !ok {
		return nil, &MalformedSectionMetadataError{SectionID: sec.ID, Reason: "classification_method is not a string"}
	}
	if _, ok := sec.PromptConfig["justification"].(string); !ok {
		return nil, &MalformedSectionMetadataError{SectionID: sec.ID, Reason: "justification is not a string"}
	}

	return sec.PromptConfig, nil
}

// hierarchyContext places sec within its template's structural tree,
// relative to every section sharing its immediate parent path (not just
// the dynamic ones being snapshotted in this batch).
func hierarchyContext(sec domain.Section, allSections []domain.Section) domain.HierarchyContext {
	segments := strings.Split(sec.StructuralPath, "/")
	var parentPath string
	if len(segments) > 1 {
		parentPath = strings.Join(segments[:len(segments)-1], "/")
	}

	var siblingIDs []int
	for _, s := range allSections {
		if parentOf(s.StructuralPath) == parentPath {
			siblingIDs = append(siblingIDs, s.ID)
		}
	}
	sort.Ints(siblingIDs)

	siblingIndex := 0
	for i, id := range siblingIDs {
		if id == sec.ID {
			siblingIndex = i
			break
		}
	}
	totalSiblings := len(siblingIDs)
	if totalSiblings == 0 {
		totalSiblings = 1
	}

	hier := domain.HierarchyContext{
		SiblingIndex:  siblingIndex,
		TotalSiblings: totalSiblings,
		Depth:         len(segments) - 1,
		PathSegments:  segments,
	}
	if len(segments) > 1 {
		hier.ParentHeading = segments[len(segments)-2]
		hier.ParentLevel = len(segments) - 1
	}
	return hier
}

// parentOf returns everything before the last "/" in path, or "" for a
// path with no segments above it.
func parentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

func surroundingContext(index int, sections []domain.Section) domain.SurroundingContext {
	var sc domain.SurroundingContext
	if index > 0 {
		sc.PrecedingPath = sections[index-1].StructuralPath
		sc.PrecedingType = string(sections[index-1].SectionType)
	}
	if index+1 < len(sections) {
		sc.FollowingPath = sections[index+1].StructuralPath
		sc.FollowingType = string(sections[index+1].SectionType)
	}
	sc.Hint = fmt.Sprintf("section %d of %d", index+1, len(sections))
	return sc
}

func validateSnapshot(snap snapshot) error {
	if snap.SectionID <= 0 {
		return &InputValidationError{Field: "section_id", Reason: "must be positive", SectionID: snap.SectionID, InvalidValue: snap.SectionID}
	}
	confidence, _ := snap.PromptCfg["classification_confidence"].(float64)
	if confidence < 0 || confidence > 1 {
		return &InputValidationError{
			Field: "prompt_config.classification_confidence", Reason: "must be between 0.0 and 1.0",
			SectionID: snap.SectionID, InvalidValue: confidence,
		}
	}
	return nil
}
