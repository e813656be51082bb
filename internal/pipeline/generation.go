package pipeline

import (
	"context"
	"fmt"

	"github.com/inful/docgen/internal/assembly"
	"github.com/inful/docgen/internal/audit"
	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/domain"
	derrors "github.com/inful/docgen/internal/foundation/errors"
	"github.com/inful/docgen/internal/inputprep"
	"github.com/inful/docgen/internal/rendering"
	"github.com/inful/docgen/internal/sectiongen"
)

// generationPayload is the decoded shape of a GENERATE job's payload.
type generationPayload struct {
	TemplateVersionID string
	DocumentID        string
	VersionIntent     int
	Client            inputprep.ClientData
}

func decodeGenerationPayload(payload map[string]any) (generationPayload, error) {
	templateVersionID, _ := payload["template_version_id"].(string)
	documentID, _ := payload["document_id"].(string)
	if templateVersionID == "" || documentID == "" {
		return generationPayload{}, fmt.Errorf("payload requires non-empty template_version_id and document_id")
	}

	versionIntent := 1
	if raw, ok := payload["version_intent"]; ok {
		n, ok := toInt(raw)
		if !ok {
			return generationPayload{}, fmt.Errorf("version_intent must be an integer")
		}
		versionIntent = n
	}

	client := inputprep.ClientData{}
	if raw, ok := payload["client_data"].(map[string]any); ok {
		client.ClientID, _ = raw["client_id"].(string)
		client.ClientName, _ = raw["client_name"].(string)
		client.CustomContext, _ = raw["custom_context"].(map[string]any)
		if fields, ok := raw["data_fields"].(map[string]any); ok {
			client.DataFields = fields
		}
	}

	return generationPayload{
		TemplateVersionID: templateVersionID,
		DocumentID:        documentID,
		VersionIntent:     versionIntent,
		Client:            client,
	}, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// GenerateHandler runs the five-stage generation pipeline for a GENERATE
// job. Per job, the handler is stateless across invocations: each stage
// re-derives its inputs from durable rows rather than from an earlier
// in-process run, so re-running the same payload either reaches the same
// success (idempotent at the stage level) or fails attributing the same
// stage.
func (d Dependencies) GenerateHandler(ctx context.Context, job domain.Job) (map[string]any, error) {
	payload, err := decodeGenerationPayload(job.Payload)
	if err != nil {
		return nil, err
	}
	state, err := d.runGeneration(ctx, payload, nil, nil)
	if err != nil {
		return state.ToResult(), err
	}
	return state.ToResult(), nil
}

// RegenerateHandler re-runs the five-stage pipeline for an existing
// document at a new (or the same) version-intent, decoding REGENERATE's
// payload shape {document_id, version_intent, client_data?, correlation_id?}.
// The template-version to regenerate from is the document's current one.
func (d Dependencies) RegenerateHandler(ctx context.Context, job domain.Job) (map[string]any, error) {
	documentID, _ := job.Payload["document_id"].(string)
	if documentID == "" {
		return nil, fmt.Errorf("payload requires non-empty document_id")
	}
	doc, err := d.Store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("resolve document %s: %w", documentID, err)
	}

	versionIntent := doc.CurrentVersion + 1
	if raw, ok := job.Payload["version_intent"]; ok {
		if n, ok := toInt(raw); ok {
			versionIntent = n
		}
	}

	client := inputprep.ClientData{}
	if raw, ok := job.Payload["client_data"].(map[string]any); ok {
		client.ClientID, _ = raw["client_id"].(string)
		client.ClientName, _ = raw["client_name"].(string)
		client.CustomContext, _ = raw["custom_context"].(map[string]any)
		if fields, ok := raw["data_fields"].(map[string]any); ok {
			client.DataFields = fields
		}
	}

	payload := generationPayload{
		TemplateVersionID: doc.TemplateVersionID,
		DocumentID:        documentID,
		VersionIntent:     versionIntent,
		Client:            client,
	}
	state, err := d.runGeneration(ctx, payload, nil, nil)
	if err != nil {
		return state.ToResult(), err
	}
	return state.ToResult(), nil
}

// RegenerateSectionsHandler regenerates a document from its full dynamic
// section set, same as RegenerateHandler, recording which sections the
// caller asked to target via section_ids/reuse_section_ids for audit
// purposes. Narrowing generation to only the named sections and reusing
// prior outputs for the rest is a further refinement left for a later
// pass — see runGeneration's doc comment.
func (d Dependencies) RegenerateSectionsHandler(ctx context.Context, job domain.Job) (map[string]any, error) {
	documentID, _ := job.Payload["document_id"].(string)
	if documentID == "" {
		return nil, fmt.Errorf("payload requires non-empty document_id")
	}

	templateVersionID, _ := job.Payload["template_version_id"].(string)
	if templateVersionID == "" {
		doc, err := d.Store.GetDocument(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("resolve document %s: %w", documentID, err)
		}
		templateVersionID = doc.TemplateVersionID
	}

	versionIntent := 1
	if raw, ok := job.Payload["version_intent"]; ok {
		if n, ok := toInt(raw); ok {
			versionIntent = n
		}
	}

	sectionIDs := toIntSet(job.Payload["section_ids"])
	reuseIDs := toIntSet(job.Payload["reuse_section_ids"])

	client := inputprep.ClientData{}
	if raw, ok := job.Payload["client_data"].(map[string]any); ok {
		client.ClientID, _ = raw["client_id"].(string)
		client.ClientName, _ = raw["client_name"].(string)
		client.CustomContext, _ = raw["custom_context"].(map[string]any)
		if fields, ok := raw["data_fields"].(map[string]any); ok {
			client.DataFields = fields
		}
	}

	payload := generationPayload{
		TemplateVersionID: templateVersionID,
		DocumentID:        documentID,
		VersionIntent:     versionIntent,
		Client:            client,
	}
	state, err := d.runGeneration(ctx, payload, sectionIDs, reuseIDs)
	if err != nil {
		return state.ToResult(), err
	}
	return state.ToResult(), nil
}

func toIntSet(raw any) map[int]bool {
	out := map[int]bool{}
	items, ok := raw.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		if n, ok := toInt(item); ok {
			out[n] = true
		}
	}
	return out
}

// runGeneration drives the five stages in order, stopping at the first
// failure and attributing it to the stage that produced it, recording an
// audit entry at each stage's success or failure boundary.
//
// sectionIDs/reuseIDs name the sections a REGENERATE_SECTIONS caller asked
// to target/reuse; matching the ground truth this was distilled from
// (backend/app/worker/handlers/regeneration.py's _execute_section_
// regeneration), input preparation and section generation still run over
// the full dynamic-section batch rather than a narrowed subset — every
// DYNAMIC section needs a validated output before assembly will accept the
// batch (internal/assembly.Assemble's CodeMissingValidatedContent check),
// so silently dropping the untargeted sections from the batch would make
// assembly fail instead of succeed. sectionIDs/reuseIDs are recorded on the
// initiation audit entry only; true content-reuse short-circuiting (skip
// regenerating a section whose prior output is reused) is a further
// refinement the ground truth itself left a no-op stage for.
func (d Dependencies) runGeneration(ctx context.Context, payload generationPayload, sectionIDs, reuseIDs map[int]bool) (State, error) {
	state := State{Stage: StageInputPreparation}

	if d.Audit != nil {
		_ = d.Audit.Record(ctx, audit.EntityDocument, payload.DocumentID, audit.ActionGenerationInitiated, map[string]any{
			"template_version_id": payload.TemplateVersionID,
			"version_intent":      payload.VersionIntent,
			"section_ids":         intSetKeys(sectionIDs),
			"reuse_section_ids":   intSetKeys(reuseIDs),
		})
	}

	batch, inputs, err := inputprep.Prepare(ctx, d.Store, payload.DocumentID, payload.TemplateVersionID, payload.VersionIntent, payload.Client)
	if err != nil {
		return d.fail(ctx, state, StageInputPreparation, err, audit.EntityDocument, payload.DocumentID)
	}
	state.InputBatchID = batch.ID
	state.Stage = StageSectionGeneration
	if d.Audit != nil {
		_ = d.Audit.Record(ctx, audit.EntityGenerationBatch, batch.ID, audit.ActionCreated, map[string]any{
			"total_inputs": len(inputs),
		})
	}

	outputBatchID := batch.ID
	genSvc := sectiongen.NewService(d.SectionGenLLM, d.SectionGenConstraints, d.SectionGenRetryPolicy)
	outputs, err := genSvc.GenerateBatch(ctx, d.Store, outputBatchID, batch.ID, inputs)
	if err != nil {
		return d.fail(ctx, state, StageSectionGeneration, err, audit.EntitySectionOutputSet, outputBatchID)
	}
	if d.Audit != nil {
		for _, o := range outputs {
			action := audit.ActionSectionGenerationComplete
			if o.Status == domain.OutputFailed {
				action = audit.ActionSectionGenerationFailed
			}
			_ = d.Audit.Record(ctx, audit.EntitySectionOutput, o.ID, action, map[string]any{"section_id": o.SectionID})
		}
	}
	failedCount, err := d.Store.CountFailedOutputs(ctx, outputBatchID)
	if err != nil {
		return d.fail(ctx, state, StageSectionGeneration, err, audit.EntitySectionOutputSet, outputBatchID)
	}
	if failedCount > 0 {
		return d.fail(ctx, state, StageSectionGeneration, fmt.Errorf("%d of %d section outputs failed", failedCount, len(outputs)), audit.EntitySectionOutputSet, outputBatchID)
	}
	if d.Audit != nil {
		_ = d.Audit.Record(ctx, audit.EntitySectionOutputSet, outputBatchID, audit.ActionBatchGenerationComplete, map[string]any{
			"output_count": len(outputs),
		})
	}
	state.OutputBatchID = outputBatchID
	state.Stage = StageDocumentAssembly

	templateVersion, err := d.Store.GetTemplateVersion(ctx, payload.TemplateVersionID)
	if err != nil {
		return d.fail(ctx, state, StageDocumentAssembly, err, audit.EntityDocument, payload.DocumentID)
	}
	if templateVersion.ParsedPath == "" {
		return d.fail(ctx, state, StageDocumentAssembly, fmt.Errorf("template version %s has no parsed artifact", payload.TemplateVersionID), audit.EntityDocument, payload.DocumentID)
	}
	parsedObj, err := d.Objects.Get(ctx, templateVersion.ParsedPath)
	if err != nil {
		return d.fail(ctx, state, StageDocumentAssembly, err, audit.EntityDocument, payload.DocumentID)
	}
	parsed, err := block.Unmarshal(parsedObj.Data)
	if err != nil {
		return d.fail(ctx, state, StageDocumentAssembly, err, audit.EntityDocument, payload.DocumentID)
	}
	sections, err := d.Store.ListSectionsByTemplateVersion(ctx, payload.TemplateVersionID)
	if err != nil {
		return d.fail(ctx, state, StageDocumentAssembly, err, audit.EntityDocument, payload.DocumentID)
	}

	assembled, err := assembly.Assemble(ctx, d.Store, assembly.Request{
		DocumentID:           payload.DocumentID,
		TemplateVersionID:    payload.TemplateVersionID,
		VersionIntent:        payload.VersionIntent,
		SectionOutputBatchID: outputBatchID,
		Parsed:               parsed,
		Sections:             sections,
		Outputs:              outputs,
	})
	if err != nil {
		if assembled.ID == "" {
			return d.fail(ctx, state, StageDocumentAssembly, err, audit.EntityDocument, payload.DocumentID)
		}
		return d.fail(ctx, state, StageDocumentAssembly, err, audit.EntityAssembledDoc, assembled.ID)
	}
	if d.Audit != nil {
		_ = d.Audit.Record(ctx, audit.EntityAssembledDoc, assembled.ID, audit.ActionAssemblyComplete, map[string]any{
			"block_count": assembled.BlockCount,
		})
	}
	state.AssembledDocumentID = assembled.ID
	state.Stage = StageDocumentRendering

	rendered, err := rendering.Render(ctx, d.Renderer, d.Store, assembled)
	if err != nil {
		return d.fail(ctx, state, StageDocumentRendering, err, audit.EntityAssembledDoc, assembled.ID)
	}
	if d.Audit != nil {
		_ = d.Audit.Record(ctx, audit.EntityRenderedDoc, rendered.ID, audit.ActionRenderingComplete, map[string]any{
			"output_path": rendered.OutputPath,
		})
	}
	state.RenderedDocumentID = rendered.ID
	state.Stage = StageVersioning

	renderedObj, err := d.Objects.Get(ctx, rendered.OutputPath)
	if err != nil {
		return d.fail(ctx, state, StageVersioning, err, audit.EntityRenderedDoc, rendered.ID)
	}
	versionResult, err := d.versioningService().CreateVersion(ctx, payload.DocumentID, renderedObj.Data)
	if err != nil {
		return d.fail(ctx, state, StageVersioning, err, audit.EntityRenderedDoc, rendered.ID)
	}
	state.VersionNumber = versionResult.Version.VersionNumber
	state.Stage = StageCompleted

	return state, nil
}

func intSetKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// failureAction maps a stage to the audit action recorded when it fails.
// Stages with no dedicated failure action in the audit taxonomy (input
// preparation, versioning) record no entry here.
func failureAction(stage Stage) (audit.Action, bool) {
	switch stage {
	case StageSectionGeneration:
		return audit.ActionBatchGenerationFailed, true
	case StageDocumentAssembly:
		return audit.ActionAssemblyFailed, true
	case StageDocumentRendering:
		return audit.ActionRenderingFailed, true
	default:
		return "", false
	}
}

// categoryFor picks the foundation/errors category matching a pipeline
// stage, so a stage failure's exit code and retry semantics (via
// internal/foundation/errors.CLIErrorAdapter) reflect which of the five
// stages produced it rather than collapsing to a generic error.
func categoryFor(stage Stage) derrors.ErrorCategory {
	switch stage {
	case StageSectionGeneration:
		return derrors.CategoryClassification
	case StageDocumentAssembly:
		return derrors.CategoryAssembly
	case StageVersioning:
		return derrors.CategoryVersioning
	default:
		return derrors.CategoryPipeline
	}
}

// fail records the stage-failure audit entry (if any) and returns a
// *errors.ClassifiedError wrapping the stage's underlying error as its
// cause, so a caller holding the returned error can both unwrap to the
// original failure (errors.Is/As, string matching in tests) and recover
// its stage/category/retry classification via errors.AsClassified.
func (d Dependencies) fail(ctx context.Context, state State, stage Stage, err error, entityType audit.EntityType, entityID string) (State, error) {
	state.Stage = stage
	state.ErrorStage = stage
	state.Error = fmt.Sprintf("%s: %v", stage, err)
	if d.Audit != nil {
		if action, ok := failureAction(stage); ok {
			_ = d.Audit.Record(ctx, entityType, entityID, action, map[string]any{"error": err.Error()})
		}
	}
	classified := derrors.WrapError(err, categoryFor(stage), fmt.Sprintf("%s failed", stage)).
		Fatal().
		WithContext("stage", string(stage)).
		WithContext("entity_type", string(entityType)).
		WithContext("entity_id", entityID).
		Build()
	return state, classified
}
