// Package pipeline implements the job handlers the worker scheduler
// dispatches by JobType: PARSE and CLASSIFY advance a template version
// through parsing and classification, and the five-stage generation
// handler (INPUT_PREPARATION -> SECTION_GENERATION -> DOCUMENT_ASSEMBLY
// -> DOCUMENT_RENDERING -> VERSIONING) drives GENERATE, REGENERATE, and
// REGENERATE_SECTIONS to completion.
package pipeline

// Stage names one step of the generation handler's in-memory state
// machine.
type Stage string

const (
	StageInputPreparation Stage = "INPUT_PREPARATION"
	StageSectionGeneration Stage = "SECTION_GENERATION"
	StageDocumentAssembly Stage = "DOCUMENT_ASSEMBLY"
	StageDocumentRendering Stage = "DOCUMENT_RENDERING"
	StageVersioning       Stage = "VERSIONING"
	StageCompleted        Stage = "COMPLETED"
)

// State is the generation handler's in-memory record of how far one run
// progressed. It is never persisted directly — the job's result payload
// carries its fields forward, and every id it names refers to a row
// already durably committed by the stage that produced it.
type State struct {
	Stage Stage

	InputBatchID        string
	OutputBatchID       string
	AssembledDocumentID string
	RenderedDocumentID  string
	VersionNumber       int

	ErrorStage Stage
	Error      string
}

// ToResult flattens State into the map a queue.Handler returns as a
// job's result payload.
func (s State) ToResult() map[string]any {
	out := map[string]any{"stage": string(s.Stage)}
	if s.InputBatchID != "" {
		out["input_batch_id"] = s.InputBatchID
	}
	if s.OutputBatchID != "" {
		out["output_batch_id"] = s.OutputBatchID
	}
	if s.AssembledDocumentID != "" {
		out["assembled_document_id"] = s.AssembledDocumentID
	}
	if s.RenderedDocumentID != "" {
		out["rendered_document_id"] = s.RenderedDocumentID
	}
	if s.VersionNumber != 0 {
		out["version_number"] = s.VersionNumber
	}
	if s.ErrorStage != "" {
		out["error_stage"] = string(s.ErrorStage)
	}
	if s.Error != "" {
		out["error"] = s.Error
	}
	return out
}
