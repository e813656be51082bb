// Package inputprep implements the Input Preparation pipeline stage:
// turning "there is a template and client data" into a fully materialised,
// validated batch of per-section generation inputs. Grounded on the
// teacher's generation/service.py GenerationInputService and
// generation/errors.py, reworked with explicit Go error types instead of
// exception classes.
package inputprep

import "fmt"

// NoDynamicSectionsError is raised when a template version has zero
// DYNAMIC sections — there is nothing to generate.
type NoDynamicSectionsError struct {
	TemplateVersionID string
}

func (e *NoDynamicSectionsError) Error() string {
	return fmt.Sprintf("template version %s has no DYNAMIC sections", e.TemplateVersionID)
}

// MissingPromptConfigError is raised when a DYNAMIC section's
// prompt-config is missing one of the three required fields.
type MissingPromptConfigError struct {
	SectionID      int
	StructuralPath string
	MissingFields  []string
}

func (e *MissingPromptConfigError) Error() string {
	return fmt.Sprintf("section %d (%s) missing prompt config fields: %v", e.SectionID, e.StructuralPath, e.MissingFields)
}

// MalformedSectionMetadataError is raised when a section's prompt-config
// is present but not a mapping, or a required field has the wrong type.
type MalformedSectionMetadataError struct {
	SectionID int
	Reason    string
}

func (e *MalformedSectionMetadataError) Error() string {
	return fmt.Sprintf("section %d has malformed metadata: %s", e.SectionID, e.Reason)
}

// InputValidationError is raised when a fully-assembled snapshot fails
// field-level validation.
type InputValidationError struct {
	Field        string
	Reason       string
	SectionID    int
	InvalidValue any
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("section %d: field %q invalid (%s): %v", e.SectionID, e.Field, e.Reason, e.InvalidValue)
}
