package pipeline

import (
	"context"
	"fmt"

	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/classification"
	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/hashing"
	"github.com/inful/docgen/internal/storage"
)

func decodeTemplateVersionPayload(payload map[string]any) (string, error) {
	id, _ := payload["template_version_id"].(string)
	if id == "" {
		return "", fmt.Errorf("payload requires non-empty template_version_id")
	}
	return id, nil
}

// ParseHandler loads a TemplateVersion's uploaded source document,
// parses it via the external Parser collaborator, uploads the resulting
// ParsedDocument to object storage, and records completion. On success
// it enqueues the successor CLASSIFY job for the same template-version —
// the pipeline-advancement step spec.md §4.2 calls out.
func (d Dependencies) ParseHandler(ctx context.Context, job domain.Job) (map[string]any, error) {
	templateVersionID, err := decodeTemplateVersionPayload(job.Payload)
	if err != nil {
		return nil, err
	}

	tv, err := d.Store.GetTemplateVersion(ctx, templateVersionID)
	if err != nil {
		return nil, fmt.Errorf("resolve template version %s: %w", templateVersionID, err)
	}

	source, err := d.Objects.Get(ctx, tv.SourcePath)
	if err != nil {
		_ = d.Store.FailParsing(ctx, templateVersionID, err.Error())
		return nil, fmt.Errorf("fetch source document: %w", err)
	}

	parsed, err := d.Parser.Parse(ctx, source.Data)
	if err != nil {
		_ = d.Store.FailParsing(ctx, templateVersionID, err.Error())
		return nil, fmt.Errorf("parse source document: %w", err)
	}
	parsed.TemplateVersionID = templateVersionID
	parsed.TemplateID = tv.TemplateID
	parsed.VersionNumber = tv.VersionNumber

	data, err := parsed.Marshal()
	if err != nil {
		_ = d.Store.FailParsing(ctx, templateVersionID, err.Error())
		return nil, fmt.Errorf("marshal parsed document: %w", err)
	}
	contentHash := hashing.Bytes(data)
	parsedKey := storage.TemplateParsedKey(tv.TemplateID, tv.VersionNumber)
	if err := d.Objects.Put(ctx, parsedKey, data, "application/json"); err != nil {
		_ = d.Store.FailParsing(ctx, templateVersionID, err.Error())
		return nil, fmt.Errorf("upload parsed document: %w", err)
	}

	if err := d.Store.CompleteParsing(ctx, templateVersionID, parsedKey, contentHash); err != nil {
		return nil, fmt.Errorf("record parsing completion: %w", err)
	}

	if d.Queue != nil {
		if _, err := d.Queue.Enqueue(ctx, domain.JobClassify, map[string]any{"template_version_id": templateVersionID}); err != nil {
			return nil, fmt.Errorf("enqueue successor classify job: %w", err)
		}
	}

	return map[string]any{
		"template_version_id":     templateVersionID,
		"parsed_path":             parsedKey,
		"content_hash":            contentHash,
		"should_advance_pipeline": true,
	}, nil
}

// ClassifyHandler loads the parsed document for a TemplateVersion and
// runs the classification engine over every block, persisting one
// Section row per block.
func (d Dependencies) ClassifyHandler(ctx context.Context, job domain.Job) (map[string]any, error) {
	templateVersionID, err := decodeTemplateVersionPayload(job.Payload)
	if err != nil {
		return nil, err
	}

	tv, err := d.Store.GetTemplateVersion(ctx, templateVersionID)
	if err != nil {
		return nil, fmt.Errorf("resolve template version %s: %w", templateVersionID, err)
	}
	if tv.ParsedPath == "" {
		return nil, fmt.Errorf("template version %s has not completed parsing", templateVersionID)
	}

	parsedObj, err := d.Objects.Get(ctx, tv.ParsedPath)
	if err != nil {
		return nil, fmt.Errorf("fetch parsed document: %w", err)
	}
	parsed, err := block.Unmarshal(parsedObj.Data)
	if err != nil {
		return nil, fmt.Errorf("decode parsed document: %w", err)
	}

	svc := d.classificationService()
	sections, err := classification.ClassifyAndPersist(ctx, svc, d.Store, templateVersionID, parsed.Blocks)
	if err != nil {
		return nil, fmt.Errorf("classify and persist sections: %w", err)
	}

	return map[string]any{
		"template_version_id": templateVersionID,
		"section_count":       len(sections),
	}, nil
}
