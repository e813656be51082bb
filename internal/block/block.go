// Package block implements the tagged-union block model that makes up a
// parsed template document: paragraphs, headings, tables, lists, breaks,
// and header/footer blocks, each carrying a stable block_id and a dense
// sequence position. A ParsedDocument is the on-disk (object-storage)
// artifact produced by parsing; it serializes as a single JSON document
// keyed on block_type, never as N separate per-variant schemas.
package block

import (
	"encoding/json"
	"fmt"
)

// Type is the discriminant tag of a Block's payload.
type Type string

const (
	TypeParagraph Type = "paragraph"
	TypeHeading   Type = "heading"
	TypeTable     Type = "table"
	TypeList      Type = "list"
	TypeHeader    Type = "header"
	TypeFooter    Type = "footer"
	TypeBreak     Type = "break"
)

// Run is one styled span of text within a paragraph or heading.
type Run struct {
	Text   string `json:"text"`
	Bold   bool   `json:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty"`
}

// Cell is one table cell; its own Runs hold its text content.
type Cell struct {
	Runs []Run `json:"runs"`
}

// Row is one table row.
type Row struct {
	Cells []Cell `json:"cells"`
}

// Block is a single atomic, typed unit of a parsed document. Only the
// fields relevant to BlockType are populated; the rest are left zero.
// Identity is (template_version_id, BlockID); BlockID is stable across
// reparses of unchanged content and Sequence is dense 0..N-1 within a
// document.
type Block struct {
	BlockID  string `json:"block_id"`
	Sequence int    `json:"sequence"`
	Type     Type   `json:"block_type"`

	// paragraph, heading, header, footer
	Runs  []Run `json:"runs,omitempty"`
	Level int   `json:"level,omitempty"` // heading level

	// table
	Rows []Row `json:"rows,omitempty"`
	Cols int   `json:"cols,omitempty"`

	// list
	Items []string `json:"items,omitempty"`
}

// ContentHash returns the byte sequence hashed to produce the block's
// content hash, per the canonical rule for its type: concatenated run
// text for paragraph/heading, "table:{rows}x{cols}" for table, items
// joined by "|" for list, and the block_id itself for everything else.
func (b Block) ContentHash() string {
	switch b.Type {
	case TypeParagraph, TypeHeading:
		var text string
		for _, r := range b.Runs {
			text += r.Text
		}
		return text
	case TypeTable:
		return fmt.Sprintf("table:%dx%d", len(b.Rows), b.Cols)
	case TypeList:
		var out string
		for i, item := range b.Items {
			if i > 0 {
				out += "|"
			}
			out += item
		}
		return out
	default:
		return b.BlockID
	}
}

// StructuralPath is the lookup key sections are classified against:
// body/block/{sequence}.
func (b Block) StructuralPath() string {
	return fmt.Sprintf("body/block/%d", b.Sequence)
}

// Metadata carries document-level summary counts and parser diagnostics.
type Metadata struct {
	BlockCount     int            `json:"block_count"`
	ParagraphCount int            `json:"paragraph_count"`
	TableCount     int            `json:"table_count"`
	ListCount      int            `json:"list_count"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// ParsedDocument is the object-storage artifact produced by parsing a
// TemplateVersion's source document. It is immutable once written.
type ParsedDocument struct {
	TemplateVersionID string   `json:"template_version_id"`
	TemplateID        string   `json:"template_id"`
	VersionNumber     int      `json:"version_number"`
	ContentHash       string   `json:"content_hash"`
	Metadata          Metadata `json:"metadata"`
	Blocks            []Block  `json:"blocks"`
	Headers           []Block  `json:"headers"`
	Footers           []Block  `json:"footers"`
}

// Marshal serializes a ParsedDocument using the single block_type-keyed
// encoding — there is exactly one wire shape for all block variants, so
// the standard encoding/json struct tags above are sufficient and no
// per-variant marshaler is needed.
func (p ParsedDocument) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// Unmarshal parses bytes produced by Marshal back into a ParsedDocument.
func Unmarshal(data []byte) (ParsedDocument, error) {
	var p ParsedDocument
	if err := json.Unmarshal(data, &p); err != nil {
		return ParsedDocument{}, fmt.Errorf("unmarshal parsed document: %w", err)
	}
	return p, nil
}

// BlockByPath returns the block at the given structural path, if any.
func (p ParsedDocument) BlockByPath(path string) (Block, bool) {
	for _, b := range p.Blocks {
		if b.StructuralPath() == path {
			return b, true
		}
	}
	return Block{}, false
}
