// Package hashing implements the canonicalisation and SHA-256 hashing
// rules the generation pipeline relies on for content addressing:
// deterministic canonical JSON (sorted keys, ASCII-escaped, no
// whitespace, no trailing newline) and the per-entity hash compositions
// built on top of it.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Text returns the SHA-256 hex digest of the UTF-8 bytes of s.
func Text(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Bytes returns the SHA-256 hex digest of b.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON serializes v into canonical form: object keys sorted
// lexicographically, all non-ASCII characters escaped, no insignificant
// whitespace, and no trailing newline. Two values that are semantically
// equal (ignoring Go map iteration order) always produce byte-identical
// output.
func CanonicalJSON(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("canonical json encode: %w", err)
	}
	compact, err := asciiEscape(bytes.TrimRight(buf.Bytes(), "\n"))
	if err != nil {
		return nil, err
	}
	return compact, nil
}

// normalize round-trips v through json.Marshal/Unmarshal into
// map[string]any/[]any/primitives so that struct field order never
// influences the result — only the sorted-key re-encoding in
// CanonicalJSON does.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical json marshal: %w", err)
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical json decode: %w", err)
	}
	return sortedValue(generic), nil
}

// sortedValue rebuilds maps as ordered key/value pairs isn't possible
// with Go's encoding/json (it always sorts map[string]any keys on
// encode), so this function is the identity transform for maps and
// recurses into slices to normalize nested objects the same way.
func sortedValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = sortedValue(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sortedValue(e)
		}
		return out
	default:
		return val
	}
}

// asciiEscape rewrites any byte sequence containing non-ASCII runes into
// \uXXXX escapes, matching json.Marshal's SetEscapeHTML(false) output
// plus ASCII-only guarantee required for cross-platform determinism.
func asciiEscape(in []byte) ([]byte, error) {
	var out bytes.Buffer
	for _, r := range string(in) {
		if r < 0x80 {
			out.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r1, r2 := utf16Surrogates(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&out, `\u%04x`, r)
	}
	return out.Bytes(), nil
}

func utf16Surrogates(r rune) (rune, rune) {
	r -= 0x10000
	return 0xD800 + (r >> 10), 0xDC00 + (r & 0x3FF)
}

// CanonicalJSONHash returns the SHA-256 hex digest of v's canonical JSON
// encoding.
func CanonicalJSONHash(v any) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return Bytes(data), nil
}

// InputHash computes the GenerationInput content hash: SHA-256 of the
// canonical JSON of its snapshot fields.
func InputHash(snapshot any) (string, error) {
	return CanonicalJSONHash(snapshot)
}

// BatchHash computes the GenerationInputBatch content hash: SHA-256 of
// the canonical JSON of the sorted list of member input-hashes.
func BatchHash(inputHashes []string) (string, error) {
	sorted := make([]string, len(inputHashes))
	copy(sorted, inputHashes)
	sort.Strings(sorted)
	return CanonicalJSONHash(sorted)
}

// AssemblyHashEntry is one block's contribution to the assembly hash.
type AssemblyHashEntry struct {
	BlockID             string
	AssembledContentHash string
}

// AssemblyHash computes the assembly hash: the pipe-joined concatenation
// of documentID, templateVersionID, versionIntent and outputBatchID,
// followed by "{block-id}:{assembled-content-hash}" for each entry in
// ascending sequence order (callers must pass entries pre-sorted by
// sequence).
func AssemblyHash(documentID, templateVersionID string, versionIntent int, outputBatchID string, entries []AssemblyHashEntry) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s|%s|%d|%s", documentID, templateVersionID, versionIntent, outputBatchID)
	for _, e := range entries {
		fmt.Fprintf(&buf, "|%s:%s", e.BlockID, e.AssembledContentHash)
	}
	return Bytes(buf.Bytes())
}
