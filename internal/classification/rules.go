// Package classification assigns STATIC or DYNAMIC to every block of a
// parsed template: rule-based pattern matching first, an optional
// LLM-assisted pass second, and a conservative fallback last. Grounded on
// the teacher's rule_based_classifier.py / llm_classifier.py /
// classification_service.py trio, reworked as a stateless, thread-safe
// Go service.
package classification

import (
	"regexp"
	"strings"

	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/domain"
)

// Method identifies which stage of the pipeline produced a Result.
type Method string

const (
	MethodRuleBased Method = "RULE_BASED"
	MethodLLM       Method = "LLM_ASSISTED"
	MethodFallback  Method = "FALLBACK"
)

// Result is one classification decision for a single block.
type Result struct {
	SectionType  domain.SectionType
	Confidence   float64
	Method       Method
	Justification string
	Metadata     map[string]any
}

// Context carries the structural neighbours of a block, used by both the
// structural heuristics and the LLM prompt.
type Context struct {
	PreviousBlockType string
	NextBlockType     string
	PositionInDocument int
}

type pattern struct {
	re         *regexp.Regexp
	confidence float64
	reason     string
}

// staticPatterns and dynamicPatterns are evaluated in order; the first
// match wins. Confidence weights and phrasing mirror the teacher's
// rule-based classifier.
var staticPatterns = []pattern{
	{regexp.MustCompile(`(?i)\b(disclaimer|confidential|privileged|copyright|all rights reserved)\b`), 0.95, "Legal disclaimer or confidentiality notice"},
	{regexp.MustCompile(`(?i)\b(this document|prepared by|professional advice|should not be construed)\b`), 0.92, "Standard boilerplate text"},
	{regexp.MustCompile(`(?i)^(page \d+|proprietary|internal use only)`), 0.95, "Fixed header or footer content"},
	{regexp.MustCompile(`(?i)\b(tel:|email:|address:|phone:|fax:)`), 0.90, "Fixed contact information"},
}

var dynamicPatterns = []pattern{
	{regexp.MustCompile(`\{[^}]+\}|\[[^\]]+\]|<[^>]+>|\$\{[^}]+\}`), 0.95, "Contains placeholder syntax"},
	{regexp.MustCompile(`(?i)\b(to be completed|insert|customize|client-specific|personalized)\b`), 0.92, "Explicit customization marker"},
	{regexp.MustCompile(`(?i)\b(client name|company name|project name|date|amount|percentage)\b`), 0.88, "Contains variable references"},
	{regexp.MustCompile(`(?i)\b(our analysis|we recommend|specific to|tailored|customized approach)\b`), 0.85, "Client-specific narrative content"},
}

// RuleClassifier is a stateless, thread-safe pattern/heuristic classifier.
// It holds no mutable state, so a single instance may be shared across
// workers.
type RuleClassifier struct {
	threshold float64
}

// NewRuleClassifier builds a RuleClassifier with the given confidence
// threshold (a result below threshold is reported as no decision).
func NewRuleClassifier(threshold float64) *RuleClassifier {
	return &RuleClassifier{threshold: threshold}
}

// Classify runs the ordered rule-based/structural/content pipeline
// against b. Returns (Result{}, false) if nothing reached the threshold.
func (c *RuleClassifier) Classify(b block.Block, ctx Context) (Result, bool) {
	text := blockText(b)

	for _, p := range staticPatterns {
		if p.re.MatchString(text) {
			if p.confidence < c.threshold {
				return Result{}, false
			}
			return c.result(domain.SectionStatic, p.confidence, "Rule-based: "+p.reason,
				map[string]any{"pattern": p.re.String(), "text_sample": sample(text)}), true
		}
	}
	for _, p := range dynamicPatterns {
		if p.re.MatchString(text) {
			if p.confidence < c.threshold {
				return Result{}, false
			}
			return c.result(domain.SectionDynamic, p.confidence, "Rule-based: "+p.reason,
				map[string]any{"pattern": p.re.String(), "text_sample": sample(text)}), true
		}
	}

	if res, ok := c.structural(b); ok && res.Confidence >= c.threshold {
		return res, true
	}
	if res, ok := c.heuristic(b, text); ok && res.Confidence >= c.threshold {
		return res, true
	}
	return Result{}, false
}

func (c *RuleClassifier) structural(b block.Block) (Result, bool) {
	switch b.Type {
	case block.TypeHeader, block.TypeFooter:
		return c.result(domain.SectionStatic, 0.95, "Header or footer block type",
			map[string]any{"block_type": string(b.Type)}), true
	case block.TypeHeading:
		if b.Level == 1 {
			return c.result(domain.SectionStatic, 0.70, "Top-level heading typically structural",
				map[string]any{"heading_level": b.Level}), true
		}
	}
	return Result{}, false
}

func (c *RuleClassifier) heuristic(b block.Block, text string) (Result, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 10 {
		return c.result(domain.SectionStatic, 0.75, "Very short content, likely structural label",
			map[string]any{"text_length": len(text)}), true
	}
	if len(text) < 50 && hasLetter(text) && text == strings.ToUpper(text) {
		return c.result(domain.SectionStatic, 0.80, "ALL CAPS short text, likely static header",
			map[string]any{"text_sample": text}), true
	}
	if b.Type == block.TypeParagraph && len(text) > 200 {
		words := len(strings.Fields(text))
		if words > 50 {
			return c.result(domain.SectionDynamic, 0.72, "Long narrative paragraph, likely client-specific content",
				map[string]any{"word_count": words}), true
		}
	}
	return Result{}, false
}

func (c *RuleClassifier) result(t domain.SectionType, confidence float64, justification string, metadata map[string]any) Result {
	return Result{SectionType: t, Confidence: confidence, Method: MethodRuleBased, Justification: justification, Metadata: metadata}
}

func blockText(b block.Block) string {
	var sb strings.Builder
	for _, r := range b.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func sample(text string) string {
	if len(text) > 100 {
		return text[:100]
	}
	return text
}
