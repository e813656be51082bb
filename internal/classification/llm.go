package classification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/domain"
)

// systemPrompt is sent verbatim as the system message on every request,
// mirroring the teacher's LLMClassifier.SYSTEM_PROMPT contract: a strict
// JSON-only response shape, temperature 0.
const systemPrompt = `You are a document section classifier for a template generation system. Classify the given section as STATIC (identical in every generated document: headings, labels, disclaimers, boilerplate) or DYNAMIC (changes per document: data, names, dates, client-specific analysis).

Respond with JSON only, no other text:
{"classification": "STATIC" or "DYNAMIC", "confidence": 0.0 to 1.0, "reasoning": "brief explanation"}`

// LLMClassifier is the narrow external collaborator: given a block and its
// structural context, it returns a classification decision or no decision
// at all. Implementations must honor the temperature-0, strict-JSON
// contract; any non-determinism is the collaborator's concern, not the
// classification engine's.
type LLMClassifier interface {
	Classify(ctx context.Context, b block.Block, cctx Context) (Result, bool, error)
}

// HTTPLLMClassifier calls an OpenAI-chat-completions-compatible endpoint.
type HTTPLLMClassifier struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewHTTPLLMClassifier builds an HTTPLLMClassifier. baseURL is the API
// root (e.g. "https://api.openai.com/v1"); model is the chat model name.
func NewHTTPLLMClassifier(baseURL, apiKey, model string, timeout time.Duration) *HTTPLLMClassifier {
	return &HTTPLLMClassifier{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type llmOutput struct {
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// Classify sends the block's text and structural metadata to the LLM at
// temperature 0 and parses the strict JSON response. Returns (Result{},
// false, nil) for any malformed or out-of-contract response — the caller
// falls through to the conservative fallback, never propagating a raw
// parse error as a classification failure.
func (c *HTTPLLMClassifier) Classify(ctx context.Context, b block.Block, cctx Context) (Result, bool, error) {
	if c.apiKey == "" {
		return Result{}, false, nil
	}

	text := blockText(b)
	if len(text) > 1000 {
		text = text[:1000]
	}
	userPrompt := fmt.Sprintf(
		"Classify this section:\n\nBLOCK TYPE: %s\nCONTENT: %s\n\nSTRUCTURAL CONTEXT: previous=%s next=%s position=%d",
		b.Type, text, cctx.PreviousBlockType, cctx.NextBlockType, cctx.PositionInDocument,
	)

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
		MaxTokens:   500,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, false, fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Result{}, false, fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, false, fmt.Errorf("call llm: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Result{}, false, fmt.Errorf("llm returned status %d", resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Result{}, false, fmt.Errorf("decode llm response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return Result{}, false, nil
	}

	out, ok := parseLLMOutput(chatResp.Choices[0].Message.Content)
	if !ok {
		return Result{}, false, nil
	}
	return toResult(out, c.model), true, nil
}

func parseLLMOutput(content string) (llmOutput, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return llmOutput{}, false
	}
	var out llmOutput
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return llmOutput{}, false
	}
	class := strings.ToUpper(out.Classification)
	if class != "STATIC" && class != "DYNAMIC" {
		return llmOutput{}, false
	}
	out.Classification = class
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, true
}

func toResult(out llmOutput, model string) Result {
	sectionType := domain.SectionStatic
	if out.Classification == "DYNAMIC" {
		sectionType = domain.SectionDynamic
	}
	return Result{
		SectionType:   sectionType,
		Confidence:    out.Confidence,
		Method:        MethodLLM,
		Justification: "LLM-assisted: " + out.Reasoning,
		Metadata:      map[string]any{"llm_model": model},
	}
}
