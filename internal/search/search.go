// Package search turns a natural-language question into a structured search
// spec via the chat model's JSON output.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"webrag/internal/domain"
	"webrag/internal/llm"
)

// Spec is the structured query produced by query analysis: the text to
// search for and the document section to restrict retrieval to.
type Spec struct {
	Query   string
	Section domain.Section
}

// SchemaError reports model output that does not validate against the spec
// schema. There is no fallback path; the invocation aborts.
type SchemaError struct {
	Reason string
	Raw    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("search spec schema violation: %s", e.Reason)
}

const analyzePrompt = `Analyze the user question and produce a search request for a document index.

Respond with a JSON object with exactly these fields:
  "query": the text to run a similarity search with
  "section": which part of the document to search, one of "beginning", "middle" or "end"

Question: %s`

// Analyze invokes the chat model in structured-output mode and strictly
// parses the result. Validation failure returns a *SchemaError.
func Analyze(ctx context.Context, model llm.ChatModel, question string) (*Spec, error) {
	raw, err := model.ChatStructured(ctx, fmt.Sprintf(analyzePrompt, question), llm.WithTemperature(0.1))
	if err != nil {
		return nil, fmt.Errorf("query analysis: %w", err)
	}
	return Parse(raw)
}

// Parse validates raw model output against the spec schema.
func Parse(raw string) (*Spec, error) {
	cleaned := stripFences(raw)

	var out struct {
		Query   string `json:"query"`
		Section string `json:"section"`
	}
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: raw}
	}
	if strings.TrimSpace(out.Query) == "" {
		return nil, &SchemaError{Reason: "missing query field", Raw: raw}
	}
	section, err := domain.ParseSection(out.Section)
	if err != nil {
		return nil, &SchemaError{Reason: err.Error(), Raw: raw}
	}
	return &Spec{Query: out.Query, Section: section}, nil
}

// stripFences removes a markdown code fence some models wrap JSON output in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
