package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"loan-intake-be/internal/gateway"
	"loan-intake-be/internal/pkg/logger"
	"loan-intake-be/pkg/llm"
)

// LLMExtractor resolves field updates with a pure model call: no state
// machine knowledge, just "what did the user tell us". Falls back to the
// rule-based extractor when the model output cannot be parsed.
type LLMExtractor struct {
	provider llm.LLMProvider
	fallback *RulesExtractor
	logger   logger.ILogger
}

func NewLLMExtractor(provider llm.LLMProvider, log logger.ILogger) *LLMExtractor {
	return &LLMExtractor{
		provider: provider,
		fallback: NewRulesExtractor(),
		logger:   log,
	}
}

func (e *LLMExtractor) Extract(ctx context.Context, userTurn string, current map[string]interface{}) (*Extraction, error) {
	prompt := e.buildPrompt(userTurn, current)

	response, err := e.provider.Generate(ctx, prompt, llm.WithTemperature(0.0), llm.WithMaxTokens(512))
	if err != nil {
		e.logger.Warn("LLMExtractor", "Model call failed, using rules fallback", map[string]interface{}{"error": err.Error()})
		return e.fallback.Extract(ctx, userTurn, current)
	}

	extraction, err := parseExtraction(response)
	if err != nil {
		e.logger.Warn("LLMExtractor", "Model output unparseable, using rules fallback", map[string]interface{}{"error": err.Error()})
		return e.fallback.Extract(ctx, userTurn, current)
	}

	// The readiness hint is only trustworthy when every required field is
	// actually present; a model may claim readiness too eagerly.
	if extraction.Ready && len(missingAfter(current, extraction.Updates)) > 0 {
		extraction.Ready = false
	}

	return extraction, nil
}

func (e *LLMExtractor) buildPrompt(userTurn string, current map[string]interface{}) string {
	var b strings.Builder

	b.WriteString("<system>\n")
	b.WriteString("You extract loan application fields from a user's message.\n")
	b.WriteString("You do NOT make lending decisions. You only extract data.\n")
	b.WriteString("</system>\n\n")

	b.WriteString("<known_fields>\n")
	for _, field := range gateway.RequiredFields() {
		if v, ok := current[field]; ok && v != nil && v != "" {
			b.WriteString(fmt.Sprintf("%s = %v\n", field, v))
		} else {
			b.WriteString(field + " = (missing)\n")
		}
	}
	b.WriteString("</known_fields>\n\n")

	b.WriteString("<user_message>\n" + userTurn + "\n</user_message>\n\n")

	b.WriteString("Respond with ONLY a JSON object:\n")
	b.WriteString(`{"updates": {"field_name": value, ...}, "ready": bool, "reply": "one sentence to the user"}` + "\n")
	b.WriteString("updates may be empty. ready is true only when every field is known.\n")

	return b.String()
}

func parseExtraction(response string) (*Extraction, error) {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var extraction Extraction
	if err := json.Unmarshal([]byte(jsonContent), &extraction); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}
	if extraction.Updates == nil {
		extraction.Updates = make(map[string]interface{})
	}
	return &extraction, nil
}

// extractJSON pulls the first balanced JSON object out of a model response,
// tolerating markdown code fences around it.
func extractJSON(response string) string {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(cleaned); i++ {
		switch cleaned[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return cleaned[start : i+1]
			}
		}
	}
	return ""
}
