package oracle

import "strings"

var reasoningModelMarkers = []string{"gpt-5", "o1-preview", "o1-mini", "o1-", "o3-", "o4-"}

// isReasoningModel reports whether model is one of the families that
// rejects a custom "temperature" and wants "max_completion_tokens" instead
// of "max_tokens".
func isReasoningModel(model string) bool {
	lower := strings.ToLower(model)
	for _, marker := range reasoningModelMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// usesMaxCompletionTokens reports whether model expects the newer
// "max_completion_tokens" field (every reasoning model, plus gpt-4o).
func usesMaxCompletionTokens(model string) bool {
	if isReasoningModel(model) {
		return true
	}
	return strings.Contains(strings.ToLower(model), "gpt-4o")
}

const maxResponseTokens = 3000

// buildPayload assembles the OpenAI-compatible chat-completion request body
// for model, selecting its parameter dialect.
func buildPayload(model, prompt string) map[string]interface{} {
	payload := map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	if !isReasoningModel(model) {
		payload["temperature"] = 0.7
	}

	if usesMaxCompletionTokens(model) {
		payload["max_completion_tokens"] = maxResponseTokens
	} else {
		payload["max_tokens"] = maxResponseTokens
	}

	if strings.Contains(strings.ToLower(model), "gpt-5") {
		payload["reasoning_effort"] = "low"
	}

	return payload
}
