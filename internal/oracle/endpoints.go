// Package oracle is the LLM client for the Decision Pipeline (C5): it turns
// a rendered prompt into a chat-completion HTTP call against an
// OpenAI-compatible endpoint, with multi-endpoint fallback, retry/backoff,
// and forgiving JSON extraction from the reply. Grounded on
// original_source/backend/services/ai_decision_service.py.
package oracle

import "strings"

// BuildChatCompletionEndpoints returns the ordered list of endpoints worth
// trying for baseURL, matching the account's configured provider. Handles
// Azure OpenAI's already-complete "/openai/v1" path and Deepseek's
// dual root/"/v1" routing, in that priority order, deduplicated.
func BuildChatCompletionEndpoints(baseURL string) []string {
	normalized := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if normalized == "" {
		return nil
	}

	lower := strings.ToLower(normalized)

	if strings.HasSuffix(lower, "/openai/v1") {
		return []string{normalized + "/chat/completions"}
	}

	endpoints := []string{normalized + "/chat/completions"}

	if strings.Contains(lower, "deepseek.com") {
		if strings.HasSuffix(lower, "/v1") {
			withoutV1 := normalized[:len(normalized)-len("/v1")]
			endpoints = append(endpoints, withoutV1+"/chat/completions")
		} else {
			endpoints = append(endpoints, normalized+"/v1/chat/completions")
		}
	}

	return dedupe(endpoints)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
