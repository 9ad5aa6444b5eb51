package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// rawDecision is the shape the oracle is asked to reply with (spec.md's
// OUTPUT_FORMAT_JSON). TradingStrategy is optional — older prompts/models
// may omit it.
type rawDecision struct {
	Operation       string  `json:"operation"`
	Symbol          string  `json:"symbol"`
	TargetPortion   float64 `json:"target_portion_of_balance"`
	Reason          string  `json:"reason"`
	TradingStrategy string  `json:"trading_strategy"`
}

var (
	fieldOperation = regexp.MustCompile(`(?i)"operation"\s*:\s*"([^"]+)"`)
	fieldSymbol    = regexp.MustCompile(`(?i)"symbol"\s*:\s*"([^"]+)"`)
	fieldPortion   = regexp.MustCompile(`"target_portion_of_balance"\s*:\s*([0-9.]+)`)
	fieldReason    = regexp.MustCompile(`"reason"\s*:\s*"([^"]+)"`)
)

// stripCodeFence removes a wrapping ```json ... ``` or ``` ... ``` block,
// leaving the text unchanged if no fence is present.
func stripCodeFence(text string) string {
	if idx := strings.Index(text, "```json"); idx != -1 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(text, "```"); idx != -1 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return strings.TrimSpace(text)
}

// normalizeForJSON repairs the handful of non-JSON characters models
// sometimes emit: smart quotes, em/en dashes, and embedded control
// whitespace that breaks strict JSON parsing.
func normalizeForJSON(text string) string {
	replacer := strings.NewReplacer(
		"\n", " ", "\r", " ", "\t", " ",
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
		"–", "-", "—", "-", "‑", "-",
	)
	return replacer.Replace(text)
}

// parseDecisionJSON applies the three-stage repair pipeline: a direct parse
// of the fence-stripped content, then a parse of the punctuation-normalized
// content, then a best-effort regex field extraction. Returns an error only
// when none of the three stages can produce a usable decision.
func parseDecisionJSON(text string) (*rawDecision, error) {
	cleaned := stripCodeFence(text)

	var decision rawDecision
	if err := json.Unmarshal([]byte(cleaned), &decision); err == nil {
		return &decision, nil
	}

	normalized := normalizeForJSON(cleaned)
	if err := json.Unmarshal([]byte(normalized), &decision); err == nil {
		return &decision, nil
	}

	return extractByRegex(text)
}

func extractByRegex(text string) (*rawDecision, error) {
	opMatch := fieldOperation.FindStringSubmatch(text)
	symbolMatch := fieldSymbol.FindStringSubmatch(text)
	portionMatch := fieldPortion.FindStringSubmatch(text)
	if opMatch == nil || symbolMatch == nil || portionMatch == nil {
		return nil, fmt.Errorf("unable to extract required fields from oracle response")
	}

	portion, err := strconv.ParseFloat(portionMatch[1], 64)
	if err != nil {
		return nil, fmt.Errorf("unparseable target_portion_of_balance: %w", err)
	}

	reason := "oracle response parsing issue"
	if m := fieldReason.FindStringSubmatch(text); m != nil {
		reason = m[1]
	}

	return &rawDecision{
		Operation:     opMatch[1],
		Symbol:        symbolMatch[1],
		TargetPortion: portion,
		Reason:        reason,
	}, nil
}

// extractText normalizes an OpenAI/Anthropic-style message "content" field
// (a plain string, or a list of {"type","text"} / {"type","content"} parts)
// into plain text.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var asList []map[string]interface{}
	if err := json.Unmarshal(raw, &asList); err == nil {
		var parts []string
		for _, item := range asList {
			if text, ok := item["text"].(string); ok {
				parts = append(parts, text)
				continue
			}
			if content, ok := item["content"].(string); ok {
				parts = append(parts, content)
			}
		}
		return strings.Join(parts, "\n")
	}

	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for _, key := range []string{"text", "content", "value"} {
			if v, ok := asMap[key].(string); ok {
				return v
			}
		}
	}

	return ""
}
