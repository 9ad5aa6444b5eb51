package decision

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// renderTemplate substitutes `{key}` placeholders from context, rendering
// any key absent from context as "N/A" rather than failing — the Go
// equivalent of ai_decision_service.py's SafeDict(dict) whose __missing__
// returns "N/A" so a template with a typo or an unbound key never breaks
// the decision cycle.
func renderTemplate(template string, context map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := context[key]; ok {
			return value
		}
		return "N/A"
	})
}
