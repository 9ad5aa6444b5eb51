package oracle

// placeholderAPIKeys are the demo/unset values an account's oracle API key
// might still carry; any account using one is skipped entirely rather than
// charged against its oracle quota. Ported from _is_default_api_key /
// DEMO_API_KEYS.
var placeholderAPIKeys = map[string]bool{
	"default-key-please-update-in-settings": true,
	"default":                               true,
	"":                                       true,
}

// IsPlaceholderCredential reports whether apiKey is a known placeholder
// rather than a real credential.
func IsPlaceholderCredential(apiKey string) bool {
	return placeholderAPIKeys[apiKey]
}
