package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChatCompletionEndpoints_Standard(t *testing.T) {
	endpoints := BuildChatCompletionEndpoints("https://api.openai.com/v1")
	assert.Equal(t, []string{"https://api.openai.com/v1/chat/completions"}, endpoints)
}

func TestBuildChatCompletionEndpoints_AzureOpenAI(t *testing.T) {
	endpoints := BuildChatCompletionEndpoints("https://my-resource.azure.com/openai/v1")
	assert.Equal(t, []string{"https://my-resource.azure.com/openai/v1/chat/completions"}, endpoints)
}

func TestBuildChatCompletionEndpoints_DeepseekAddsBothRoots(t *testing.T) {
	endpoints := BuildChatCompletionEndpoints("https://api.deepseek.com/v1")
	require.Len(t, endpoints, 2)
	assert.Contains(t, endpoints, "https://api.deepseek.com/v1/chat/completions")
	assert.Contains(t, endpoints, "https://api.deepseek.com/chat/completions")
}

func TestBuildChatCompletionEndpoints_EmptyBaseURL(t *testing.T) {
	assert.Nil(t, BuildChatCompletionEndpoints(""))
	assert.Nil(t, BuildChatCompletionEndpoints("   "))
}

func TestIsReasoningModel(t *testing.T) {
	assert.True(t, isReasoningModel("gpt-5-mini"))
	assert.True(t, isReasoningModel("o1-preview"))
	assert.True(t, isReasoningModel("o3-mini"))
	assert.False(t, isReasoningModel("gpt-4o"))
	assert.False(t, isReasoningModel("deepseek-chat"))
}

func TestBuildPayload_ReasoningModelOmitsTemperatureAddsEffort(t *testing.T) {
	payload := buildPayload("gpt-5-mini", "hello")
	_, hasTemp := payload["temperature"]
	assert.False(t, hasTemp)
	assert.Equal(t, maxResponseTokens, payload["max_completion_tokens"])
	assert.Equal(t, "low", payload["reasoning_effort"])
}

func TestBuildPayload_ClassicModelUsesMaxTokensAndTemperature(t *testing.T) {
	payload := buildPayload("gpt-3.5-turbo", "hello")
	assert.Equal(t, 0.7, payload["temperature"])
	assert.Equal(t, maxResponseTokens, payload["max_tokens"])
	_, hasCompletionTokens := payload["max_completion_tokens"]
	assert.False(t, hasCompletionTokens)
}

func TestParseDecisionJSON_DirectParse(t *testing.T) {
	d, err := parseDecisionJSON(`{"operation":"buy","symbol":"BTC","target_portion_of_balance":0.2,"reason":"momentum"}`)
	require.NoError(t, err)
	assert.Equal(t, "buy", d.Operation)
	assert.Equal(t, "BTC", d.Symbol)
	assert.Equal(t, 0.2, d.TargetPortion)
}

func TestParseDecisionJSON_StripsMarkdownFence(t *testing.T) {
	text := "Here is my decision:\n```json\n{\"operation\":\"hold\",\"symbol\":\"ETH\",\"target_portion_of_balance\":0.0,\"reason\":\"waiting\"}\n```"
	d, err := parseDecisionJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "hold", d.Operation)
}

func TestParseDecisionJSON_NormalizesSmartQuotesAndDashes(t *testing.T) {
	text := "{“operation”: “sell”, “symbol”: “SOL”, “target_portion_of_balance”: 0.1, “reason”: “risk‑off”}"
	d, err := parseDecisionJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "sell", d.Operation)
	assert.Equal(t, "SOL", d.Symbol)
}

func TestParseDecisionJSON_RegexFallbackOnUnparseableJSON(t *testing.T) {
	text := `some preamble "operation": "buy", "symbol": "DOGE", "target_portion_of_balance": 0.05 trailing garbage {{{`
	d, err := parseDecisionJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "buy", d.Operation)
	assert.Equal(t, "DOGE", d.Symbol)
	assert.Equal(t, 0.05, d.TargetPortion)
}

func TestParseDecisionJSON_FailsWhenNoFieldsRecoverable(t *testing.T) {
	_, err := parseDecisionJSON("not json at all and no fields either")
	assert.Error(t, err)
}

func TestIsPlaceholderCredential(t *testing.T) {
	assert.True(t, IsPlaceholderCredential(""))
	assert.True(t, IsPlaceholderCredential("default"))
	assert.True(t, IsPlaceholderCredential("default-key-please-update-in-settings"))
	assert.False(t, IsPlaceholderCredential("sk-real-key-123"))
}
