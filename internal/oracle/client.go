package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aitrader/engine/internal/domain"
)

// Config tunes the retry/backoff/timeout behavior, sourced from
// internal/config (ORACLE_REQUEST_TIMEOUT_SECONDS, ORACLE_MAX_RETRIES,
// ORACLE_BACKOFF_BASE_SECONDS).
type Config struct {
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
}

// Client calls an OpenAI-compatible chat-completions endpoint and extracts
// a trading decision from the reply. Grounded on
// original_source/backend/services/ai_decision_service.py's
// call_ai_for_decision.
type Client struct {
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
	log         zerolog.Logger
}

// New constructs a Client.
func New(cfg Config, log zerolog.Logger) *Client {
	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		maxRetries:  retries,
		backoffBase: cfg.BackoffBase,
		log:         log.With().Str("component", "oracle_client").Logger(),
	}
}

type chatCompletionResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content   json.RawMessage `json:"content"`
			Reasoning json.RawMessage `json:"reasoning"`
		} `json:"message"`
	} `json:"choices"`
}

// Decide sends prompt to account's oracle (baseURL/model/apiKey) and returns
// the parsed domain.Decision; checking its operation, symbol and portion is
// left to the caller (internal/decision). Returns an error if every endpoint/attempt
// fails or the reply can never be turned into a decision — the caller
// treats that as "no decision this cycle", not a fatal condition.
func (c *Client) Decide(ctx context.Context, baseURL, apiKey, model, prompt string) (*domain.Decision, error) {
	endpoints := BuildChatCompletionEndpoints(baseURL)
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no usable chat-completion endpoint for base URL %q", baseURL)
	}

	payload := buildPayload(model, prompt)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal oracle request: %w", err)
	}

	var lastErr error
	for _, endpoint := range endpoints {
		resp, err := c.postWithRetry(ctx, endpoint, apiKey, body)
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("oracle endpoint failed, trying next")
			continue
		}
		return c.toDecision(resp, prompt)
	}

	return nil, fmt.Errorf("all oracle endpoints failed: %w", lastErr)
}

// postWithRetry POSTs body to endpoint, retrying on 429 and transient
// network errors with exponential backoff plus jitter, matching the
// original's per-endpoint retry loop.
func (c *Client) postWithRetry(ctx context.Context, endpoint, apiKey string, body []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries-1 {
				c.sleepBackoff(ctx, attempt)
				continue
			}
			return nil, lastErr
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited: %s", string(respBody))
			if attempt < c.maxRetries-1 {
				c.sleepBackoff(ctx, attempt)
				continue
			}
			return nil, lastErr
		}

		return nil, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil, lastErr
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) {
	wait := c.backoffBase * time.Duration(1<<uint(attempt))
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	select {
	case <-ctx.Done():
	case <-time.After(wait + jitter):
	}
}

func (c *Client) toDecision(body []byte, prompt string) (*domain.Decision, error) {
	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal oracle response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("oracle response has no choices")
	}

	choice := parsed.Choices[0]
	reasoningText := extractText(choice.Message.Reasoning)

	var rawContent json.RawMessage = choice.Message.Content
	if choice.FinishReason == "length" && len(choice.Message.Reasoning) > 0 {
		rawContent = choice.Message.Reasoning
	}

	textContent := extractText(rawContent)
	if textContent == "" {
		textContent = reasoningText
	}
	if textContent == "" {
		return nil, fmt.Errorf("empty content in oracle response")
	}

	rawText := textContent
	decision, err := parseDecisionJSON(textContent)
	if err != nil {
		return nil, fmt.Errorf("parse oracle decision: %w", err)
	}

	reasoningSnapshot := decision.TradingStrategy
	if reasoningSnapshot == "" {
		reasoningSnapshot = reasoningText
	}

	return &domain.Decision{
		Operation:           domain.Operation(strings.ToLower(decision.Operation)),
		Symbol:              strings.ToUpper(decision.Symbol),
		TargetPortion:       decision.TargetPortion,
		Reason:              decision.Reason,
		TradingStrategy:     decision.TradingStrategy,
		PromptSnapshot:      prompt,
		ReasoningSnapshot:   reasoningSnapshot,
		RawDecisionSnapshot: rawText,
	}, nil
}
