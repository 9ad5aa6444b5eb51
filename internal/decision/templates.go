package decision

import (
	"database/sql"
	"fmt"

	"github.com/aitrader/engine/internal/domain"
)

// DefaultPromptTemplate and ProPromptTemplate are the two factory prompt
// templates seeded on first run, ported verbatim from
// original_source/backend/config/prompt_templates.py's
// DEFAULT_PROMPT_TEMPLATE/PRO_PROMPT_TEMPLATE.
const DefaultPromptTemplate = `You are a cryptocurrency trading AI. Use the data below to determine your next action.

=== PORTFOLIO DATA ===
{account_state}

=== CURRENT MARKET PRICES (USDT) ===
{prices_json}

=== LATEST CRYPTO NEWS SNIPPET ===
{news_section}

Follow these rules:
- operation must be "buy", "sell", "hold", or "close"
- For "buy": target_portion_of_balance is the % of available cash to deploy (0.0-1.0). Remember to account for trading fees (~0.1% commission) - you need slightly more cash than the purchase amount.
- For "sell" or "close": target_portion_of_balance is the % of the current position to exit (0.0-1.0). Remember you will receive slightly less due to trading fees (~0.1% commission).
- For "hold": keep target_portion_of_balance at 0
- Never invent trades for symbols that are not in the market data
- Keep reasoning concise and focused on measurable signals
- Always consider trading fees when calculating trade sizes - see Trading Fees in Account State

Respond with ONLY a JSON object using this schema:
{output_format}
`

const ProPromptTemplate = `=== SESSION CONTEXT ===
{session_context}

=== MARKET SNAPSHOT ===
{market_snapshot}

=== ACCOUNT STATE ===
{account_state}

=== DECISION TASK ===
{decision_task}

=== OUTPUT FORMAT ===
{output_format}
`

// TemplateWriter is the persistence surface needed to seed factory
// templates, satisfied structurally by
// *repository.PromptTemplateRepository.
type TemplateWriter interface {
	GetByName(name string) (*domain.PromptTemplate, error)
	Upsert(t *domain.PromptTemplate) error
}

// SeedDefaults ensures the "default" and "pro" factory templates exist,
// the Go form of prompt_initializer.py's seed_prompt_templates: inserted
// once, left untouched on later runs so an operator's edits to the
// current template text are never clobbered by a restart.
func SeedDefaults(w TemplateWriter) error {
	seeds := []struct {
		name string
		text string
	}{
		{"default", DefaultPromptTemplate},
		{"pro", ProPromptTemplate},
	}
	for _, seed := range seeds {
		if _, err := w.GetByName(seed.name); err == nil {
			continue
		} else if err != sql.ErrNoRows {
			return fmt.Errorf("check prompt template %q: %w", seed.name, err)
		}
		if err := w.Upsert(&domain.PromptTemplate{Name: seed.name, Template: seed.text, SystemTemplate: seed.text}); err != nil {
			return fmt.Errorf("seed prompt template %q: %w", seed.name, err)
		}
	}
	return nil
}
