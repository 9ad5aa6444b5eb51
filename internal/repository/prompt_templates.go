package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aitrader/engine/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultPromptTemplateName is resolved for any account without a bound
// template, per spec.md §4.5.
const DefaultPromptTemplateName = "default"

// PromptTemplateRepository persists prompt templates and account bindings.
type PromptTemplateRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPromptTemplateRepository constructs a PromptTemplateRepository.
func NewPromptTemplateRepository(db *sql.DB, log zerolog.Logger) *PromptTemplateRepository {
	return &PromptTemplateRepository{db: db, log: log.With().Str("repository", "prompt_templates").Logger()}
}

// GetBoundTemplate resolves the template bound to an account, falling back
// to "default" if unbound or the binding points at a missing row.
func (r *PromptTemplateRepository) GetBoundTemplate(accountID int64) (*domain.PromptTemplate, error) {
	var name string
	err := r.db.QueryRow(`SELECT template_name FROM account_prompt_bindings WHERE account_id = ?`, accountID).Scan(&name)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("lookup prompt binding: %w", err)
		}
		name = DefaultPromptTemplateName
	}

	tmpl, err := r.GetByName(name)
	if err != nil {
		if err == sql.ErrNoRows && name != DefaultPromptTemplateName {
			return r.GetByName(DefaultPromptTemplateName)
		}
		return nil, err
	}
	return tmpl, nil
}

// GetByName fetches a template by its stable key.
func (r *PromptTemplateRepository) GetByName(name string) (*domain.PromptTemplate, error) {
	var t domain.PromptTemplate
	var updatedAt string
	err := r.db.QueryRow(`SELECT name, template, system_template, updated_at FROM prompt_templates WHERE name = ?`, name).
		Scan(&t.Name, &t.Template, &t.SystemTemplate, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt = parseTimestamp(updatedAt)
	return &t, nil
}

// Upsert inserts or replaces a template's current text. SystemTemplate (the
// factory default text) is written only when the row is first inserted; an
// existing row keeps its stored system text.
func (r *PromptTemplateRepository) Upsert(t *domain.PromptTemplate) error {
	_, err := r.db.Exec(`
		INSERT INTO prompt_templates (name, template, system_template, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET template = excluded.template, updated_at = excluded.updated_at`,
		t.Name, t.Template, t.SystemTemplate, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert prompt template %q: %w", t.Name, err)
	}
	return nil
}

// Restore resets a template's current text back to its system text.
func (r *PromptTemplateRepository) Restore(name string) error {
	_, err := r.db.Exec(`UPDATE prompt_templates SET template = system_template, updated_at = ? WHERE name = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), name)
	if err != nil {
		return fmt.Errorf("restore prompt template %q: %w", name, err)
	}
	return nil
}
