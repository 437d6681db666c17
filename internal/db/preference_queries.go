package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"horse.fit/pagetranslate/internal/language"
)

const defaultTargetLanguage = "en"

// PreferenceRecord is the stored target language of one client.
type PreferenceRecord struct {
	ClientID       string          `json:"client_id"`
	TargetLanguage string          `json:"target_language"`
	UIPrefs        json.RawMessage `json:"ui_prefs"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (p *Pool) GetPreference(ctx context.Context, clientID string) (*PreferenceRecord, error) {
	const q = `
SELECT
	client_id,
	target_language,
	ui_prefs,
	updated_at
FROM pagetranslate.client_preferences
WHERE client_id = $1
LIMIT 1
`

	var (
		row     PreferenceRecord
		uiPrefs []byte
	)
	if err := p.QueryRow(ctx, q, strings.TrimSpace(clientID)).Scan(
		&row.ClientID,
		&row.TargetLanguage,
		&uiPrefs,
		&row.UpdatedAt,
	); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query client preference: %w", err)
	}

	row.TargetLanguage = NormalizeTargetLanguage(row.TargetLanguage)
	row.UIPrefs = normalizeUIPrefs(uiPrefs)
	return &row, nil
}

func (p *Pool) UpsertPreference(
	ctx context.Context,
	clientID string,
	targetLanguage string,
	uiPrefs json.RawMessage,
) (*PreferenceRecord, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("client id is required")
	}

	const q = `
INSERT INTO pagetranslate.client_preferences (
	client_id,
	target_language,
	ui_prefs,
	updated_at
)
VALUES ($1, $2, $3::jsonb, now())
ON CONFLICT (client_id)
DO UPDATE SET
	target_language = EXCLUDED.target_language,
	ui_prefs = EXCLUDED.ui_prefs,
	updated_at = now()
RETURNING
	client_id,
	target_language,
	ui_prefs,
	updated_at
`

	var (
		row      PreferenceRecord
		storedUI []byte
	)
	if err := p.QueryRow(
		ctx,
		q,
		clientID,
		NormalizeTargetLanguage(targetLanguage),
		string(normalizeUIPrefs(uiPrefs)),
	).Scan(
		&row.ClientID,
		&row.TargetLanguage,
		&storedUI,
		&row.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert client preference: %w", err)
	}

	row.UIPrefs = normalizeUIPrefs(storedUI)
	return &row, nil
}

func (p *Pool) DeletePreference(ctx context.Context, clientID string) (bool, error) {
	const q = `DELETE FROM pagetranslate.client_preferences WHERE client_id = $1`

	affected, err := p.Exec(ctx, q, strings.TrimSpace(clientID))
	if err != nil {
		return false, fmt.Errorf("delete client preference: %w", err)
	}
	return affected > 0, nil
}

// NormalizeTargetLanguage returns a canonical tag, defaulting to English.
func NormalizeTargetLanguage(raw string) string {
	lang := language.NormalizeTag(raw)
	if lang == "" {
		return defaultTargetLanguage
	}
	return lang
}

func normalizeUIPrefs(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}
