package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"horse.fit/pagetranslate/internal/db"
	"horse.fit/pagetranslate/internal/globaltime"
	"horse.fit/pagetranslate/internal/language"
	"horse.fit/pagetranslate/internal/translation"
)

const (
	originalLanguage  = "original"
	maxClientIDLength = 128
)

// PreferenceStore persists the target language chosen by each client.
// *db.Pool satisfies it.
type PreferenceStore interface {
	GetPreference(ctx context.Context, clientID string) (*db.PreferenceRecord, error)
	UpsertPreference(ctx context.Context, clientID, targetLanguage string, uiPrefs json.RawMessage) (*db.PreferenceRecord, error)
	DeletePreference(ctx context.Context, clientID string) (bool, error)
}

// MemoryPreferences is the PreferenceStore used when no database is configured.
type MemoryPreferences struct {
	mu   sync.Mutex
	rows map[string]db.PreferenceRecord
}

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{rows: map[string]db.PreferenceRecord{}}
}

func (m *MemoryPreferences) GetPreference(_ context.Context, clientID string) (*db.PreferenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[strings.TrimSpace(clientID)]
	if !ok {
		return nil, db.ErrNoRows
	}
	return &row, nil
}

func (m *MemoryPreferences) UpsertPreference(
	_ context.Context,
	clientID string,
	targetLanguage string,
	uiPrefs json.RawMessage,
) (*db.PreferenceRecord, error) {
	clientID = strings.TrimSpace(clientID)
	if len(uiPrefs) == 0 {
		uiPrefs = json.RawMessage(`{}`)
	}
	row := db.PreferenceRecord{
		ClientID:       clientID,
		TargetLanguage: targetLanguage,
		UIPrefs:        append(json.RawMessage(nil), uiPrefs...),
		UpdatedAt:      globaltime.UTC(),
	}

	m.mu.Lock()
	m.rows[clientID] = row
	m.mu.Unlock()
	return &row, nil
}

func (m *MemoryPreferences) DeletePreference(_ context.Context, clientID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clientID = strings.TrimSpace(clientID)
	if _, ok := m.rows[clientID]; !ok {
		return false, nil
	}
	delete(m.rows, clientID)
	return true, nil
}

type preferenceResponse struct {
	ClientID       string         `json:"client_id"`
	TargetLanguage string         `json:"target_language"`
	UIPrefs        map[string]any `json:"ui_prefs"`
	Stored         bool           `json:"stored"`
}

type preferenceRequest struct {
	TargetLanguage *string         `json:"target_language"`
	UIPrefs        json.RawMessage `json:"ui_prefs"`
}

func (s *Server) handleGetPreference(c echo.Context) error {
	clientID, ok := s.clientIDParam(c)
	if !ok {
		return failValidation(c, map[string]string{"client_id": "is required and must be at most 128 characters"})
	}

	row, err := s.prefs.GetPreference(c.Request().Context(), clientID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return success(c, map[string]any{
				"preference": preferenceResponse{
					ClientID:       clientID,
					TargetLanguage: s.defaultTarget,
					UIPrefs:        map[string]any{},
				},
			})
		}
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("query preference failed")
		return internalError(c, "Failed to load preference")
	}

	return success(c, map[string]any{
		"preference": buildPreferenceResponse(row),
	})
}

func (s *Server) handlePutPreference(c echo.Context) error {
	clientID, ok := s.clientIDParam(c)
	if !ok {
		return failValidation(c, map[string]string{"client_id": "is required and must be at most 128 characters"})
	}

	var req preferenceRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if req.TargetLanguage == nil {
		return failValidation(c, map[string]string{"target_language": "is required"})
	}

	target := normalizeViewerLanguage(*req.TargetLanguage)
	if !isSupportedViewerLanguage(target, s.viewerLanguageOptions()) {
		return failValidation(c, map[string]string{"target_language": "is not supported"})
	}

	uiPrefs := req.UIPrefs
	if trimmed := strings.TrimSpace(string(uiPrefs)); trimmed == "" || trimmed == "null" {
		uiPrefs = json.RawMessage(`{}`)
	} else {
		var asMap map[string]any
		if err := json.Unmarshal(uiPrefs, &asMap); err != nil {
			return failValidation(c, map[string]string{"ui_prefs": "must be a JSON object"})
		}
	}

	row, err := s.prefs.UpsertPreference(c.Request().Context(), clientID, target, uiPrefs)
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("update preference failed")
		return internalError(c, "Failed to update preference")
	}

	return success(c, map[string]any{
		"preference": buildPreferenceResponse(row),
	})
}

func (s *Server) handleDeletePreference(c echo.Context) error {
	clientID, ok := s.clientIDParam(c)
	if !ok {
		return failValidation(c, map[string]string{"client_id": "is required and must be at most 128 characters"})
	}

	deleted, err := s.prefs.DeletePreference(c.Request().Context(), clientID)
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("delete preference failed")
		return internalError(c, "Failed to delete preference")
	}
	if !deleted {
		return failNotFound(c, "Preference not found")
	}
	return success(c, map[string]any{
		"client_id": clientID,
		"deleted":   true,
	})
}

func (s *Server) handleLanguages(c echo.Context) error {
	return success(c, map[string]any{
		"items": s.viewerLanguageOptions(),
	})
}

// preferredTarget returns the stored target of clientID, or the server default.
func (s *Server) preferredTarget(ctx context.Context, clientID string) string {
	if clientID == "" {
		return s.defaultTarget
	}
	row, err := s.prefs.GetPreference(ctx, clientID)
	if err != nil {
		if !errors.Is(err, db.ErrNoRows) {
			s.logger.Warn().Err(err).Str("client_id", clientID).Msg("preference lookup failed; using default target")
		}
		return s.defaultTarget
	}
	return normalizeViewerLanguage(row.TargetLanguage)
}

func (s *Server) clientIDParam(c echo.Context) (string, bool) {
	return normalizeClientID(c.Param("client_id"))
}

func normalizeClientID(raw string) (string, bool) {
	clientID := strings.TrimSpace(raw)
	if clientID == "" || len(clientID) > maxClientIDLength {
		return "", false
	}
	return clientID, true
}

func (s *Server) viewerLanguageOptions() []translation.LanguageOption {
	return translation.ViewerLanguageOptions(s.registry)
}

func buildPreferenceResponse(row *db.PreferenceRecord) preferenceResponse {
	return preferenceResponse{
		ClientID:       row.ClientID,
		TargetLanguage: normalizeViewerLanguage(row.TargetLanguage),
		UIPrefs:        decodeUIPrefs(row.UIPrefs),
		Stored:         true,
	}
}

func normalizeViewerLanguage(raw string) string {
	lang := language.NormalizeTag(raw)
	if lang == originalLanguage {
		return originalLanguage
	}
	return language.NormalizeCode(lang)
}

func isSupportedViewerLanguage(lang string, options []translation.LanguageOption) bool {
	if lang == "" {
		return false
	}
	for _, option := range options {
		if normalizeViewerLanguage(option.Code) == lang {
			return true
		}
	}
	return false
}

func decodeUIPrefs(raw json.RawMessage) map[string]any {
	uiPrefs := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &uiPrefs)
	}
	if uiPrefs == nil {
		uiPrefs = map[string]any{}
	}
	return uiPrefs
}
