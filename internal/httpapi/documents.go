package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"horse.fit/pagetranslate/internal/dom"
	"horse.fit/pagetranslate/internal/engine"
	"horse.fit/pagetranslate/internal/language"
	"horse.fit/pagetranslate/internal/translation"
)

type createDocumentRequest struct {
	HTML     string `json:"html"`
	Language string `json:"language"`
	ClientID string `json:"client_id"`
	Provider string `json:"provider"`
}

type translateRequest struct {
	TargetLanguage string `json:"target_language"`
	ClientID       string `json:"client_id"`
	Wait           bool   `json:"wait"`
}

type documentResponse struct {
	DocumentID     string       `json:"document_id"`
	NativeLanguage string       `json:"native_language"`
	Eligible       int          `json:"eligible"`
	Provider       string       `json:"provider,omitempty"`
	State          engine.State `json:"state"`
}

func (s *Server) handleCreateDocument(c echo.Context) error {
	var req createDocumentRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if strings.TrimSpace(req.HTML) == "" {
		return failValidation(c, map[string]string{"html": "is required"})
	}
	if strings.TrimSpace(req.Language) != "" && language.NormalizeTag(req.Language) == "" {
		return failValidation(c, map[string]string{"language": "is not a valid language tag"})
	}
	clientID := ""
	if strings.TrimSpace(req.ClientID) != "" {
		normalized, ok := normalizeClientID(req.ClientID)
		if !ok {
			return failValidation(c, map[string]string{"client_id": "must be at most 128 characters"})
		}
		clientID = normalized
	}

	provider, err := s.registry.Provider(req.Provider)
	if err != nil {
		return failValidation(c, map[string]string{"provider": err.Error()})
	}

	parsed, err := dom.ParseString(req.HTML)
	if err != nil {
		return failValidation(c, map[string]string{"html": err.Error()})
	}
	parsed.SetStampIDs(s.stampIDs)

	id := uuid.NewString()
	target := s.preferredTarget(c.Request().Context(), clientID)
	if target == originalLanguage {
		target = ""
	}
	ctrl, err := engine.NewController(parsed, provider, engine.Options{
		Rules:          s.rules,
		NativeLanguage: req.Language,
		TargetLanguage: target,
		BatchSize:      s.batchSize,
		Logger:         s.logger.With().Str("document_id", id).Logger(),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("create controller failed")
		return internalError(c, "Failed to load document")
	}

	elements, err := ctrl.Eligible(target)
	if err != nil {
		s.logger.Error().Err(err).Str("document_id", id).Msg("scan document failed")
		return internalError(c, "Failed to scan document")
	}

	doc, err := s.docs.add(id, ctrl, clientID)
	if err != nil {
		if errors.Is(err, errStoreFull) {
			return fail(c, http.StatusServiceUnavailable, "Too many documents are being translated", nil)
		}
		return internalError(c, "Failed to store document")
	}

	s.logger.Info().
		Str("document_id", doc.id).
		Str("native_language", ctrl.NativeLanguage()).
		Str("provider", provider.Name()).
		Int("eligible", len(elements)).
		Msg("document created")

	return successWithStatus(c, http.StatusCreated, documentResponse{
		DocumentID:     doc.id,
		NativeLanguage: ctrl.NativeLanguage(),
		Eligible:       len(elements),
		Provider:       provider.Name(),
		State:          ctrl.State(),
	})
}

func (s *Server) handleGetDocument(c echo.Context) error {
	doc, err := s.docs.get(c.Param("id"))
	if err != nil {
		return failNotFound(c, "Document not found")
	}

	var buf bytes.Buffer
	if err := doc.ctrl.Render(&buf); err != nil {
		s.logger.Error().Err(err).Str("document_id", doc.id).Msg("render document failed")
		return internalError(c, "Failed to render document")
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (s *Server) handleDocumentState(c echo.Context) error {
	doc, err := s.docs.get(c.Param("id"))
	if err != nil {
		return failNotFound(c, "Document not found")
	}
	return success(c, s.documentState(doc))
}

func (s *Server) handleTranslateDocument(c echo.Context) error {
	doc, err := s.docs.get(c.Param("id"))
	if err != nil {
		return failNotFound(c, "Document not found")
	}

	var req translateRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	target := normalizeViewerLanguage(req.TargetLanguage)
	if strings.TrimSpace(req.TargetLanguage) == "" {
		clientID := doc.clientID
		if strings.TrimSpace(req.ClientID) != "" {
			clientID, _ = normalizeClientID(req.ClientID)
		}
		target = s.preferredTarget(c.Request().Context(), clientID)
	}
	if target == "" {
		return failValidation(c, map[string]string{"target_language": "is not a valid language tag"})
	}

	if !doc.running.TryAcquire(1) {
		return failConflict(c, "Translation already in progress", s.documentState(doc))
	}

	if target == originalLanguage {
		defer doc.running.Release(1)
		if err := doc.ctrl.Restore(c.Request().Context()); err != nil {
			return s.sessionFailure(c, doc, err)
		}
		return success(c, s.documentState(doc))
	}

	if req.Wait {
		defer doc.running.Release(1)
		if err := doc.ctrl.Translate(c.Request().Context(), target); err != nil {
			return s.sessionFailure(c, doc, err)
		}
		return success(c, s.documentState(doc))
	}

	go func() {
		defer doc.running.Release(1)
		if err := doc.ctrl.Translate(s.baseCtx, target); err != nil && !errors.Is(err, engine.ErrNothingToTranslate) {
			s.logger.Error().Err(err).Str("document_id", doc.id).Str("target", target).Msg("background translation failed")
		}
	}()

	return successWithStatus(c, http.StatusAccepted, map[string]any{
		"document_id":     doc.id,
		"target_language": target,
		"state":           doc.ctrl.State(),
	})
}

func (s *Server) handleRestoreDocument(c echo.Context) error {
	doc, err := s.docs.get(c.Param("id"))
	if err != nil {
		return failNotFound(c, "Document not found")
	}
	if !doc.running.TryAcquire(1) {
		return failConflict(c, "Translation already in progress", s.documentState(doc))
	}
	defer doc.running.Release(1)

	if err := doc.ctrl.Restore(c.Request().Context()); err != nil {
		return s.sessionFailure(c, doc, err)
	}
	return success(c, s.documentState(doc))
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	id := c.Param("id")
	if !s.docs.remove(id) {
		return failNotFound(c, "Document not found")
	}
	s.logger.Info().Str("document_id", id).Msg("document deleted")
	return success(c, map[string]any{
		"document_id": id,
		"deleted":     true,
	})
}

// sessionFailure maps controller errors onto JSend envelopes.
func (s *Server) sessionFailure(c echo.Context, doc *document, err error) error {
	var batchErr *translation.BatchError
	switch {
	case errors.Is(err, engine.ErrNothingToTranslate):
		return success(c, s.documentState(doc))
	case errors.Is(err, engine.ErrBusy):
		return failConflict(c, "Translation already in progress", s.documentState(doc))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fail(c, http.StatusRequestTimeout, "Translation cancelled", s.documentState(doc))
	case errors.As(err, &batchErr):
		s.logger.Warn().Err(err).Str("document_id", doc.id).Msg("translation stopped")
		return fail(c, http.StatusBadGateway, "Translation failed", s.documentState(doc))
	default:
		s.logger.Error().Err(err).Str("document_id", doc.id).Msg("translation session failed")
		return internalError(c, "Translation failed")
	}
}

func (s *Server) documentState(doc *document) map[string]any {
	return map[string]any{
		"document_id":     doc.id,
		"native_language": doc.ctrl.NativeLanguage(),
		"created_at":      doc.created,
		"state":           doc.ctrl.State(),
	}
}
