package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/pagetranslate/internal/dom"
	"horse.fit/pagetranslate/internal/engine"
	"horse.fit/pagetranslate/internal/globaltime"
	"horse.fit/pagetranslate/internal/translation"
)

const testPage = `<html lang="en"><body>
<h1>Hello world</h1>
<p>Read the guide today</p>
<div class="notranslate"><p>Brand name</p></div>
</body></html>`

type stubProvider struct {
	mu      sync.Mutex
	targets []string
	failOn  int
	started chan struct{}
	release chan struct{}
}

func (p *stubProvider) Name() string                 { return "stub" }
func (p *stubProvider) SupportedLanguages() []string { return []string{"fr"} }

func (p *stubProvider) TranslateBatch(ctx context.Context, req translation.BatchRequest) ([]translation.TranslatedText, error) {
	p.mu.Lock()
	p.targets = append(p.targets, req.TargetLang)
	call := len(p.targets)
	p.mu.Unlock()

	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.failOn == call {
		return nil, fmt.Errorf("upstream unavailable")
	}

	out := make([]translation.TranslatedText, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = translation.TranslatedText{TranslatedText: strings.ToUpper(text)}
	}
	return out, nil
}

func (p *stubProvider) seenTargets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.targets...)
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type stateEnvelope struct {
	DocumentID     string       `json:"document_id"`
	NativeLanguage string       `json:"native_language"`
	State          engine.State `json:"state"`
}

func newTestServer(t *testing.T, provider translation.Provider, deps Deps) (*Server, *echo.Echo) {
	t.Helper()

	registry := translation.NewRegistry(provider.Name())
	if err := registry.Register(provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	deps.Registry = registry
	server := NewServer(deps, zerolog.Nop(), Options{})
	return server, server.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, env
}

func createDocument(t *testing.T, h http.Handler, body string) documentResponse {
	t.Helper()

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/documents", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected create status: got %d want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var doc documentResponse
	if err := json.Unmarshal(env.Data, &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	return doc
}

func pageJSON(lang, clientID string) string {
	payload := map[string]string{"html": testPage}
	if lang != "" {
		payload["language"] = lang
	}
	if clientID != "" {
		payload["client_id"] = clientID
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func decodeState(t *testing.T, env envelope) stateEnvelope {
	t.Helper()

	var out stateEnvelope
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return out
}

func renderedTexts(t *testing.T, h http.Handler, id string) []string {
	t.Helper()

	rec, _ := doJSON(t, h, http.MethodGet, "/api/v1/documents/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected render status: got %d want %d", rec.Code, http.StatusOK)
	}
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("parse rendered html: %v", err)
	}
	var texts []string
	doc.Find("h1, p").Each(func(_ int, sel *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(sel.Text()))
	})
	return texts
}

func TestHealthAndLanguages(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, translation.NewPseudoProvider(), Deps{})

	rec, env := doJSON(t, h, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(string(env.Data), `"provider":"pseudo"`) {
		t.Fatalf("expected default provider in health, got %s", env.Data)
	}

	rec, env = doJSON(t, h, http.MethodGet, "/api/v1/languages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected languages status: got %d want %d", rec.Code, http.StatusOK)
	}
	var payload struct {
		Items []translation.LanguageOption `json:"items"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode languages: %v", err)
	}
	if len(payload.Items) == 0 || payload.Items[0].Code != "original" {
		t.Fatalf("expected original option first, got %#v", payload.Items)
	}
}

func TestTranslateWaitAndRestore(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{}
	_, h := newTestServer(t, provider, Deps{DefaultTargetLanguage: "fr"})

	doc := createDocument(t, h, pageJSON("", ""))
	if doc.NativeLanguage != "en" || doc.Eligible != 2 {
		t.Fatalf("unexpected document: %#v", doc)
	}

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/documents/"+doc.DocumentID+"/translate", `{"target_language":"fr","wait":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected translate status: got %d want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	state := decodeState(t, env).State
	if state.Status != engine.StatusTranslated || state.Progress != 100 || state.TargetLanguage != "fr" {
		t.Fatalf("unexpected state: %#v", state)
	}

	texts := renderedTexts(t, h, doc.DocumentID)
	want := []string{"HELLO WORLD", "READ THE GUIDE TODAY", "Brand name"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected translated texts: got %v want %v", texts, want)
	}

	rec, env = doJSON(t, h, http.MethodPost, "/api/v1/documents/"+doc.DocumentID+"/restore", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected restore status: got %d want %d", rec.Code, http.StatusOK)
	}
	if got := decodeState(t, env).State; got.Translated || got.Status != engine.StatusIdle {
		t.Fatalf("unexpected restored state: %#v", got)
	}
	texts = renderedTexts(t, h, doc.DocumentID)
	want = []string{"Hello world", "Read the guide today", "Brand name"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected restored texts: got %v want %v", texts, want)
	}
}

func TestTranslateAsyncRejectsConcurrentRequests(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	_, h := newTestServer(t, provider, Deps{})
	doc := createDocument(t, h, pageJSON("", ""))
	path := "/api/v1/documents/" + doc.DocumentID

	rec, _ := doJSON(t, h, http.MethodPost, path+"/translate", `{"target_language":"fr"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected async status: got %d want %d", rec.Code, http.StatusAccepted)
	}
	<-provider.started

	rec, env := doJSON(t, h, http.MethodPost, path+"/translate", `{"target_language":"de"}`)
	if rec.Code != http.StatusConflict || env.Status != "fail" {
		t.Fatalf("unexpected busy translate: got %d want %d", rec.Code, http.StatusConflict)
	}
	if got := decodeState(t, env).State; !got.Loading {
		t.Fatalf("expected loading state in conflict response, got %#v", got)
	}
	rec, _ = doJSON(t, h, http.MethodPost, path+"/restore", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected busy restore: got %d want %d", rec.Code, http.StatusConflict)
	}
	rec, _ = doJSON(t, h, http.MethodGet, path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected render during translation, got %d", rec.Code)
	}

	close(provider.release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, env = doJSON(t, h, http.MethodGet, path+"/state", "")
		if decodeState(t, env).State.Status == engine.StatusTranslated {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("translation did not finish: %s", env.Data)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := provider.seenTargets(); len(got) != 1 || got[0] != "fr" {
		t.Fatalf("unexpected provider calls: %v", got)
	}
}

func TestTranslateFailureKeepsPartialState(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{failOn: 2}
	_, h := newTestServer(t, provider, Deps{BatchSize: 1})
	doc := createDocument(t, h, pageJSON("", ""))

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/documents/"+doc.DocumentID+"/translate", `{"target_language":"fr","wait":true}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("unexpected failure status: got %d want %d", rec.Code, http.StatusBadGateway)
	}
	state := decodeState(t, env).State
	if state.Status != engine.StatusError || !state.Partial || state.Applied != 1 || state.Error == "" {
		t.Fatalf("unexpected failure state: %#v", state)
	}
}

func TestUnknownDocumentReturnsNotFound(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, translation.NewPseudoProvider(), Deps{})

	cases := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/documents/11111111-1111-1111-1111-111111111111"},
		{http.MethodGet, "/api/v1/documents/not-a-uuid/state"},
		{http.MethodPost, "/api/v1/documents/11111111-1111-1111-1111-111111111111/translate"},
		{http.MethodPost, "/api/v1/documents/11111111-1111-1111-1111-111111111111/restore"},
		{http.MethodDelete, "/api/v1/documents/11111111-1111-1111-1111-111111111111"},
	}
	for _, tc := range cases {
		rec, env := doJSON(t, h, tc.method, tc.path, "")
		if rec.Code != http.StatusNotFound || env.Status != "fail" {
			t.Fatalf("%s %s: unexpected response %d %s", tc.method, tc.path, rec.Code, rec.Body.String())
		}
	}
}

func TestCreateDocumentValidation(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, translation.NewPseudoProvider(), Deps{})

	cases := []string{
		`{}`,
		`{"html":"<p>hi</p>","language":"en_1.3"}`,
		`{"html":"<p>hi</p>","provider":"google"}`,
		`{"html":"<p>hi</p>","unknown":true}`,
	}
	for _, body := range cases {
		rec, _ := doJSON(t, h, http.MethodPost, "/api/v1/documents", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status: got %d want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestPreferenceRoundTripDrivesDefaultTarget(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{}
	_, h := newTestServer(t, provider, Deps{})

	rec, env := doJSON(t, h, http.MethodGet, "/api/v1/preferences/reader-1", "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"target_language":"en"`) || !strings.Contains(string(env.Data), `"stored":false`) {
		t.Fatalf("unexpected default preference: %d %s", rec.Code, env.Data)
	}

	rec, _ = doJSON(t, h, http.MethodPut, "/api/v1/preferences/reader-1", `{"target_language":"xx-invalid!"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected invalid preference status: got %d want %d", rec.Code, http.StatusBadRequest)
	}

	rec, env = doJSON(t, h, http.MethodPut, "/api/v1/preferences/reader-1", `{"target_language":"FR-ca","ui_prefs":{"auto":true}}`)
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"target_language":"fr"`) {
		t.Fatalf("unexpected stored preference: %d %s", rec.Code, env.Data)
	}

	_, env = doJSON(t, h, http.MethodGet, "/api/v1/preferences/reader-1", "")
	if !strings.Contains(string(env.Data), `"stored":true`) || !strings.Contains(string(env.Data), `"auto":true`) {
		t.Fatalf("unexpected preference after update: %s", env.Data)
	}

	rec, _ = doJSON(t, h, http.MethodDelete, "/api/v1/preferences/reader-2", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected delete of missing preference: got %d want %d", rec.Code, http.StatusNotFound)
	}

	doc := createDocument(t, h, pageJSON("", "reader-1"))
	rec, env = doJSON(t, h, http.MethodPost, "/api/v1/documents/"+doc.DocumentID+"/translate", `{"wait":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected translate status: got %d (%s)", rec.Code, rec.Body.String())
	}
	if got := decodeState(t, env).State.TargetLanguage; got != "fr" {
		t.Fatalf("unexpected target: got %q want fr", got)
	}
	for _, target := range provider.seenTargets() {
		if target != "fr" {
			t.Fatalf("unexpected provider target: got %q want fr", target)
		}
	}

	rec, _ = doJSON(t, h, http.MethodDelete, "/api/v1/preferences/reader-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected delete status: got %d want %d", rec.Code, http.StatusOK)
	}
	_, env = doJSON(t, h, http.MethodGet, "/api/v1/preferences/reader-1", "")
	if !strings.Contains(string(env.Data), `"stored":false`) {
		t.Fatalf("expected preference to be gone, got %s", env.Data)
	}
}

func TestNothingToTranslateIsNotAnError(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, &stubProvider{}, Deps{})
	doc := createDocument(t, h, `{"html":"<html lang=\"en\"><body><div>12</div></body></html>"}`)

	rec, env := doJSON(t, h, http.MethodPost, "/api/v1/documents/"+doc.DocumentID+"/translate", `{"target_language":"fr","wait":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}
	state := decodeState(t, env).State
	if state.Status != engine.StatusIdle || state.Error != engine.NothingToTranslateMessage {
		t.Fatalf("unexpected state: %#v", state)
	}
}

func TestDocumentStoreExpiresIdleDocuments(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(start)
	defer globaltime.ResetTime()

	server, _ := newTestServer(t, translation.NewPseudoProvider(), Deps{DocumentTTL: time.Minute})
	ctrl := newTestController(t)
	if _, err := server.docs.add("11111111-1111-1111-1111-111111111111", ctrl, ""); err != nil {
		t.Fatalf("add document: %v", err)
	}

	globaltime.SetMockTime(start.Add(30 * time.Second))
	if _, err := server.docs.get("11111111-1111-1111-1111-111111111111"); err != nil {
		t.Fatalf("expected live document, got %v", err)
	}

	globaltime.SetMockTime(start.Add(2 * time.Minute))
	if _, err := server.docs.get("11111111-1111-1111-1111-111111111111"); err != errDocumentNotFound {
		t.Fatalf("unexpected error for expired document: got %v want %v", err, errDocumentNotFound)
	}
}

func TestDocumentStoreEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	store := newDocumentStore(time.Hour, 2)
	ids := []string{
		"11111111-1111-1111-1111-111111111111",
		"22222222-2222-2222-2222-222222222222",
		"33333333-3333-3333-3333-333333333333",
	}
	for _, id := range ids[:2] {
		if _, err := store.add(id, newTestController(t), ""); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	// Pin the first document as busy; the second must be evicted instead.
	first, err := store.get(ids[0])
	if err != nil {
		t.Fatalf("get first: %v", err)
	}
	first.running.TryAcquire(1)
	defer first.running.Release(1)

	if _, err := store.add(ids[2], newTestController(t), ""); err != nil {
		t.Fatalf("add third: %v", err)
	}
	if _, err := store.get(ids[1]); err != errDocumentNotFound {
		t.Fatalf("expected second document to be evicted, got %v", err)
	}
	if store.len() != 2 {
		t.Fatalf("unexpected store size: got %d want 2", store.len())
	}
}

func newTestController(t *testing.T) *engine.Controller {
	t.Helper()

	doc := mustParseDocument(t, testPage)
	ctrl, err := engine.NewController(doc, translation.NewPseudoProvider(), engine.Options{})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return ctrl
}

func mustParseDocument(t *testing.T, raw string) *dom.Document {
	t.Helper()

	doc, err := dom.ParseString(raw)
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	return doc
}
