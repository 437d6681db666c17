package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"horse.fit/pagetranslate/internal/language"
	payloadschema "horse.fit/pagetranslate/internal/schema"
)

const maxResponseBytes = 8 << 20

// HTTPProvider posts batches to a REST translation service:
//
//	POST {endpoint} {"texts": [...], "targetLanguage": "fr"}
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

type httpBatchRequest struct {
	Texts          []string `json:"texts"`
	TargetLanguage string   `json:"targetLanguage"`
	SourceLanguage string   `json:"sourceLanguage,omitempty"`
}

func NewHTTPProvider(endpoint, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProvider{
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPProvider) Name() string {
	return "http"
}

func (p *HTTPProvider) SupportedLanguages() []string {
	return SupportedTranslationLanguageCodes()
}

func (p *HTTPProvider) TranslateBatch(ctx context.Context, req BatchRequest) ([]TranslatedText, error) {
	if p == nil {
		return nil, fmt.Errorf("http provider is nil")
	}
	if p.endpoint == "" {
		return nil, fmt.Errorf("translation endpoint is required")
	}
	if len(req.Texts) == 0 {
		return []TranslatedText{}, nil
	}
	targetLang := language.NormalizeTag(req.TargetLang)
	if targetLang == "" {
		return nil, fmt.Errorf("target language is required")
	}

	body, err := json.Marshal(httpBatchRequest{
		Texts:          req.Texts,
		TargetLanguage: targetLang,
		SourceLanguage: language.NormalizeTag(req.SourceLang),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal translation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build translation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send translation request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read translation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("translation endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	entries, err := payloadschema.ValidateTranslationResponse(respBody)
	if err != nil {
		return nil, fmt.Errorf("invalid translation response: %w", err)
	}
	if len(entries) != len(req.Texts) {
		return nil, fmt.Errorf("%w: got %d want %d", ErrResultCount, len(entries), len(req.Texts))
	}

	out := make([]TranslatedText, len(entries))
	for i, entry := range entries {
		out[i] = TranslatedText{TranslatedText: entry.TranslatedText}
	}
	return out, nil
}
