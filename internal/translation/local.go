package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"horse.fit/pagetranslate/internal/language"
)

const (
	// DefaultLocalEndpoint points to a local OpenAI-compatible translation endpoint.
	DefaultLocalEndpoint = "http://127.0.0.1:8845/v1"
	// DefaultLocalModel is the default HY-MT model name.
	DefaultLocalModel = "tencent/HY-MT1.5-7B"
	// DefaultTimeout bounds one batch request.
	DefaultTimeout = 120 * time.Second
)

// LocalProvider translates batches by calling an OpenAI-compatible chat completions endpoint.
type LocalProvider struct {
	endpoint string
	model    string
	client   openai.Client
}

// LocalProviderOptions configures NewLocalProvider.
type LocalProviderOptions struct {
	Endpoint   string
	Model      string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

func NewLocalProvider(opts LocalProviderOptions) *LocalProvider {
	endpoint := normalizeEndpoint(opts.Endpoint)
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultLocalModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		// local servers ignore the key, but the client refuses to send without one
		apiKey = "local"
	}

	client := openai.NewClient(
		option.WithBaseURL(endpoint),
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(max(opts.MaxRetries, 0)),
	)

	return &LocalProvider{
		endpoint: endpoint,
		model:    model,
		client:   client,
	}
}

func (p *LocalProvider) Name() string {
	return "local"
}

// ModelName returns the configured model identifier.
func (p *LocalProvider) ModelName() string {
	if p == nil {
		return ""
	}
	return p.model
}

func (p *LocalProvider) Endpoint() string {
	if p == nil {
		return ""
	}
	return p.endpoint
}

func (p *LocalProvider) SupportedLanguages() []string {
	return SupportedTranslationLanguageCodes()
}

func (p *LocalProvider) TranslateBatch(ctx context.Context, req BatchRequest) ([]TranslatedText, error) {
	if p == nil {
		return nil, fmt.Errorf("local provider is nil")
	}
	if len(req.Texts) == 0 {
		return []TranslatedText{}, nil
	}
	targetLang := language.NormalizeCode(req.TargetLang)
	if targetLang == "" {
		return nil, fmt.Errorf("target language is required")
	}

	payload, err := json.Marshal(req.Texts)
	if err != nil {
		return nil, fmt.Errorf("marshal translation texts: %w", err)
	}

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(buildSystemPrompt(language.NormalizeCode(req.SourceLang), targetLang)),
			openai.UserMessage(string(payload)),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return nil, fmt.Errorf("send translation request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("translation response missing choices")
	}

	texts, err := decodeTextArray(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if len(texts) != len(req.Texts) {
		return nil, fmt.Errorf("%w: got %d want %d", ErrResultCount, len(texts), len(req.Texts))
	}

	out := make([]TranslatedText, len(texts))
	for i, text := range texts {
		out[i] = TranslatedText{TranslatedText: text}
	}
	return out, nil
}

func buildSystemPrompt(sourceLang, targetLang string) string {
	target := targetLanguageLabel(targetLang)
	source := "the source language"
	if sourceLang != "" {
		source = targetLanguageLabel(sourceLang).english
	}
	return fmt.Sprintf(
		"Translate every string of the JSON array from %s into %s. "+
			"Reply with only a JSON array of strings of the same length and order, without additional explanation.",
		source,
		target.english,
	)
}

// decodeTextArray extracts the JSON string array from a model reply. Models
// sometimes wrap the array in a code fence or a sentence.
func decodeTextArray(content string) ([]string, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("translation response is not a JSON array")
	}

	var texts []string
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &texts); err != nil {
		return nil, fmt.Errorf("decode translation response: %w", err)
	}
	return texts, nil
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return DefaultLocalEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultLocalEndpoint
	}
	path := strings.TrimRight(parsed.Path, "/")
	path = strings.TrimSuffix(path, "/chat/completions")
	if path == "" {
		path = "/v1"
	}
	parsed.Path = path
	return parsed.String()
}
