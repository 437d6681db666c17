package translation

import "context"

// Provider translates batches of free-form text between languages.
type Provider interface {
	// TranslateBatch returns one result per input text, in input order.
	TranslateBatch(ctx context.Context, req BatchRequest) ([]TranslatedText, error)
	Name() string
	SupportedLanguages() []string
}

// BatchRequest describes one batch translation call.
type BatchRequest struct {
	Texts      []string
	SourceLang string // ISO 639-1 (for example: "ko", "en"); empty means auto
	TargetLang string
}

// TranslatedText is one translated entry of a batch response.
type TranslatedText struct {
	TranslatedText string `json:"translatedText"`
}
