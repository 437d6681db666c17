package translation

import (
	"context"
	"fmt"

	"horse.fit/pagetranslate/internal/language"
)

// PseudoProvider is an offline provider that tags each text with the target
// language. Useful for dry runs against real pages.
type PseudoProvider struct{}

func NewPseudoProvider() *PseudoProvider {
	return &PseudoProvider{}
}

func (p *PseudoProvider) Name() string {
	return "pseudo"
}

func (p *PseudoProvider) SupportedLanguages() []string {
	return SupportedTranslationLanguageCodes()
}

func (p *PseudoProvider) TranslateBatch(ctx context.Context, req BatchRequest) ([]TranslatedText, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	targetLang := language.NormalizeTag(req.TargetLang)
	if targetLang == "" {
		return nil, fmt.Errorf("target language is required")
	}

	out := make([]TranslatedText, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = TranslatedText{TranslatedText: fmt.Sprintf("[%s] %s", targetLang, text)}
	}
	return out, nil
}
