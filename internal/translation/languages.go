package translation

import (
	"sort"
	"strings"

	"horse.fit/pagetranslate/internal/language"
)

type LanguageOption struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Native string `json:"native,omitempty"`
}

type languageLabel struct {
	english string
	native  string
}

var translationLanguageLabels = map[string]languageLabel{
	"ar": {english: "Arabic", native: "العربية"},
	"de": {english: "German", native: "Deutsch"},
	"en": {english: "English", native: "English"},
	"es": {english: "Spanish", native: "Español"},
	"fr": {english: "French", native: "Français"},
	"hi": {english: "Hindi", native: "हिन्दी"},
	"id": {english: "Indonesian", native: "Bahasa Indonesia"},
	"it": {english: "Italian", native: "Italiano"},
	"ja": {english: "Japanese", native: "日本語"},
	"ko": {english: "Korean", native: "한국어"},
	"nl": {english: "Dutch", native: "Nederlands"},
	"pl": {english: "Polish", native: "Polski"},
	"pt": {english: "Portuguese", native: "Português"},
	"ru": {english: "Russian", native: "Русский"},
	"th": {english: "Thai", native: "ไทย"},
	"tr": {english: "Turkish", native: "Türkçe"},
	"uk": {english: "Ukrainian", native: "Українська"},
	"vi": {english: "Vietnamese", native: "Tiếng Việt"},
	"zh": {english: "Chinese", native: "中文"},
}

func SupportedTranslationLanguageCodes() []string {
	codes := make([]string, 0, len(translationLanguageLabels))
	for code := range translationLanguageLabels {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// ViewerLanguageOptions prepends the "original" pseudo-option used to restore a page.
func ViewerLanguageOptions(registry *Registry) []LanguageOption {
	options := []LanguageOption{
		{
			Code:  "original",
			Label: "Original",
		},
	}
	options = append(options, TranslationLanguageOptions(registry)...)
	return options
}

func TranslationLanguageOptions(registry *Registry) []LanguageOption {
	supported := map[string]struct{}{}

	for code := range translationLanguageLabels {
		supported[code] = struct{}{}
	}

	if registry != nil {
		for _, provider := range registry.providers {
			for _, code := range provider.SupportedLanguages() {
				normalized := language.NormalizeCode(code)
				if normalized == "" {
					continue
				}
				supported[normalized] = struct{}{}
			}
		}
	}

	codes := make([]string, 0, len(supported))
	for code := range supported {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	options := make([]LanguageOption, 0, len(codes))
	for _, code := range codes {
		labels, hasLabels := translationLanguageLabels[code]
		if hasLabels {
			options = append(options, LanguageOption{
				Code:   code,
				Label:  labels.english,
				Native: labels.native,
			})
			continue
		}

		options = append(options, LanguageOption{
			Code:  code,
			Label: strings.ToUpper(code),
		})
	}

	return options
}

func targetLanguageLabel(lang string) languageLabel {
	normalized := language.NormalizeCode(lang)
	if labels, ok := translationLanguageLabels[normalized]; ok {
		return labels
	}
	fallback := strings.TrimSpace(lang)
	if fallback == "" {
		fallback = "English"
	}
	return languageLabel{english: fallback, native: fallback}
}
