package langdetect

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	lingua "github.com/pemistahl/lingua-go"

	"horse.fit/pagetranslate/internal/language"
)

const (
	minLetters   = 6
	maxSampleLen = 4096
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// detectable matches the languages offered as translation targets.
var detectable = []lingua.Language{
	lingua.Arabic,
	lingua.Chinese,
	lingua.Dutch,
	lingua.English,
	lingua.French,
	lingua.German,
	lingua.Hindi,
	lingua.Indonesian,
	lingua.Italian,
	lingua.Japanese,
	lingua.Korean,
	lingua.Polish,
	lingua.Portuguese,
	lingua.Russian,
	lingua.Spanish,
	lingua.Thai,
	lingua.Turkish,
	lingua.Ukrainian,
	lingua.Vietnamese,
}

// DetectISO6391 guesses the ISO 639-1 code of text. Short or ambiguous samples
// return an empty string.
func DetectISO6391(text string) string {
	sample := clipSample(strings.TrimSpace(text))
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < minLetters {
		return ""
	}

	detected, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(detected.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

// Resolve picks a page language: the declared tag when valid, otherwise a
// detection over sample, otherwise fallback.
func Resolve(declared, sample, fallback string) string {
	if code := language.NormalizeCode(declared); code != "" && code != language.Undetermined {
		return code
	}
	if code := DetectISO6391(sample); code != "" {
		return code
	}
	return language.NormalizeCode(fallback)
}

func clipSample(s string) string {
	if len(s) <= maxSampleLen {
		return s
	}
	cut := maxSampleLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(detectable...).
			Build()
	})
	return detector
}
