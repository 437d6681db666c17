package language

import "strings"

// Undetermined is the ISO 639-2 code for an unknown language.
const Undetermined = "und"

// NormalizeTag normalizes a language tag to lowercase and "-" separators.
// Returns an empty string when the value is blank or contains invalid characters.
func NormalizeTag(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}

	trimmed = strings.ReplaceAll(trimmed, "_", "-")
	parts := strings.Split(trimmed, "-")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !isAlphaNumLower(part) {
			return ""
		}
		normalized = append(normalized, part)
	}

	if len(normalized) == 0 || !isAlphaLower(normalized[0]) {
		return ""
	}
	return strings.Join(normalized, "-")
}

// NormalizeCode returns the primary language subtag (for example, "en" from "en-US").
func NormalizeCode(raw string) string {
	tag := NormalizeTag(raw)
	if tag == "" {
		return ""
	}
	if dash := strings.IndexByte(tag, '-'); dash >= 0 {
		return tag[:dash]
	}
	return tag
}

// Same reports whether two tags name the same primary language.
// Blank or undetermined tags never match anything.
func Same(a, b string) bool {
	codeA, codeB := NormalizeCode(a), NormalizeCode(b)
	if codeA == "" || codeB == "" || codeA == Undetermined || codeB == Undetermined {
		return false
	}
	return codeA == codeB
}

func isAlphaLower(value string) bool {
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// Region and script subtags may carry digits ("es-419").
func isAlphaNumLower(value string) bool {
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
