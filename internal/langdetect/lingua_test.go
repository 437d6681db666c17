package langdetect

import (
	"strings"
	"testing"
)

func TestResolvePrefersDeclaredLanguage(t *testing.T) {
	t.Parallel()

	if got := Resolve("ko-KR", "This sentence is clearly written in English.", "en"); got != "ko" {
		t.Fatalf("unexpected language: got %q want ko", got)
	}
}

func TestResolveFallsBackForShortSamples(t *testing.T) {
	t.Parallel()

	if got := Resolve("", "ok", "EN"); got != "en" {
		t.Fatalf("unexpected fallback language: got %q want en", got)
	}
	if got := Resolve("und", "", "fr"); got != "fr" {
		t.Fatalf("expected und to be ignored, got %q", got)
	}
}

func TestClipSampleKeepsRuneBoundaries(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("가", maxSampleLen)
	clipped := clipSample(long)
	if len(clipped) > maxSampleLen {
		t.Fatalf("sample not clipped: %d bytes", len(clipped))
	}
	if len(clipped)%3 != 0 {
		t.Fatalf("sample split a rune: %d bytes", len(clipped))
	}
}
