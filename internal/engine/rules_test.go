package engine

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestEvaluateWithoutDocument(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	base := Candidate{Tag: "p", Text: "Bonjour tout le monde", TargetLanguage: "ko", Rendered: true}

	cases := []struct {
		name   string
		mutate func(*Candidate)
		ok     bool
		reason Reason
	}{
		{name: "eligible paragraph", mutate: func(*Candidate) {}, ok: true},
		{name: "div without class", mutate: func(c *Candidate) { c.Tag = "div" }, reason: ReasonNotContent},
		{name: "class fragment", mutate: func(c *Candidate) { c.Tag = "div"; c.Classes = []string{"Product-Description"} }, ok: true},
		{name: "marked", mutate: func(c *Candidate) { c.Marked = true }, reason: ReasonDoNotTranslate},
		{name: "own ui", mutate: func(c *Candidate) { c.InOwnUI = true }, reason: ReasonTranslatorUI},
		{name: "not rendered", mutate: func(c *Candidate) { c.Rendered = false }, reason: ReasonNotRendered},
		{name: "single rune", mutate: func(c *Candidate) { c.Text = "가" }, reason: ReasonTooShort},
		{name: "whitespace", mutate: func(c *Candidate) { c.Text = "   " }, reason: ReasonTooShort},
		{name: "two runes", mutate: func(c *Candidate) { c.Text = "가나" }, ok: true},
		{name: "marker wins over hidden", mutate: func(c *Candidate) { c.Marked = true; c.Rendered = false }, reason: ReasonDoNotTranslate},
	}

	for _, tc := range cases {
		candidate := base
		tc.mutate(&candidate)
		ok, reason := rules.Evaluate(candidate)
		if ok != tc.ok || reason != tc.reason {
			t.Fatalf("%s: unexpected evaluation: got (%v, %q) want (%v, %q)", tc.name, ok, reason, tc.ok, tc.reason)
		}
	}
}

func TestAlreadyEnglishOnlyForEnglishTarget(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	english := Candidate{Tag: "p", Text: "Save changes (2 files)!", Rendered: true}

	english.TargetLanguage = "en"
	if ok, reason := rules.Evaluate(english); ok || reason != ReasonAlreadyEnglish {
		t.Fatalf("unexpected evaluation for en target: got (%v, %q)", ok, reason)
	}

	english.TargetLanguage = "en-GB"
	if ok, _ := rules.Evaluate(english); ok {
		t.Fatalf("expected en-GB target to skip plain ASCII text")
	}

	english.TargetLanguage = "fr"
	if ok, reason := rules.Evaluate(english); !ok {
		t.Fatalf("expected ASCII text to be eligible for fr target, got %q", reason)
	}

	korean := Candidate{Tag: "p", Text: "변경 사항 저장", TargetLanguage: "en", Rendered: true}
	if ok, reason := rules.Evaluate(korean); !ok {
		t.Fatalf("expected non-ASCII text to be eligible for en target, got %q", reason)
	}
}

func TestExclusionOrder(t *testing.T) {
	t.Parallel()

	names := make([]Reason, 0)
	for _, rule := range DefaultRules().Exclusions() {
		names = append(names, rule.Name)
	}
	want := []Reason{ReasonDoNotTranslate, ReasonTranslatorUI, ReasonNotRendered, ReasonTooShort, ReasonAlreadyEnglish}
	if !slices.Equal(names, want) {
		t.Fatalf("unexpected exclusion order: got %v want %v", names, want)
	}
}

func TestLoadPolicyFileOverlaysDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	raw := "roles: [p, figcaption]\nskip_markers:\n  - \".brand\"\nmin_length: 3\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	policy, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(policy.Roles, []string{"p", "figcaption"}) {
		t.Fatalf("unexpected roles: %v", policy.Roles)
	}
	if policy.MinLength != 3 {
		t.Fatalf("unexpected min length: got %d want 3", policy.MinLength)
	}
	if !slices.Equal(policy.OwnUI, DefaultPolicy().OwnUI) {
		t.Fatalf("expected own ui selectors to keep defaults, got %v", policy.OwnUI)
	}
	if !slices.Equal(policy.ClassFragments, DefaultPolicy().ClassFragments) {
		t.Fatalf("expected class fragments to keep defaults, got %v", policy.ClassFragments)
	}

	rules, err := Compile(policy)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if ok, reason := rules.Evaluate(Candidate{Tag: "figcaption", Text: "abc", TargetLanguage: "fr", Rendered: true}); !ok {
		t.Fatalf("expected figcaption to qualify, got %q", reason)
	}
}

func TestLoadPolicyFileRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("min_length: 0\n"), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if _, err := LoadPolicyFile(path); err == nil {
		t.Fatalf("expected error for min_length 0")
	}
	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestCompileRejectsBadSelector(t *testing.T) {
	t.Parallel()

	policy := DefaultPolicy()
	policy.SkipMarkers = []string{"[translate="}
	if _, err := Compile(policy); err == nil {
		t.Fatalf("expected selector compile error")
	}
}
