package engine

import (
	"slices"
	"strings"
	"testing"

	"horse.fit/pagetranslate/internal/dom"
)

func mustDoc(t *testing.T, raw string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func elementTexts(elements []Element) []string {
	out := make([]string, 0, len(elements))
	for _, el := range elements {
		out = append(out, el.Text)
	}
	return out
}

func TestScanDocumentOrderAndSelection(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<html><head><title>Ignored title</title></head><body>
		<h1>Title here</h1>
		<div><p>First para</p><ul><li>Item one</li></ul></div>
		<div class="product-description">Great product</div>
		<div class="wrapper">Plain wrapper</div>
		<span class="card-title">Card</span>
	</body></html>`)

	got := elementTexts(NewScanner(nil).Scan(doc, "fr"))
	want := []string{"Title here", "First para", "Item one", "Great product", "Card"}
	if !slices.Equal(got, want) {
		t.Fatalf("unexpected elements: got %q want %q", got, want)
	}
}

func TestScanKeepsLeafmost(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<body><ul>
		<li><a href="#">Link text</a></li>
		<li>Item <span>x</span> more</li>
	</ul></body>`)

	elements, decisions := NewScanner(nil).Explain(doc, "fr")
	got := elementTexts(elements)
	want := []string{"Link text", "Item x more"}
	if !slices.Equal(got, want) {
		t.Fatalf("unexpected elements: got %q want %q", got, want)
	}

	var containers, tooShort int
	for _, d := range decisions {
		switch d.Reason {
		case ReasonContainer:
			containers++
		case ReasonTooShort:
			tooShort++
		}
	}
	if containers != 1 || tooShort != 1 {
		t.Fatalf("unexpected decisions: containers=%d too_short=%d", containers, tooShort)
	}
}

func TestScanMixedContentKeepsOnlyInlineChild(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<body><p>Read the <a href="/guide">voting guide</a> before election day</p></body>`)

	elements, decisions := NewScanner(nil).Explain(doc, "fr")
	got := elementTexts(elements)
	if want := []string{"voting guide"}; !slices.Equal(got, want) {
		t.Fatalf("unexpected elements: got %q want %q", got, want)
	}
	for _, d := range decisions {
		if d.Tag == "p" && (d.Eligible || d.Reason != ReasonContainer) {
			t.Fatalf("unexpected paragraph decision: %+v", d)
		}
	}
}

func TestScanExcludesMarkedAndOwnUIAtAnyDepth(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<body>
		<div translate="no"><section><article><p>Deep marked text</p></article></section></div>
		<div data-no-translate><span>Attribute marked</span></div>
		<p class="intro notranslate">Class marked</p>
		<div id="page-translator"><label>Language</label><button>Translate</button></div>
		<aside data-translator-ui="true"><div><h2>Controls</h2></div></aside>
		<p>Visible text</p>
	</body>`)

	got := elementTexts(NewScanner(nil).Scan(doc, "fr"))
	if !slices.Equal(got, []string{"Visible text"}) {
		t.Fatalf("unexpected elements: got %q", got)
	}
}

func TestScanExcludesHiddenButNotTransparent(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<body>
		<p hidden>Hidden attribute</p>
		<div style="color: red; display : none !important"><p>Inline none</p></div>
		<p class="d-none">Utility hidden</p>
		<div class="hidden"><span>Nested hidden</span></div>
		<p style="opacity:0">Zero opacity</p>
		<p style="visibility:hidden">Visibility hidden</p>
		<noscript><p>No script</p></noscript>
		<template><p>Template</p></template>
	</body>`)

	got := elementTexts(NewScanner(nil).Scan(doc, "fr"))
	want := []string{"Zero opacity", "Visibility hidden"}
	if !slices.Equal(got, want) {
		t.Fatalf("unexpected elements: got %q want %q", got, want)
	}
}

func TestScanProtectedTextIsNotPartOfParent(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<body><p>Call <span class="notranslate">Acme Corp</span> today</p></body>`)
	elements := NewScanner(nil).Scan(doc, "fr")
	if len(elements) != 1 {
		t.Fatalf("unexpected element count: got %d want 1", len(elements))
	}
	if strings.Contains(elements[0].Text, "Acme") {
		t.Fatalf("protected text leaked into parent text: %q", elements[0].Text)
	}
}

func TestScanEnglishTargetSkipsASCII(t *testing.T) {
	t.Parallel()

	raw := `<body><p>Hello world</p><p>안녕하세요 세계</p></body>`

	got := elementTexts(NewScanner(nil).Scan(mustDoc(t, raw), "en"))
	if !slices.Equal(got, []string{"안녕하세요 세계"}) {
		t.Fatalf("unexpected elements for en: got %q", got)
	}
	got = elementTexts(NewScanner(nil).Scan(mustDoc(t, raw), "fr"))
	if len(got) != 2 {
		t.Fatalf("unexpected elements for fr: got %q", got)
	}
}

func TestScanIDs(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<body>
		<p id="intro">Introduction</p>
		<p id="dup">First duplicate</p>
		<p id="dup">Second duplicate</p>
		<p>No id here</p>
	</body>`)
	scanner := NewScanner(nil)

	first := scanner.Scan(doc, "fr")
	ids := make([]string, 0, len(first))
	for _, el := range first {
		ids = append(ids, el.ID)
	}
	want := []string{"intro", "dup", dom.SyntheticIDPrefix + "1", dom.SyntheticIDPrefix + "2"}
	if !slices.Equal(ids, want) {
		t.Fatalf("unexpected ids: got %v want %v", ids, want)
	}

	second := scanner.Scan(doc, "fr")
	for i, el := range second {
		if el.ID != ids[i] {
			t.Fatalf("rescan changed id at %d: got %s want %s", i, el.ID, ids[i])
		}
	}
	if strings.Contains(doc.String(), dom.SyntheticIDPrefix) {
		t.Fatalf("expected synthesized ids to stay out of the markup")
	}
}

func TestCaptureRecordsRawTextNodes(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<body><p>  Hello <b>brave</b> world </p></body>`)
	rules := DefaultRules()
	elements := NewScanner(rules).Scan(doc, "fr")
	snap := Capture(elements, rules.Visibility())

	orig, ok := snap.Get(elements[0].ID)
	if !ok {
		t.Fatalf("expected snapshot entry")
	}
	if orig.Text != "Hello brave world" {
		t.Fatalf("unexpected text: %q", orig.Text)
	}
	if !slices.Equal(orig.Raw, []string{"  Hello ", "brave", " world "}) {
		t.Fatalf("unexpected raw data: %q", orig.Raw)
	}

	pairs := snap.Pairs()
	if len(pairs) != 1 || pairs[0].ID != elements[0].ID || pairs[0].Text != orig.Text {
		t.Fatalf("unexpected pairs: %+v", pairs)
	}
	snap.Clear()
	if snap.Len() != 0 {
		t.Fatalf("expected empty snapshot after clear")
	}
}
