package engine

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"horse.fit/pagetranslate/internal/dom"
	"horse.fit/pagetranslate/internal/language"
)

// Reason names why an element was left out of a scan.
type Reason string

const (
	ReasonNotContent     Reason = "not_content"
	ReasonDoNotTranslate Reason = "do_not_translate"
	ReasonTranslatorUI   Reason = "translator_ui"
	ReasonNotRendered    Reason = "not_rendered"
	ReasonTooShort       Reason = "too_short"
	ReasonAlreadyEnglish Reason = "already_english"
	ReasonContainer      Reason = "has_translatable_descendant"
)

// rxPlainEnglish matches text built only from ASCII letters, digits, whitespace
// and basic punctuation.
var rxPlainEnglish = regexp.MustCompile(`^[A-Za-z0-9\s.,:;!?'"()\[\]&/%$#@*+=_-]+$`)

// Candidate is everything the rules look at. It is built from the tree by the
// scanner but can be constructed by hand.
type Candidate struct {
	Tag            string
	Classes        []string
	Text           string
	TargetLanguage string
	// Marked, InOwnUI and Rendered already fold in the element's ancestors.
	Marked   bool
	InOwnUI  bool
	Rendered bool
}

// Rule excludes a candidate when Match returns true.
type Rule struct {
	Name  Reason
	Match func(Candidate) bool
}

// Rules is a compiled Policy.
type Rules struct {
	policy     Policy
	roles      map[string]struct{}
	fragments  []string
	skip       cascadia.Selector
	ownUI      cascadia.Selector
	exclusions []Rule
	visibility dom.Visibility
}

// DefaultRules compiles DefaultPolicy.
func DefaultRules() *Rules {
	rules, err := Compile(DefaultPolicy())
	if err != nil {
		panic(fmt.Sprintf("compile default policy: %v", err))
	}
	return rules
}

func Compile(policy Policy) (*Rules, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	skip, err := compileSelectors(policy.SkipMarkers)
	if err != nil {
		return nil, fmt.Errorf("compile skip markers: %w", err)
	}
	ownUI, err := compileSelectors(policy.OwnUI)
	if err != nil {
		return nil, fmt.Errorf("compile own ui selectors: %w", err)
	}

	r := &Rules{
		policy:    policy,
		roles:     make(map[string]struct{}, len(policy.Roles)),
		fragments: make([]string, 0, len(policy.ClassFragments)),
		skip:      skip,
		ownUI:     ownUI,
	}
	for _, role := range policy.Roles {
		r.roles[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}
	for _, fragment := range policy.ClassFragments {
		if fragment = strings.ToLower(strings.TrimSpace(fragment)); fragment != "" {
			r.fragments = append(r.fragments, fragment)
		}
	}

	minLength := policy.MinLength
	r.exclusions = []Rule{
		{Name: ReasonDoNotTranslate, Match: func(c Candidate) bool { return c.Marked }},
		{Name: ReasonTranslatorUI, Match: func(c Candidate) bool { return c.InOwnUI }},
		{Name: ReasonNotRendered, Match: func(c Candidate) bool { return !c.Rendered }},
		{Name: ReasonTooShort, Match: func(c Candidate) bool {
			return utf8.RuneCountInString(strings.TrimSpace(c.Text)) < minLength
		}},
		{Name: ReasonAlreadyEnglish, Match: looksAlreadyEnglish},
	}
	r.visibility = dom.Visibility{
		HiddenClasses: policy.HiddenClasses,
		Skip:          r.Protected,
	}
	return r, nil
}

func compileSelectors(selectors []string) (cascadia.Selector, error) {
	parts := make([]string, 0, len(selectors))
	for _, sel := range selectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			parts = append(parts, sel)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return cascadia.Compile(strings.Join(parts, ", "))
}

// looksAlreadyEnglish only applies to English targets. Plain ASCII text is
// assumed to be English already; for any other pair it says nothing.
func looksAlreadyEnglish(c Candidate) bool {
	if language.NormalizeCode(c.TargetLanguage) != "en" {
		return false
	}
	return rxPlainEnglish.MatchString(c.Text)
}

func (r *Rules) Policy() Policy {
	return r.policy
}

// Visibility returns the rendering and text collection rules. Protected
// subtrees are pruned from text collection.
func (r *Rules) Visibility() dom.Visibility {
	return r.visibility
}

// Exclusions lists the exclusion rules in priority order.
func (r *Rules) Exclusions() []Rule {
	return r.exclusions
}

// Qualifies applies the selection rule: a content role tag or a class token
// containing a whitelisted fragment.
func (r *Rules) Qualifies(c Candidate) bool {
	if _, ok := r.roles[strings.ToLower(c.Tag)]; ok {
		return true
	}
	for _, class := range c.Classes {
		lower := strings.ToLower(class)
		for _, fragment := range r.fragments {
			if strings.Contains(lower, fragment) {
				return true
			}
		}
	}
	return false
}

// Evaluate reports whether the candidate is eligible, or the first rule that
// excludes it.
func (r *Rules) Evaluate(c Candidate) (bool, Reason) {
	if !r.Qualifies(c) {
		return false, ReasonNotContent
	}
	for _, rule := range r.exclusions {
		if rule.Match(c) {
			return false, rule.Name
		}
	}
	return true, ""
}

// Marked reports whether n itself carries a do-not-translate marker.
func (r *Rules) Marked(n *html.Node) bool {
	return r.skip != nil && n.Type == html.ElementNode && r.skip.Match(n)
}

// OwnUI reports whether n itself is a root of the translator's controls.
func (r *Rules) OwnUI(n *html.Node) bool {
	return r.ownUI != nil && n.Type == html.ElementNode && r.ownUI.Match(n)
}

// Protected reports whether text under n must never be rewritten.
func (r *Rules) Protected(n *html.Node) bool {
	return r.Marked(n) || r.OwnUI(n)
}
