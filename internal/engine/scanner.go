package engine

import (
	"strings"

	shdom "github.com/go-shiori/dom"
	"golang.org/x/net/html"

	"horse.fit/pagetranslate/internal/dom"
)

// Element is one translatable element found by a scan. Node is only valid
// until the tree is next mutated by the host.
type Element struct {
	ID   string
	Text string
	Node *html.Node
}

// Decision records the outcome for one element that matched the selection rule.
type Decision struct {
	ID       string `json:"id,omitempty"`
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Eligible bool   `json:"eligible"`
	Reason   Reason `json:"reason,omitempty"`
}

type Scanner struct {
	rules *Rules
}

func NewScanner(rules *Rules) *Scanner {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Scanner{rules: rules}
}

func (s *Scanner) Rules() *Rules {
	return s.rules
}

// Scan returns the leafmost eligible elements of doc in document order and
// binds an id to each of them.
func (s *Scanner) Scan(doc *dom.Document, targetLanguage string) []Element {
	var out []Element
	s.walk(doc, targetLanguage, func(el Element) {
		out = append(out, el)
	}, nil)
	return out
}

// Explain is Scan plus a decision for every element that matched the selection
// rule, including the excluded ones.
func (s *Scanner) Explain(doc *dom.Document, targetLanguage string) ([]Element, []Decision) {
	var (
		elements  []Element
		decisions []Decision
	)
	s.walk(doc, targetLanguage, func(el Element) {
		elements = append(elements, el)
	}, func(d Decision) {
		decisions = append(decisions, d)
	})
	return elements, decisions
}

type inherited struct {
	marked   bool
	ownUI    bool
	rendered bool
}

func (s *Scanner) walk(doc *dom.Document, targetLanguage string, keep func(Element), explain func(Decision)) {
	if doc == nil || doc.Root() == nil {
		return
	}
	vis := s.rules.Visibility()

	// visit returns whether n or a descendant was kept. Children are visited
	// before their parent so a parent never shadows a kept descendant.
	var visit func(n *html.Node, ctx inherited) bool
	visit = func(n *html.Node, ctx inherited) bool {
		if n.Type == html.ElementNode {
			ctx.marked = ctx.marked || s.rules.Marked(n)
			ctx.ownUI = ctx.ownUI || s.rules.OwnUI(n)
			ctx.rendered = ctx.rendered && vis.Rendered(n)
		}

		descendantKept := false
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != html.ElementNode {
				continue
			}
			if visit(child, ctx) {
				descendantKept = true
			}
		}
		if n.Type != html.ElementNode {
			return descendantKept
		}

		candidate := Candidate{
			Tag:            n.Data,
			Classes:        strings.Fields(shdom.ClassName(n)),
			TargetLanguage: targetLanguage,
			Marked:         ctx.marked,
			InOwnUI:        ctx.ownUI,
			Rendered:       ctx.rendered,
		}
		if !s.rules.Qualifies(candidate) {
			return descendantKept
		}
		if ctx.rendered && !ctx.marked && !ctx.ownUI {
			candidate.Text = vis.EffectiveText(n)
		}

		eligible, reason := s.rules.Evaluate(candidate)
		if eligible && descendantKept {
			eligible, reason = false, ReasonContainer
		}

		decision := Decision{Tag: n.Data, Text: candidate.Text, Eligible: eligible, Reason: reason}
		if eligible {
			id := doc.AssignID(n)
			decision.ID = id
			keep(Element{ID: id, Text: candidate.Text, Node: n})
		}
		if explain != nil {
			explain(decision)
		}
		return eligible || descendantKept
	}

	visit(doc.Root(), inherited{rendered: true})
}
