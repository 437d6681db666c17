package engine

import (
	"strings"

	shdom "github.com/go-shiori/dom"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"horse.fit/pagetranslate/internal/dom"
)

// TranslatedAttr marks elements whose text has been replaced. Its value is the
// target language.
const TranslatedAttr = "data-translated"

// rewrite remembers what Apply changed on one element.
type rewrite struct {
	// written are the text nodes whose data was replaced, in group order.
	written []*html.Node
	// displaced are the original children removed by a whole-element replacement.
	displaced []*html.Node
}

// Rewriter writes translated text into elements while keeping their child
// structure, and puts original text back.
type Rewriter struct {
	doc      *dom.Document
	rules    *Rules
	lang     string
	logger   zerolog.Logger
	rewrites map[string]*rewrite
}

func NewRewriter(doc *dom.Document, rules *Rules, logger zerolog.Logger) *Rewriter {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Rewriter{
		doc:      doc,
		rules:    rules,
		logger:   logger,
		rewrites: make(map[string]*rewrite),
	}
}

// SetLanguage sets the value written to the translated marker.
func (r *Rewriter) SetLanguage(lang string) {
	r.lang = lang
}

// Apply writes text into the element bound to id. It returns false when the
// element no longer exists.
func (r *Rewriter) Apply(id, text string) bool {
	el := r.doc.Lookup(id)
	if el == nil {
		return false
	}
	vis := r.rules.Visibility()
	rec := r.record(id)

	nodes := vis.TextNodes(el)
	switch {
	case len(nodes) == 0:
		r.replaceWhole(el, rec, text)
	case len(nodes) == 1:
		lead, _, trail := dom.SplitPadding(nodes[0].Data)
		nodes[0].Data = lead + text + trail
		rec.remember(nodes)
	case consistent(nodes, vis.EffectiveText(el)):
		distributeWords(nodes, text)
		rec.remember(nodes)
	case r.hasProtectedDescendant(el):
		// Replacing the whole element would drop protected content, so the
		// text goes into the first node and the rest are emptied.
		r.logger.Debug().Str("id", id).Msg("text node group mismatch; collapsing into first node")
		collapse(nodes, text)
		rec.remember(nodes)
	default:
		r.logger.Debug().Str("id", id).Int("nodes", len(nodes)).Msg("text node group mismatch; replacing element content")
		r.replaceWhole(el, rec, text)
	}

	if r.lang != "" {
		shdom.SetAttribute(el, TranslatedAttr, r.lang)
	}
	return true
}

// Restore puts the original content back. Displaced children are reattached
// first; otherwise the raw text node data is written back when the group still
// has the captured shape. Applying the original text is the last resort.
func (r *Rewriter) Restore(id string, orig Original) bool {
	el := r.doc.Lookup(id)
	if el == nil {
		delete(r.rewrites, id)
		return false
	}
	defer shdom.RemoveAttribute(el, TranslatedAttr)

	rec := r.rewrites[id]
	delete(r.rewrites, id)

	if rec != nil && len(rec.displaced) > 0 {
		dom.DetachChildren(el)
		dom.AttachChildren(el, rec.displaced)
		return true
	}
	if rec != nil && len(rec.written) == len(orig.Raw) && r.allAttached(el, rec.written) {
		writeRaw(rec.written, orig.Raw)
		return true
	}
	if nodes := r.rules.Visibility().TextNodes(el); len(nodes) == len(orig.Raw) {
		writeRaw(nodes, orig.Raw)
		return true
	}

	r.logger.Debug().Str("id", id).Msg("restoring from original text")
	saved := r.lang
	r.lang = ""
	r.Apply(id, orig.Text)
	r.lang = saved
	delete(r.rewrites, id)
	return true
}

// Reset forgets every rewrite.
func (r *Rewriter) Reset() {
	clear(r.rewrites)
}

func (r *Rewriter) record(id string) *rewrite {
	rec, ok := r.rewrites[id]
	if !ok {
		rec = &rewrite{}
		r.rewrites[id] = rec
	}
	return rec
}

func (rec *rewrite) remember(nodes []*html.Node) {
	if len(rec.written) == 0 && len(rec.displaced) == 0 {
		rec.written = append([]*html.Node(nil), nodes...)
	}
}

func (r *Rewriter) replaceWhole(el *html.Node, rec *rewrite, text string) {
	detached := dom.ReplaceChildren(el, text)
	if len(rec.displaced) == 0 {
		rec.displaced = detached
		rec.written = nil
	}
}

func (r *Rewriter) hasProtectedDescendant(el *html.Node) bool {
	found := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for child := n.FirstChild; child != nil && !found; child = child.NextSibling {
			if child.Type != html.ElementNode {
				continue
			}
			if r.rules.Protected(child) {
				found = true
				return
			}
			walk(child)
		}
	}
	walk(el)
	return found
}

func (r *Rewriter) allAttached(el *html.Node, nodes []*html.Node) bool {
	for _, n := range nodes {
		attached := false
		for cur := n.Parent; cur != nil; cur = cur.Parent {
			if cur == el {
				attached = true
				break
			}
		}
		if !attached {
			return false
		}
	}
	return true
}

// consistent reports whether the node group reproduces the effective text when
// joined by single spaces. The comparison ignores whitespace runs inside and
// between nodes, so "a\n  b" matches "a b". Words split across nodes (for
// example "Hel" and "lo") fail the check.
func consistent(nodes []*html.Node, effective string) bool {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		parts = append(parts, strings.Join(strings.Fields(n.Data), " "))
	}
	return strings.Join(parts, " ") == strings.Join(strings.Fields(effective), " ")
}

// distributeWords spreads the words of text over nodes, giving each node as
// many words as it held before. Surplus words go to the last node. Padding of
// every node is kept.
func distributeWords(nodes []*html.Node, text string) {
	words := strings.Fields(text)
	next := 0
	for i, n := range nodes {
		lead, core, trail := dom.SplitPadding(n.Data)
		take := len(strings.Fields(core))
		if i == len(nodes)-1 {
			take = len(words) - next
		}
		take = min(take, len(words)-next)
		n.Data = lead + strings.Join(words[next:next+take], " ") + trail
		next += take
	}
}

func collapse(nodes []*html.Node, text string) {
	for i, n := range nodes {
		lead, _, trail := dom.SplitPadding(n.Data)
		if i == 0 {
			n.Data = lead + text + trail
			continue
		}
		n.Data = lead + trail
	}
}

func writeRaw(nodes []*html.Node, raw []string) {
	for i, n := range nodes {
		n.Data = raw[i]
	}
}
