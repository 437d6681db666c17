package dom

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// TextNodes returns the non-blank text nodes under el in document order,
// skipping subtrees that are not rendered.
func (v Visibility) TextNodes(el *html.Node) []*html.Node {
	var nodes []*html.Node
	v.eachRenderedText(el, func(n *html.Node) {
		if strings.TrimSpace(n.Data) != "" {
			nodes = append(nodes, n)
		}
	})
	return nodes
}

// EffectiveText is the rendered text of el, trimmed at both ends.
func (v Visibility) EffectiveText(el *html.Node) string {
	var b strings.Builder
	v.eachRenderedText(el, func(n *html.Node) {
		b.WriteString(n.Data)
	})
	return strings.TrimSpace(b.String())
}

func (v Visibility) eachRenderedText(el *html.Node, fn func(*html.Node)) {
	if el == nil {
		return
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			switch child.Type {
			case html.TextNode:
				fn(child)
			case html.ElementNode:
				if v.Rendered(child) && !v.skipped(child) {
					walk(child)
				}
			}
		}
	}
	walk(el)
}

func (v Visibility) skipped(n *html.Node) bool {
	return v.Skip != nil && v.Skip(n)
}

// SplitPadding splits s into leading whitespace, core text and trailing whitespace.
func SplitPadding(s string) (lead, core, trail string) {
	core = strings.TrimLeftFunc(s, unicode.IsSpace)
	lead = s[:len(s)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsSpace)
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}

// ReplaceChildren detaches every child of el, appends text as a single text node,
// and returns the detached children in their original order.
func ReplaceChildren(el *html.Node, text string) []*html.Node {
	detached := DetachChildren(el)
	el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return detached
}

// DetachChildren removes and returns every child of el.
func DetachChildren(el *html.Node) []*html.Node {
	var detached []*html.Node
	for child := el.FirstChild; child != nil; {
		next := child.NextSibling
		el.RemoveChild(child)
		detached = append(detached, child)
		child = next
	}
	return detached
}

// AttachChildren appends nodes to el in order. The nodes must be detached.
func AttachChildren(el *html.Node, nodes []*html.Node) {
	for _, n := range nodes {
		el.AppendChild(n)
	}
}
