package dom

import (
	"regexp"
	"strings"

	shdom "github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

var rxDisplayNone = regexp.MustCompile(`(?i)(^|;)\s*display\s*:\s*none\s*(!important)?\s*(;|$)`)

// nonRenderedTags never produce visible text regardless of styling.
var nonRenderedTags = map[string]struct{}{
	"head":     {},
	"title":    {},
	"meta":     {},
	"link":     {},
	"script":   {},
	"style":    {},
	"template": {},
	"noscript": {},
}

// Visibility decides whether an element is rendered.
//
// Stylesheets are not evaluated. An element is treated as not rendered when it is
// a non-rendering tag, carries the hidden attribute, has an inline display:none,
// or carries one of HiddenClasses. Zero opacity and visibility:hidden still take
// up layout and are treated as rendered.
type Visibility struct {
	HiddenClasses []string
	// Skip prunes additional subtrees from text collection without marking
	// them as not rendered.
	Skip func(*html.Node) bool
}

// Rendered reports whether the element itself is rendered. Ancestors are not checked.
func (v Visibility) Rendered(n *html.Node) bool {
	if n == nil {
		return false
	}
	if n.Type != html.ElementNode {
		return true
	}
	if _, skip := nonRenderedTags[n.Data]; skip {
		return false
	}
	if shdom.HasAttribute(n, "hidden") {
		return false
	}
	if rxDisplayNone.MatchString(shdom.GetAttribute(n, "style")) {
		return false
	}
	if len(v.HiddenClasses) > 0 {
		for _, class := range strings.Fields(shdom.GetAttribute(n, "class")) {
			for _, hidden := range v.HiddenClasses {
				if strings.EqualFold(class, hidden) {
					return false
				}
			}
		}
	}
	return true
}

// RenderedInTree reports whether n and all of its ancestors are rendered.
func (v Visibility) RenderedInTree(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if !v.Rendered(cur) {
			return false
		}
	}
	return true
}
