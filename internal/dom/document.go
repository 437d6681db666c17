package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"weak"

	shdom "github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// SyntheticIDPrefix prefixes ids the document assigns to elements that carry none.
const SyntheticIDPrefix = "translate-el-"

// Document is a parsed HTML tree plus an id side table.
//
// The side table holds weak references only, so nodes the host removes from the
// tree are never kept alive by the table and resolve to nothing on lookup.
type Document struct {
	root     *html.Node
	ids      map[string]weak.Pointer[html.Node]
	nodes    map[weak.Pointer[html.Node]]string
	seq      int
	stampIDs bool
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return New(root), nil
}

// ParseString parses an HTML document held in memory.
func ParseString(raw string) (*Document, error) {
	return Parse(strings.NewReader(raw))
}

// New wraps an already parsed tree.
func New(root *html.Node) *Document {
	return &Document{
		root:  root,
		ids:   make(map[string]weak.Pointer[html.Node]),
		nodes: make(map[weak.Pointer[html.Node]]string),
	}
}

// SetStampIDs controls whether synthesized ids are also written as id attributes.
// Stamping makes ids survive serialization at the cost of mutating the markup.
func (d *Document) SetStampIDs(on bool) {
	d.stampIDs = on
}

func (d *Document) Root() *html.Node {
	if d == nil {
		return nil
	}
	return d.root
}

// Lang returns the lang attribute of the <html> element, if any.
func (d *Document) Lang() string {
	if d == nil || d.root == nil {
		return ""
	}
	htmlEl := shdom.DocumentElement(d.root)
	if htmlEl == nil {
		return ""
	}
	return strings.TrimSpace(shdom.GetAttribute(htmlEl, "lang"))
}

// Body returns the <body> element, falling back to the root.
func (d *Document) Body() *html.Node {
	if d == nil || d.root == nil {
		return nil
	}
	if bodies := shdom.GetElementsByTagName(d.root, "body"); len(bodies) > 0 {
		return bodies[0]
	}
	return d.root
}

// Render writes the serialized document.
func (d *Document) Render(w io.Writer) error {
	if d == nil || d.root == nil {
		return fmt.Errorf("document is empty")
	}
	return html.Render(w, d.root)
}

func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// AssignID returns the durable id for an element, binding one on first use.
// An existing id attribute is reused unless another element already owns it,
// attached or not.
func (d *Document) AssignID(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	ref := weak.Make(n)
	if id, ok := d.nodes[ref]; ok {
		return id
	}

	existing := strings.TrimSpace(shdom.ID(n))
	if existing != "" && !d.boundElsewhere(existing, n) {
		d.bind(existing, ref)
		return existing
	}

	id := d.nextSyntheticID()
	d.bind(id, ref)
	if d.stampIDs && existing == "" {
		shdom.SetAttribute(n, "id", id)
	}
	return id
}

// IDOf reports the id bound to n, if any.
func (d *Document) IDOf(n *html.Node) (string, bool) {
	if d == nil || n == nil {
		return "", false
	}
	id, ok := d.nodes[weak.Make(n)]
	return id, ok
}

// Lookup resolves an id to a live element still attached to this document.
// It returns nil for elements removed since the id was assigned. A bound id
// never moves to another element, even one carrying the same id attribute.
func (d *Document) Lookup(id string) *html.Node {
	if d == nil || id == "" {
		return nil
	}
	if ref, ok := d.ids[id]; ok {
		if n := ref.Value(); n != nil && d.Contains(n) {
			return n
		}
		return nil
	}

	n := shdom.GetElementByID(d.root, id)
	if n == nil {
		return nil
	}
	ref := weak.Make(n)
	if _, bound := d.nodes[ref]; bound {
		return nil
	}
	d.bind(id, ref)
	return n
}

// Contains reports whether n is still attached under the document root.
func (d *Document) Contains(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			return true
		}
	}
	return false
}

func (d *Document) bind(id string, ref weak.Pointer[html.Node]) {
	d.ids[id] = ref
	d.nodes[ref] = id
}

func (d *Document) boundElsewhere(id string, n *html.Node) bool {
	ref, ok := d.ids[id]
	if !ok {
		return false
	}
	other := ref.Value()
	return other != nil && other != n
}

func (d *Document) nextSyntheticID() string {
	for {
		d.seq++
		candidate := fmt.Sprintf("%s%d", SyntheticIDPrefix, d.seq)
		if _, taken := d.ids[candidate]; taken {
			continue
		}
		if shdom.GetElementByID(d.root, candidate) != nil {
			continue
		}
		return candidate
	}
}
