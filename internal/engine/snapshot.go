package engine

import (
	"iter"

	"horse.fit/pagetranslate/internal/dom"
	"horse.fit/pagetranslate/internal/translation"
)

// Original is the pre-translation content of one element. Raw holds the exact
// data of each text node of the element so it can be put back byte for byte.
type Original struct {
	Text string
	Raw  []string
}

// Snapshot maps element ids to their original content, in scan order.
type Snapshot struct {
	order   []string
	entries map[string]Original
}

// Capture records the original content of every element. It does not modify
// the tree.
func Capture(elements []Element, vis dom.Visibility) *Snapshot {
	snap := &Snapshot{
		order:   make([]string, 0, len(elements)),
		entries: make(map[string]Original, len(elements)),
	}
	for _, el := range elements {
		if _, dup := snap.entries[el.ID]; dup {
			continue
		}
		nodes := vis.TextNodes(el.Node)
		raw := make([]string, len(nodes))
		for i, n := range nodes {
			raw[i] = n.Data
		}
		snap.order = append(snap.order, el.ID)
		snap.entries[el.ID] = Original{Text: el.Text, Raw: raw}
	}
	return snap
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *Snapshot) Get(id string) (Original, bool) {
	if s == nil {
		return Original{}, false
	}
	orig, ok := s.entries[id]
	return orig, ok
}

// All iterates entries in scan order.
func (s *Snapshot) All() iter.Seq2[string, Original] {
	return func(yield func(string, Original) bool) {
		if s == nil {
			return
		}
		for _, id := range s.order {
			if !yield(id, s.entries[id]) {
				return
			}
		}
	}
}

// Pairs returns the texts to translate, in scan order.
func (s *Snapshot) Pairs() []translation.Pair {
	pairs := make([]translation.Pair, 0, s.Len())
	for id, orig := range s.All() {
		pairs = append(pairs, translation.Pair{ID: id, Text: orig.Text})
	}
	return pairs
}

func (s *Snapshot) Clear() {
	if s == nil {
		return
	}
	s.order = s.order[:0]
	clear(s.entries)
}
