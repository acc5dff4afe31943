package labelkb

import (
	"fmt"
	"sort"
	"strings"

	"certregistry/internal/identifier"
	dErrors "certregistry/pkg/domain-errors"
	pstrings "certregistry/pkg/platform/strings"
)

// Normalize is the canonical form keys and aliases are compared in.
func Normalize(s string) string {
	return pstrings.Fold(s)
}

// Collision names a normalized term claimed by more than one entry.
type Collision struct {
	Term string
	Keys []string
}

// ConflictError lists every collision found while building an index.
type ConflictError struct {
	Collisions []Collision
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Collisions))
	for _, c := range e.Collisions {
		parts = append(parts, fmt.Sprintf("%q claimed by [%s]", c.Term, strings.Join(c.Keys, ", ")))
	}
	return "label collisions: " + strings.Join(parts, "; ")
}

// Index is an immutable, validated view of the knowledge base.
type Index struct {
	entries []Entry
	byKey   map[string]int
	byAlias map[string]int
}

// NewIndex validates entries and builds lookup tables. A duplicate key, or
// an alias that resolves to two distinct entries, fails the whole build
// with a CodeConflict error wrapping *ConflictError.
func NewIndex(entries []Entry) (*Index, error) {
	idx := &Index{
		entries: make([]Entry, 0, len(entries)),
		byKey:   make(map[string]int, len(entries)),
		byAlias: make(map[string]int),
	}

	// claims maps a normalized term to the positions of the entries using it.
	claims := make(map[string][]int)
	claim := func(term string, pos int) {
		for _, p := range claims[term] {
			if p == pos {
				return
			}
		}
		claims[term] = append(claims[term], pos)
	}

	for pos, e := range entries {
		key := Normalize(e.Key)
		if key == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "label entry key is required")
		}
		if e.SerialFormat != "" {
			if err := identifier.ValidateSerialFormat(e.SerialFormat); err != nil {
				return nil, dErrors.Newf(dErrors.CodeValidation, "label entry %q has invalid serial format %q", e.Key, e.SerialFormat)
			}
		}
		claim(key, pos)
		for _, a := range pstrings.DedupeFolded(e.Aliases) {
			claim(a, pos)
		}
	}

	var collisions []Collision
	for term, positions := range claims {
		if len(positions) < 2 {
			continue
		}
		keys := make([]string, 0, len(positions))
		for _, p := range positions {
			keys = append(keys, entries[p].Key)
		}
		sort.Strings(keys)
		collisions = append(collisions, Collision{Term: term, Keys: keys})
	}
	if len(collisions) > 0 {
		sort.Slice(collisions, func(i, j int) bool { return collisions[i].Term < collisions[j].Term })
		return nil, dErrors.Wrap(&ConflictError{Collisions: collisions}, dErrors.CodeConflict, "label knowledge base is inconsistent")
	}

	for _, e := range entries {
		e.Aliases = pstrings.DedupeFolded(e.Aliases)
		key := Normalize(e.Key)
		pos := len(idx.entries)
		idx.byKey[key] = pos
		for _, a := range e.Aliases {
			if a != key {
				idx.byAlias[a] = pos
			}
		}
		idx.entries = append(idx.entries, e)
	}
	return idx, nil
}

// Lookup finds an entry by key. The key is normalized first, so already
// normalized input is unaffected.
func (x *Index) Lookup(key string) (Entry, bool) {
	i, ok := x.byKey[Normalize(key)]
	if !ok {
		return Entry{}, false
	}
	return x.entries[i], true
}

// ResolveAlias normalizes free text, then tries an exact key match and an
// exact alias match in that order.
func (x *Index) ResolveAlias(freeText string) (Entry, bool) {
	q := Normalize(freeText)
	if q == "" {
		return Entry{}, false
	}
	if e, ok := x.Lookup(q); ok {
		return e, true
	}
	i, ok := x.byAlias[q]
	if !ok {
		return Entry{}, false
	}
	return x.entries[i], true
}

// Entries returns a copy of the indexed entries in load order.
func (x *Index) Entries() []Entry {
	out := make([]Entry, len(x.entries))
	copy(out, x.entries)
	return out
}

// Len reports the number of entries.
func (x *Index) Len() int {
	return len(x.entries)
}
