package labelkb

import (
	"sync/atomic"
)

// Registry serves lookups from the current index and lets an import swap
// in a new one without blocking readers.
type Registry struct {
	current atomic.Pointer[Index]
}

// NewRegistry starts with idx, or an empty index when idx is nil.
func NewRegistry(idx *Index) *Registry {
	r := &Registry{}
	if idx == nil {
		idx, _ = NewIndex(nil)
	}
	r.current.Store(idx)
	return r
}

// Index returns the index currently in service.
func (r *Registry) Index() *Index {
	return r.current.Load()
}

// Replace validates entries and, only if they are consistent, makes them
// the index in service. On error the previous index stays.
func (r *Registry) Replace(entries []Entry) (*Index, error) {
	idx, err := NewIndex(entries)
	if err != nil {
		return nil, err
	}
	r.current.Store(idx)
	return idx, nil
}

func (r *Registry) Lookup(normalizedKey string) (Entry, bool) {
	return r.Index().Lookup(normalizedKey)
}

func (r *Registry) ResolveAlias(freeText string) (Entry, bool) {
	return r.Index().ResolveAlias(freeText)
}
