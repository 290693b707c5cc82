// Package extractors turns a target reference into raw event payloads, one
// extractor per source kind.
package extractors

import (
	"fmt"
	"sort"
	"sync"

	"evently/internal/types"
)

type Registry struct {
	mu         sync.RWMutex
	extractors map[types.SourceKind]types.Extractor
}

func NewRegistry(extractors ...types.Extractor) *Registry {
	r := &Registry{extractors: make(map[types.SourceKind]types.Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register adds e under its kind, replacing any earlier registration.
func (r *Registry) Register(e types.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[e.Kind()] = e
}

// Get returns the extractor for kind, or an error wrapping
// types.ErrNoExtractor.
func (r *Registry) Get(kind types.SourceKind) (types.Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.extractors[kind]
	if !ok {
		return nil, types.NoExtractorError(kind)
	}
	return e, nil
}

func (r *Registry) Kinds() []types.SourceKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]types.SourceKind, 0, len(r.extractors))
	for k := range r.extractors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (r *Registry) String() string {
	return fmt.Sprintf("extractors%v", r.Kinds())
}
