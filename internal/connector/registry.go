package connector

import (
	"sort"
	"strings"

	"github.com/ledgerforgelabs/ledgerforge/internal/connector/domain"
)

// Registry holds the closed set of connectors, keyed by provider key.
type Registry struct {
	connectors map[string]domain.Connector
}

func NewRegistry(connectors ...domain.Connector) *Registry {
	r := &Registry{connectors: make(map[string]domain.Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Descriptor().Key] = c
	}
	return r
}

func (r *Registry) Get(key string) (domain.Connector, bool) {
	c, ok := r.connectors[strings.ToLower(strings.TrimSpace(key))]
	return c, ok
}

func (r *Registry) Exists(key string) bool {
	_, ok := r.Get(key)
	return ok
}

func (r *Registry) Descriptors() []domain.Descriptor {
	out := make([]domain.Descriptor, 0, len(r.connectors))
	for _, c := range r.connectors {
		out = append(out, c.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
