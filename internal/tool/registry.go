package tool

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"modbot/internal/domain"
)

// snapshot is one immutable generation of the registry.
type snapshot struct {
	byName     map[string]*Descriptor
	order      []*Descriptor
	byCategory map[string][]*Descriptor
	categories []string
}

func newSnapshot(descs []*Descriptor) (*snapshot, error) {
	s := &snapshot{
		byName:     make(map[string]*Descriptor, len(descs)),
		order:      make([]*Descriptor, 0, len(descs)),
		byCategory: make(map[string][]*Descriptor),
	}
	for i, d := range descs {
		if d == nil {
			return nil, fmt.Errorf("descriptor %d is nil", i)
		}
		if _, dup := s.byName[d.Name()]; dup {
			return nil, &domain.ToolError{Kind: domain.ErrNameCollision, Tool: d.Name(), Message: "registered twice"}
		}
		s.byName[d.Name()] = d
		s.order = append(s.order, d)
		if _, ok := s.byCategory[d.Category()]; !ok {
			s.categories = append(s.categories, d.Category())
		}
		s.byCategory[d.Category()] = append(s.byCategory[d.Category()], d)
	}
	return s, nil
}

// Registry holds the loaded tools. Reads are lock-free; Install replaces
// the whole catalog in one atomic store, so concurrent readers observe
// either the old or the new set and never a mix.
type Registry struct {
	cur    atomic.Pointer[snapshot]
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{logger: logger}
	empty, _ := newSnapshot(nil)
	r.cur.Store(empty)
	return r
}

// Install validates descs and swaps them in, returning the previous set.
// On error the registry is left unchanged.
func (r *Registry) Install(descs []*Descriptor) ([]*Descriptor, error) {
	next, err := newSnapshot(descs)
	if err != nil {
		return nil, err
	}
	prev := r.cur.Swap(next)
	r.logger.Debug("registry installed", "tools", len(next.order), "previous", len(prev.order))
	return prev.order, nil
}

func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.cur.Load().byName[name]
	return d, ok
}

// List returns the tools of category in registration order. An empty
// category lists everything.
func (r *Registry) List(category string) []*Descriptor {
	s := r.cur.Load()
	src := s.order
	if category != "" {
		src = s.byCategory[category]
	}
	out := make([]*Descriptor, len(src))
	copy(out, src)
	return out
}

// Categories returns category names in the order they were first seen.
func (r *Registry) Categories() []string {
	s := r.cur.Load()
	out := make([]string, len(s.categories))
	copy(out, s.categories)
	return out
}

// ExportSchemas returns the oracle-facing view of every tool, one entry per
// registered tool.
func (r *Registry) ExportSchemas() []domain.ToolSchema {
	s := r.cur.Load()
	out := make([]domain.ToolSchema, 0, len(s.order))
	for _, d := range s.order {
		out = append(out, d.Schema())
	}
	return out
}

func (r *Registry) Names() []string {
	s := r.cur.Load()
	names := make([]string, 0, len(s.order))
	for _, d := range s.order {
		names = append(names, d.Name())
	}
	return names
}

func (r *Registry) Len() int {
	return len(r.cur.Load().order)
}
