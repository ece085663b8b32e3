package tool

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"modbot/internal/domain"
	"modbot/internal/session"
)

const (
	DefaultVersion  = "0.0.0"
	DefaultCategory = "uncategorized"
)

// versionRe accepts MAJOR[.MINOR[.PATCH]][-pre][+build].
var versionRe = regexp.MustCompile(`^\d+(\.\d+){0,2}(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

// Handler is the callable part of a tool. The session context is injected
// on every call; handlers must not retain it.
type Handler interface {
	Call(ctx context.Context, sc *session.Context, args map[string]any) (string, error)
}

// Signature is implemented by handlers that declare their parameters.
type Signature interface {
	Params() []domain.Param
	// Strict reports whether arguments outside Params are dropped before
	// the handler sees them.
	Strict() bool
}

// Call is a handler with its arguments already bound.
type Call func(ctx context.Context, sc *session.Context) (string, error)

// Binder is implemented by handlers that decode arguments into a typed
// value before running. A decode failure is an argument error, not an
// execution error.
type Binder interface {
	Bind(args map[string]any) (Call, error)
}

// Meta is the metadata record of one tool as found in a manifest.
type Meta struct {
	Name        string
	Description string
	Version     string
	Category    string
	Author      string
	Source      string
}

// Descriptor is the immutable identity and signature of a registered tool.
type Descriptor struct {
	name        string
	description string
	version     string
	category    string
	author      string
	source      string
	params      []domain.Param
	strict      bool
	handler     Handler
}

// NewDescriptor validates m and binds it to h. The parameter list is taken
// from h when it implements Signature, otherwise it is empty.
func NewDescriptor(m Meta, h Handler) (*Descriptor, error) {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return nil, loadErr(m.Name, "name must be a non-empty string")
	}
	desc := strings.TrimSpace(m.Description)
	if desc == "" {
		return nil, loadErr(name, "description must be a non-empty string")
	}
	if h == nil {
		return nil, loadErr(name, "no handler")
	}

	d := &Descriptor{
		name:        name,
		description: desc,
		version:     normalizeVersion(m.Version),
		category:    strings.TrimSpace(m.Category),
		author:      strings.TrimSpace(m.Author),
		source:      m.Source,
		handler:     h,
	}
	if d.category == "" {
		d.category = DefaultCategory
	}

	if sig, ok := h.(Signature); ok {
		params, err := checkParams(sig.Params())
		if err != nil {
			return nil, loadErr(name, err.Error())
		}
		d.params = params
		d.strict = sig.Strict()
	}
	return d, nil
}

func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || !versionRe.MatchString(v) {
		return DefaultVersion
	}
	return v
}

func checkParams(in []domain.Param) ([]domain.Param, error) {
	out := make([]domain.Param, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i, p := range in {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter %d has no name", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		if p.Type == "" {
			p.Type = domain.TypeAny
		}
		if !p.Type.Valid() {
			return nil, fmt.Errorf("parameter %q has unknown type %q", p.Name, p.Type)
		}
		out = append(out, p)
	}
	return out, nil
}

func loadErr(tool, msg string) error {
	return &domain.ToolError{Kind: domain.ErrLoad, Tool: tool, Message: msg}
}

func (d *Descriptor) Name() string        { return d.name }
func (d *Descriptor) Description() string { return d.description }
func (d *Descriptor) Version() string     { return d.version }
func (d *Descriptor) Category() string    { return d.category }
func (d *Descriptor) Author() string      { return d.author }
func (d *Descriptor) Source() string      { return d.source }
func (d *Descriptor) Handler() Handler    { return d.handler }
func (d *Descriptor) Strict() bool        { return d.strict }

// Params returns a copy of the declared parameters in declaration order.
func (d *Descriptor) Params() []domain.Param {
	out := make([]domain.Param, len(d.params))
	copy(out, d.params)
	return out
}

func (d *Descriptor) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        d.name,
		Description: d.description,
		Category:    d.category,
		Parameters:  d.Params(),
	}
}

// sameAs reports whether two descriptors would look identical to the oracle
// and came from the same source.
func (d *Descriptor) sameAs(o *Descriptor) bool {
	return d.name == o.name &&
		d.description == o.description &&
		d.version == o.version &&
		d.category == o.category &&
		d.source == o.source &&
		reflect.DeepEqual(d.params, o.params)
}
