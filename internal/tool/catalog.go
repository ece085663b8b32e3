package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"modbot/internal/domain"
	"modbot/internal/session"
)

// Catalog maps handler ids to compiled-in handlers. Manifests refer to
// handlers by id. A Catalog is owned by whoever builds the runtime; there
// is no package-level default.
type Catalog struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewCatalog() *Catalog {
	return &Catalog{handlers: make(map[string]Handler)}
}

// Register adds h under id. Duplicate ids and handlers whose signature
// could not be introspected are rejected.
func (c *Catalog) Register(id string, h Handler) error {
	if id == "" {
		return fmt.Errorf("handler id is empty")
	}
	if h == nil {
		return fmt.Errorf("handler %q is nil", id)
	}
	if th, ok := h.(interface{ signatureErr() error }); ok {
		if err := th.signatureErr(); err != nil {
			return fmt.Errorf("handler %q: %w", id, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.handlers[id]; exists {
		return fmt.Errorf("handler %q already registered", id)
	}
	c.handlers[id] = h
	return nil
}

func (c *Catalog) Lookup(id string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[id]
	return h, ok
}

// IDs returns the registered handler ids sorted.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HandlerFunc adapts a plain function with an untyped signature. Tools
// bound to it load with an empty parameter list and receive every argument
// the oracle sent.
type HandlerFunc func(ctx context.Context, sc *session.Context, args map[string]any) (string, error)

func (f HandlerFunc) Call(ctx context.Context, sc *session.Context, args map[string]any) (string, error) {
	return f(ctx, sc, args)
}

func Untyped(fn func(ctx context.Context, sc *session.Context, args map[string]any) (string, error)) Handler {
	return HandlerFunc(fn)
}

type typedHandler[A any] struct {
	fn     func(ctx context.Context, sc *session.Context, args A) (string, error)
	params []domain.Param
	err    error
}

// Typed wraps fn whose argument struct A is the declared signature. Each
// exported field becomes a parameter named after its json tag. A field is
// required unless its json tag has omitempty. Purpose and default come from
// `jsonschema:"description=...,default=..."`.
func Typed[A any](fn func(ctx context.Context, sc *session.Context, args A) (string, error)) Handler {
	params, err := paramsOf[A]()
	return &typedHandler[A]{fn: fn, params: params, err: err}
}

func (h *typedHandler[A]) Params() []domain.Param { return h.params }
func (h *typedHandler[A]) Strict() bool           { return true }
func (h *typedHandler[A]) signatureErr() error    { return h.err }

func (h *typedHandler[A]) Call(ctx context.Context, sc *session.Context, args map[string]any) (string, error) {
	call, err := h.Bind(args)
	if err != nil {
		return "", err
	}
	return call(ctx, sc)
}

// Bind decodes args into A. Type mismatches come back as *BindError.
func (h *typedHandler[A]) Bind(args map[string]any) (Call, error) {
	var a A
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, bindError(err)
	}
	return func(ctx context.Context, sc *session.Context) (string, error) {
		return h.fn(ctx, sc, a)
	}, nil
}

// BindError reports an argument that could not be decoded into the
// handler's argument struct.
type BindError struct {
	Field    string
	Expected string
	Got      string
	Err      error
}

func (e *BindError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode arguments: %v", e.Err)
	}
	return fmt.Sprintf("field %q: expected %s, got %s", e.Field, e.Expected, e.Got)
}

func (e *BindError) Unwrap() error { return e.Err }

func bindError(err error) error {
	var te *json.UnmarshalTypeError
	if !errors.As(err, &te) {
		return &BindError{Err: err}
	}
	field, _, _ := strings.Cut(te.Field, ".")
	return &BindError{Field: field, Expected: te.Type.String(), Got: te.Value, Err: err}
}

func paramsOf[A any]() ([]domain.Param, error) {
	var zero A
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("argument type %v is not a struct", t)
	}

	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(zero)
	if s.Properties == nil {
		return nil, nil
	}

	var params []domain.Param
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		params = append(params, domain.Param{
			Name:     pair.Key,
			Type:     schemaType(prop),
			Purpose:  prop.Description,
			Required: slices.Contains(s.Required, pair.Key),
			Default:  prop.Default,
		})
	}
	return params, nil
}

func schemaType(s *jsonschema.Schema) domain.ParamType {
	switch t := domain.ParamType(s.Type); t {
	case domain.TypeString, domain.TypeNumber, domain.TypeInteger,
		domain.TypeBoolean, domain.TypeArray, domain.TypeObject:
		return t
	}
	return domain.TypeAny
}
