package tool

import (
	"errors"
	"testing"

	"modbot/internal/domain"
)

func TestCoerceValue(t *testing.T) {
	cases := []struct {
		typ  domain.ParamType
		in   any
		want any
		ok   bool
	}{
		{domain.TypeNumber, "2.5", 2.5, true},
		{domain.TypeNumber, 3, 3.0, true},
		{domain.TypeNumber, true, nil, false},
		{domain.TypeInteger, 4.0, int64(4), true},
		{domain.TypeInteger, "7", int64(7), true},
		{domain.TypeInteger, 4.5, nil, false},
		{domain.TypeBoolean, "true", true, true},
		{domain.TypeBoolean, "FALSE", false, true},
		{domain.TypeBoolean, "yes", nil, false},
		{domain.TypeString, "x", "x", true},
		{domain.TypeString, 5, nil, false},
		{domain.TypeAny, 5, 5, true},
	}
	for _, c := range cases {
		got, ok := coerceValue(c.typ, c.in)
		if ok != c.ok {
			t.Errorf("%s(%v): ok=%v, want %v", c.typ, c.in, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("%s(%v): got %v (%T), want %v (%T)", c.typ, c.in, got, got, c.want, c.want)
		}
	}
}

func TestCoerceArgs_MissingRequired(t *testing.T) {
	params := []domain.Param{{Name: "a", Type: domain.TypeNumber, Required: true}}
	_, err := coerceArgs("add", params, true, map[string]any{})
	var te *domain.ToolError
	if !errors.As(err, &te) || !errors.Is(err, domain.ErrInvalidArguments) {
		t.Fatalf("expected InvalidArguments, got %v", err)
	}
	if te.Field != "a" || te.Expected != "number" {
		t.Fatalf("unexpected field/expected: %q %q", te.Field, te.Expected)
	}
}

func TestCoerceArgs_DefaultsAndExtras(t *testing.T) {
	params := []domain.Param{
		{Name: "length", Type: domain.TypeInteger, Default: 12},
		{Name: "symbols", Type: domain.TypeBoolean},
	}
	raw := map[string]any{"extra": "x"}

	strict, err := coerceArgs("pw", params, true, raw)
	if err != nil {
		t.Fatal(err)
	}
	if strict["length"] != int64(12) {
		t.Fatalf("expected default 12, got %v", strict["length"])
	}
	if _, ok := strict["extra"]; ok {
		t.Fatal("strict coercion should drop undeclared arguments")
	}
	if _, ok := strict["symbols"]; ok {
		t.Fatal("absent optional without default should stay absent")
	}

	loose, err := coerceArgs("pw", params, false, raw)
	if err != nil {
		t.Fatal(err)
	}
	if loose["extra"] != "x" {
		t.Fatal("non-strict coercion should pass undeclared arguments through")
	}
}

func TestCoerceArgs_WrongType(t *testing.T) {
	params := []domain.Param{{Name: "n", Type: domain.TypeInteger, Required: true}}
	_, err := coerceArgs("t", params, true, map[string]any{"n": "abc"})
	var te *domain.ToolError
	if !errors.As(err, &te) || te.Field != "n" || te.Expected != "integer" {
		t.Fatalf("expected InvalidArguments on n, got %v", err)
	}
}
