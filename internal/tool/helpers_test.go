package tool

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"modbot/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

type addArgs struct {
	A float64 `json:"a" jsonschema:"description=first addend"`
	B float64 `json:"b" jsonschema:"description=second addend"`
}

func addHandler() Handler {
	return Typed(func(ctx context.Context, sc *session.Context, args addArgs) (string, error) {
		return strconv.FormatFloat(args.A+args.B, 'f', -1, 64), nil
	})
}

// echoHandler returns a fixed result and counts calls.
type echoHandler struct {
	result string
	err    error
	calls  int
	last   map[string]any
}

func (h *echoHandler) Call(ctx context.Context, sc *session.Context, args map[string]any) (string, error) {
	h.calls++
	h.last = args
	return h.result, h.err
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	if err := c.Register("add", addHandler()); err != nil {
		t.Fatalf("register add: %v", err)
	}
	if err := c.Register("echo", &echoHandler{result: "echo"}); err != nil {
		t.Fatalf("register echo: %v", err)
	}
	return c
}

func mustDescriptor(t *testing.T, m Meta, h Handler) *Descriptor {
	t.Helper()
	d, err := NewDescriptor(m, h)
	if err != nil {
		t.Fatalf("NewDescriptor(%q): %v", m.Name, err)
	}
	return d
}
