package tool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"modbot/internal/domain"
)

func newTestLoader(t *testing.T, dir string) *Loader {
	t.Helper()
	return NewLoader(LoaderConfig{Dir: dir, Catalog: testCatalog(t)}, testLogger())
}

func TestScan_MissingDirIsFatal(t *testing.T) {
	l := newTestLoader(t, filepath.Join(t.TempDir(), "nope"))
	if _, err := l.Scan(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestScan_EmptyDir(t *testing.T) {
	res, err := newTestLoader(t, t.TempDir()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Loaded) != 0 || len(res.Failures) != 0 {
		t.Fatalf("expected nothing, got %+v", res)
	}
}

func TestScan_IsolatesBrokenModule(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_add.yaml", "tool:\n  name: add\n  description: Add two numbers\n  handler: add\n")
	writeFile(t, dir, "b_broken.yaml", "tool: [this is: not valid\n")
	writeFile(t, dir, "c_echo.yaml", "tool:\n  name: echo\n  description: Echo\n  handler: echo\n")

	res, err := newTestLoader(t, dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Loaded) != 2 {
		t.Fatalf("expected 2 loaded, got %d", len(res.Loaded))
	}
	if len(res.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", res.Failures)
	}
	f := res.Failures[0]
	if f.Source != "b_broken.yaml" || !errors.Is(f.Err, domain.ErrLoad) {
		t.Fatalf("unexpected failure: %+v", f)
	}
}

func TestScan_SkipsPrivateAndNonModules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "_draft.yaml", "tool:\n  name: draft\n  description: d\n  handler: echo\n")
	writeFile(t, dir, ".hidden.yaml", "tool:\n  name: hidden\n  description: d\n  handler: echo\n")
	writeFile(t, dir, "notes.yaml", "title: just some notes\n")
	writeFile(t, dir, "readme.txt", "tool: ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := newTestLoader(t, dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Loaded) != 0 || len(res.Failures) != 0 {
		t.Fatalf("expected nothing loaded or failed, got %+v", res)
	}
}

func TestScan_NameCollisionFirstWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1.yaml", "tool:\n  name: dup\n  description: first\n  handler: echo\n")
	writeFile(t, dir, "2.yaml", "tool:\n  name: dup\n  description: second\n  handler: add\n")

	res, err := newTestLoader(t, dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Loaded) != 1 || res.Loaded[0].Description() != "first" {
		t.Fatalf("expected first definition retained, got %+v", res.Loaded)
	}
	if len(res.Failures) != 1 || !errors.Is(res.Failures[0].Err, domain.ErrNameCollision) {
		t.Fatalf("expected one collision failure, got %v", res.Failures)
	}
	if res.Failures[0].Source != "2.yaml" {
		t.Fatalf("collision should be attributed to the later file, got %q", res.Failures[0].Source)
	}
}

func TestScan_MultipleToolsPerFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "math.yaml", `
defaults:
  category: math
  author: tests
tools:
  - name: add
    description: Add numbers
    version: 1.2.0
    handler: add
  - name: bad
    description: ""
    handler: echo
  - name: missing
    description: Needs a handler that does not exist
    handler: nope
  - name: plus
    description: Same handler, different name
    category: arithmetic
    handler: add
`)
	res, err := newTestLoader(t, dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Loaded) != 2 {
		t.Fatalf("expected 2 loaded, got %d (%v)", len(res.Loaded), res.Failures)
	}
	add := res.Loaded[0]
	if add.Name() != "add" || add.Category() != "math" || add.Version() != "1.2.0" || add.Author() != "tests" {
		t.Fatalf("unexpected add descriptor: %s %s %s %s", add.Name(), add.Category(), add.Version(), add.Author())
	}
	if res.Loaded[1].Category() != "arithmetic" {
		t.Fatalf("explicit category should override defaults, got %q", res.Loaded[1].Category())
	}
	if len(res.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %v", res.Failures)
	}
	if res.Failures[0].Tool != "bad" || res.Failures[1].Tool != "missing" {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}
}

func TestScan_NonStringName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "num.yaml", "tool:\n  name: 42\n  description: numeric name\n  handler: echo\n")
	res, err := newTestLoader(t, dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Loaded) != 0 || len(res.Failures) != 1 {
		t.Fatalf("expected a single failure, got %+v", res)
	}
}

func TestScan_JSONManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "echo.json", `{"tool": {"name": "echo", "description": "Echo", "handler": "echo", "version": 2}}`)
	res, err := newTestLoader(t, dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Loaded) != 1 {
		t.Fatalf("expected 1 loaded, got %+v", res)
	}
	if res.Loaded[0].Version() != "2" {
		t.Fatalf("expected version 2, got %q", res.Loaded[0].Version())
	}
	if res.Loaded[0].Source() != "echo.json" {
		t.Fatalf("unexpected source %q", res.Loaded[0].Source())
	}
}

func TestScan_CommandNotFound(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ext.yaml", `
tools:
  - name: local
    description: Missing script
    command: ["./bin/missing.sh"]
  - name: onpath
    description: Missing binary
    command: ["definitely-not-a-real-binary-xyz"]
`)
	res, err := newTestLoader(t, dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Loaded) != 0 || len(res.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %+v", res)
	}
}

func TestScan_CommandTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()
	writeScript(t, dir, "hello.sh", `echo "hello $TOOL_PARAM_NAME"`)
	writeFile(t, dir, "hello.yaml", `
tool:
  name: hello
  description: Say hello
  command: ["./hello.sh"]
  timeout: 5s
  parameters:
    - name: name
      type: string
      description: who
      required: true
`)
	res, err := newTestLoader(t, dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Loaded) != 1 {
		t.Fatalf("expected 1 loaded, got %+v", res)
	}
	params := res.Loaded[0].Params()
	if len(params) != 1 || params[0].Name != "name" || !params[0].Required || params[0].Type != domain.TypeString {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestScan_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "tool:\n  name: echo\n  description: Echo\n  handler: echo\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestLoader(t, dir).Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestScan_NumericVersionKeepsText(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `
defaults:
  version: 1.0
tools:
  - name: minor
    description: Ten minor releases in
    version: 1.10
    handler: add
  - name: inherited
    description: Takes the default version
    handler: echo
  - name: whole
    description: Integer version
    version: 3
    handler: echo
`)
	writeFile(t, dir, "b.json", `{"tool": {"name": "jsonminor", "description": "d", "handler": "echo", "version": 2.10}}`)

	res, err := newTestLoader(t, dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := map[string]string{}
	for _, d := range res.Loaded {
		got[d.Name()] = d.Version()
	}
	want := map[string]string{"minor": "1.10", "inherited": "1.0", "whole": "3", "jsonminor": "2.10"}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s: expected version %q, got %q", name, v, got[name])
		}
	}
}
