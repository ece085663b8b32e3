package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"modbot/internal/domain"
)

// LoadFailure describes one tool module (or one entry within it) that
// could not be loaded.
type LoadFailure struct {
	Source string
	Tool   string // empty when the whole file failed
	Err    error
}

func (f LoadFailure) Error() string {
	if f.Tool != "" {
		return fmt.Sprintf("%s (%s): %v", f.Source, f.Tool, f.Err)
	}
	return fmt.Sprintf("%s: %v", f.Source, f.Err)
}

type ScanResult struct {
	Loaded   []*Descriptor
	Failures []LoadFailure
}

type LoaderConfig struct {
	Dir     string
	Catalog *Catalog
	Command CommandConfig
}

// Loader discovers tool manifests in a directory and turns them into
// descriptors.
type Loader struct {
	dir      string
	catalog  *Catalog
	command  CommandConfig
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

func NewLoader(cfg LoaderConfig, logger *slog.Logger) *Loader {
	if cfg.Catalog == nil {
		cfg.Catalog = NewCatalog()
	}
	return &Loader{
		dir:      cfg.Dir,
		catalog:  cfg.Catalog,
		command:  cfg.Command,
		lookPath: exec.LookPath,
		logger:   logger,
	}
}

func (l *Loader) Dir() string { return l.dir }

// Scan reads every candidate file in the tools directory in lexical order.
// A file that fails to load is reported in Failures and does not stop the
// scan. Only an unreadable directory or a cancelled ctx return an error.
func (l *Loader) Scan(ctx context.Context) (*ScanResult, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read tools dir: %w", err)
	}

	res := &ScanResult{}
	seen := make(map[string]string) // name -> source of the retained descriptor
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !IsManifest(entry.Name()) {
			continue
		}

		source := entry.Name()
		descs, failures := l.loadFile(filepath.Join(l.dir, source), source)
		res.Failures = append(res.Failures, failures...)
		for _, d := range descs {
			if first, dup := seen[d.Name()]; dup {
				err := &domain.ToolError{
					Kind:    domain.ErrNameCollision,
					Tool:    d.Name(),
					Message: fmt.Sprintf("already provided by %s", first),
				}
				l.logger.Warn("tool name collision", "tool", d.Name(), "source", source, "kept", first)
				res.Failures = append(res.Failures, LoadFailure{Source: source, Tool: d.Name(), Err: err})
				continue
			}
			seen[d.Name()] = source
			res.Loaded = append(res.Loaded, d)
			l.logger.Debug("loaded tool", "tool", d.Name(), "version", d.Version(), "source", source)
		}
	}

	l.logger.Info("tool scan complete", "dir", l.dir, "loaded", len(res.Loaded), "failed", len(res.Failures))
	return res, nil
}

func (l *Loader) loadFile(path, source string) ([]*Descriptor, []LoadFailure) {
	fail := func(tool string, err error) LoadFailure {
		var te *domain.ToolError
		if !errors.As(err, &te) {
			err = &domain.ToolError{Kind: domain.ErrLoad, Tool: tool, Message: err.Error()}
		}
		l.logger.Warn("tool load failed", "source", source, "tool", tool, "err", err)
		return LoadFailure{Source: source, Tool: tool, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []LoadFailure{fail("", err)}
	}
	doc, err := decodeDocument(source, data)
	if err != nil {
		return nil, []LoadFailure{fail("", fmt.Errorf("parse: %w", err))}
	}
	entries, isModule, err := rawRecords(doc)
	if !isModule {
		l.logger.Debug("not a tool module, skipping", "source", source)
		return nil, nil
	}
	if err != nil {
		return nil, []LoadFailure{fail("", err)}
	}
	defaults, _ := doc["defaults"].(map[string]any)

	var descs []*Descriptor
	var failures []LoadFailure
	for _, entry := range entries {
		rec, err := parseRecord(entry, defaults)
		if err != nil {
			failures = append(failures, fail(rec.Name, err))
			continue
		}
		rec.Source = source
		d, err := l.build(rec)
		if err != nil {
			failures = append(failures, fail(rec.Name, err))
			continue
		}
		descs = append(descs, d)
	}
	return descs, failures
}

func (l *Loader) build(rec record) (*Descriptor, error) {
	var h Handler
	if rec.HasHandler {
		found, ok := l.catalog.Lookup(rec.Handler)
		if !ok {
			return nil, fmt.Errorf("missing dependency: no handler %q", rec.Handler)
		}
		h = found
	} else {
		bin, err := l.resolveCommand(rec.Command[0])
		if err != nil {
			return nil, fmt.Errorf("missing dependency: %w", err)
		}
		argv := append([]string{bin}, rec.Command[1:]...)
		h = NewCommandHandler(argv, rec.Params, rec.Timeout, l.command.withDir(l.dir))
	}
	return NewDescriptor(rec.Meta, h)
}

// resolveCommand finds argv[0]. Paths containing a separator are relative to
// the tools directory; bare names are looked up on PATH.
func (l *Loader) resolveCommand(name string) (string, error) {
	if !strings.ContainsRune(name, '/') && !strings.ContainsRune(name, filepath.Separator) {
		p, err := l.lookPath(name)
		if err != nil {
			return "", fmt.Errorf("command %q not found on PATH", name)
		}
		return p, nil
	}
	p := filepath.FromSlash(name)
	if !filepath.IsAbs(p) {
		p = filepath.Join(l.dir, p)
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("command %q not found", name)
	}
	if info.IsDir() {
		return "", fmt.Errorf("command %q is a directory", name)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p, nil
	}
	return abs, nil
}
