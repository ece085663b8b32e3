package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scanner produces a fresh set of descriptors. *Loader is the production
// implementation.
type Scanner interface {
	Scan(ctx context.Context) (*ScanResult, error)
}

type ReloadReport struct {
	Loaded   []string
	Failures []LoadFailure
	Added    []string
	Removed  []string
	Changed  []string
	Duration time.Duration
}

// Reloader re-runs the scan and swaps the registry. Concurrent Reload calls
// are serialized.
type Reloader struct {
	mu       sync.Mutex
	scanner  Scanner
	registry *Registry
	logger   *slog.Logger
}

func NewReloader(scanner Scanner, registry *Registry, logger *slog.Logger) *Reloader {
	return &Reloader{scanner: scanner, registry: registry, logger: logger}
}

// Reload scans and installs. If the scan fails outright the registry keeps
// its current contents and the error is returned.
func (r *Reloader) Reload(ctx context.Context) (*ReloadReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	res, err := r.scanner.Scan(ctx)
	if err != nil {
		r.logger.Error("tool reload failed", "err", err)
		return nil, fmt.Errorf("scan: %w", err)
	}
	prev, err := r.registry.Install(res.Loaded)
	if err != nil {
		return nil, fmt.Errorf("install: %w", err)
	}

	report := diff(prev, res.Loaded)
	report.Failures = res.Failures
	report.Duration = time.Since(start)
	r.logger.Info("tools reloaded",
		"loaded", len(report.Loaded),
		"failed", len(report.Failures),
		"added", len(report.Added),
		"removed", len(report.Removed),
		"changed", len(report.Changed),
	)
	return report, nil
}

func diff(prev, next []*Descriptor) *ReloadReport {
	report := &ReloadReport{}
	old := make(map[string]*Descriptor, len(prev))
	for _, d := range prev {
		old[d.Name()] = d
	}
	kept := make(map[string]bool, len(next))
	for _, d := range next {
		report.Loaded = append(report.Loaded, d.Name())
		kept[d.Name()] = true
		o, existed := old[d.Name()]
		switch {
		case !existed:
			report.Added = append(report.Added, d.Name())
		case !o.sameAs(d):
			report.Changed = append(report.Changed, d.Name())
		}
	}
	for _, d := range prev {
		if !kept[d.Name()] {
			report.Removed = append(report.Removed, d.Name())
		}
	}
	return report
}
