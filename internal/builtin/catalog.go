// Package builtin provides the compiled-in tool handlers and the default
// manifests that bind them.
package builtin

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"modbot/internal/tool"
)

//go:embed manifests/*.yaml
var manifests embed.FS

// Handler ids referenced from manifests.
const (
	HandlerAdd        = "builtin.add"
	HandlerCalculate  = "builtin.calculate"
	HandlerPassword   = "builtin.password"
	HandlerTextStats  = "builtin.text_stats"
	HandlerTasks      = "builtin.tasks"
	HandlerConvert    = "builtin.convert_units"
	HandlerDateInfo   = "builtin.date_info"
	HandlerSystemInfo = "builtin.system_info"
)

// NewCatalog returns a catalog holding every builtin handler.
func NewCatalog() (*tool.Catalog, error) {
	c := tool.NewCatalog()
	if err := Register(c, time.Now); err != nil {
		return nil, err
	}
	return c, nil
}

// Register adds the builtin handlers to c. now is the clock used by
// time-aware handlers.
func Register(c *tool.Catalog, now func() time.Time) error {
	tasks := taskManager{now: now}
	clk := clock{now: now}
	handlers := []struct {
		id string
		h  tool.Handler
	}{
		{HandlerAdd, tool.Typed(add)},
		{HandlerCalculate, tool.Typed(calculate)},
		{HandlerPassword, tool.Typed(password)},
		{HandlerTextStats, tool.Typed(textStats)},
		{HandlerTasks, tool.Typed(tasks.handle)},
		{HandlerConvert, tool.Typed(convertUnits)},
		{HandlerDateInfo, tool.Typed(clk.dateInfo)},
		{HandlerSystemInfo, tool.Typed(systemInfo)},
	}
	for _, h := range handlers {
		if err := c.Register(h.id, h.h); err != nil {
			return err
		}
	}
	return nil
}

// WriteDefaults copies the default manifests into dir. Existing files are
// left alone unless overwrite is set. It returns the names written.
func WriteDefaults(dir string, overwrite bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tools dir: %w", err)
	}
	entries, err := fs.ReadDir(manifests, "manifests")
	if err != nil {
		return nil, err
	}
	var written []string
	for _, e := range entries {
		dst := filepath.Join(dir, e.Name())
		if !overwrite {
			if _, err := os.Stat(dst); err == nil {
				continue
			}
		}
		data, err := manifests.ReadFile("manifests/" + e.Name())
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", e.Name(), err)
		}
		written = append(written, e.Name())
	}
	return written, nil
}
