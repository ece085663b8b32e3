package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"modbot/internal/agent"
	"modbot/internal/audit"
	"modbot/internal/builtin"
	"modbot/internal/config"
	"modbot/internal/metrics"
	"modbot/internal/provider"
	"modbot/internal/session"
	"modbot/internal/tool"
	"modbot/internal/watch"
)

// runtime is the wired tool stack shared by chat, call and tools.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	loader     *tool.Loader
	registry   *tool.Registry
	reloader   *observedReloader
	dispatcher *tool.Dispatcher
	filter     *agent.ToolFilter
	metrics    *metrics.Collector
	audit      *audit.SQLiteStore // nil when audit is disabled
	report     *tool.ReloadReport // result of the initial scan

	watcher *watch.Watcher
	server  *http.Server
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// newRuntime scans the tools directory and wires the dispatcher. A tools
// directory that cannot be read is fatal; individual bad files are not.
func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	catalog, err := builtin.NewCatalog()
	if err != nil {
		return nil, fmt.Errorf("builtin catalog: %w", err)
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: tool.NewRegistry(logger),
		filter:   agent.NewToolFilter(cfg.Tools.Enabled, cfg.Tools.Denied),
		metrics:  metrics.NewCollector(),
	}
	rt.loader = tool.NewLoader(tool.LoaderConfig{
		Dir:     cfg.Tools.Dir,
		Catalog: catalog,
		Command: tool.CommandConfig{
			Timeout:        seconds(cfg.Tools.Command.TimeoutSeconds),
			MaxOutputBytes: cfg.Tools.Command.MaxOutputBytes,
		},
	}, logger)
	rt.reloader = &observedReloader{
		next:     tool.NewReloader(rt.loader, rt.registry, logger),
		registry: rt.registry,
		metrics:  rt.metrics,
	}

	rt.report, err = rt.reloader.Reload(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tools from %s: %w (run `modbot init` to create it)", cfg.Tools.Dir, err)
	}
	for _, f := range rt.report.Failures {
		logger.Warn("tool not loaded", "source", f.Source, "tool", f.Tool, "err", f.Err)
	}

	opts := []tool.DispatcherOption{
		tool.WithObserver(rt.metrics),
		tool.WithTimeout(seconds(cfg.Tools.TimeoutSeconds)),
	}
	if cfg.Audit.Enabled {
		store, err := audit.NewSQLiteStore(cfg.Audit.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		if _, err := store.Prune(ctx, time.Duration(cfg.Audit.RetentionDays)*24*time.Hour); err != nil {
			logger.Warn("audit prune failed", "err", err)
		}
		rt.audit = store
		opts = append(opts, tool.WithRecorder(store))
	}
	rt.dispatcher = tool.NewDispatcher(rt.filter.Lookup(rt.registry), logger, opts...)
	return rt, nil
}

// startBackground starts the optional directory watcher and metrics server.
// onReload, when set, is told about every watcher-driven reload.
func (rt *runtime) startBackground(ctx context.Context, onReload func(*tool.ReloadReport)) error {
	if rt.cfg.Tools.Watch {
		rt.watcher = watch.New(rt.cfg.Tools.Dir, rt.reloader,
			time.Duration(rt.cfg.Tools.WatchDebounceMs)*time.Millisecond, rt.logger)
		if onReload != nil {
			rt.watcher.OnReload(onReload)
		}
		if err := rt.watcher.Start(ctx); err != nil {
			return err
		}
	}

	if rt.cfg.Metrics.Enabled {
		endpoint := rt.cfg.Metrics.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		mux := http.NewServeMux()
		mux.Handle(endpoint, rt.metrics.Handler())
		rt.server = &http.Server{
			Addr:              rt.cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := rt.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.logger.Error("metrics server error", "err", err)
			}
		}()
		rt.logger.Info("metrics enabled", "addr", rt.cfg.Metrics.Listen, "path", endpoint)
	}
	return nil
}

// newLoop builds the oracle and the agent loop around the runtime.
func (rt *runtime) newLoop(ctx context.Context) (*agent.Loop, error) {
	factory := provider.NewFactory(rt.cfg, rt.logger)
	oracle, err := factory.Get("")
	if err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}
	if err := oracle.Healthy(ctx); err != nil {
		rt.logger.Warn("oracle unhealthy at startup", "provider", oracle.Name(), "err", err)
	}

	return agent.NewLoop(agent.LoopConfig{
		Oracle:        metrics.InstrumentOracle(oracle, rt.metrics),
		Tools:         rt.registry,
		Dispatcher:    rt.dispatcher,
		Reloader:      rt.reloader,
		Filter:        rt.filter,
		Limiter:       agent.NewRateLimiter(5, float64(rt.cfg.General.RateLimitPerMinute)),
		Logger:        rt.logger,
		Model:         factory.Model(),
		Temperature:   rt.cfg.Oracle.Temperature,
		MaxTokens:     rt.cfg.Oracle.MaxTokens,
		MaxIterations: rt.cfg.General.MaxIterations,
		SystemPrompt:  rt.cfg.General.SystemPrompt,
	}), nil
}

func (rt *runtime) newSession() *session.Context {
	prefs := session.DefaultPreferences()
	g := rt.cfg.General
	if g.Language != "" {
		prefs.Language = g.Language
	}
	if g.Timezone != "" {
		prefs.Timezone = g.Timezone
	}
	for k, v := range g.Units {
		prefs.Units[k] = v
	}
	return session.New(session.WithUserID(g.UserID), session.WithPreferences(prefs))
}

func (rt *runtime) Close() error {
	var errs []error
	if rt.watcher != nil {
		errs = append(errs, rt.watcher.Close())
	}
	if rt.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, rt.server.Shutdown(ctx))
		cancel()
	}
	if rt.audit != nil {
		errs = append(errs, rt.audit.Close())
	}
	return errors.Join(errs...)
}

// observedReloader publishes registry size and reload failures after every
// reload, whichever component triggered it.
type observedReloader struct {
	next     *tool.Reloader
	registry *tool.Registry
	metrics  *metrics.Collector
}

func (r *observedReloader) Reload(ctx context.Context) (*tool.ReloadReport, error) {
	rep, err := r.next.Reload(ctx)
	if err != nil {
		return nil, err
	}
	r.metrics.ObserveReload(len(rep.Failures))
	r.metrics.SetRegisteredTools(r.registry.Len())
	return rep, nil
}
