package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"modbot/internal/builtin"
	"modbot/internal/channel"
	"modbot/internal/config"
	"modbot/internal/tool"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	logLevel   string
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	root := &cobra.Command{
		Use:          "modbot",
		Short:        "modbot: a modular tool-calling assistant",
		Long:         "modbot loads tools from manifest files and lets a language model call them during a chat.",
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.modbot/config.json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override general.logLevel (debug, info, warn, error)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(callCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath()
}

// loadConfig reads .env files, then the config file (defaults when it is
// missing), and reconfigures the global logger from it.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	if found, err := config.LoadDotEnv(filepath.Join(filepath.Dir(cfgPath), ".env"), ".env"); err != nil {
		logger.Warn("could not load .env", "err", err)
	} else if len(found) > 0 {
		logger.Debug("loaded .env", "files", found)
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.General.LogLevel = logLevel
	}
	l, err := newLogger(cfg.General)
	if err != nil {
		return nil, err
	}
	logger = l
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// newLogger writes to general.logFile when set, otherwise to stderr.
func newLogger(g config.GeneralConfig) (*slog.Logger, error) {
	var w io.Writer = os.Stderr
	if g.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(g.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(g.LogLevel)})), nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config and tool manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}

			cfg := config.Defaults()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				fmt.Fprintf(cmd.OutOrStdout(), "Config exists, keeping %s\n", cfgPath)
				if existing, err := config.Load(cfgPath); err == nil {
					cfg = existing
				}
			} else {
				if err := config.Save(cfgPath, cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfgPath)
			}

			toolsDir := config.ExpandPath(cfg.Tools.Dir)
			written, err := builtin.WriteDefaults(toolsDir, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tools directory %s (%d manifests written)\n", toolsDir, len(written))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config and manifests")
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Graceful shutdown on signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	loop, err := rt.newLoop(ctx)
	if err != nil {
		return err
	}

	cli := channel.NewCLI(channel.CLIConfig{
		Agent:   loop,
		Session: rt.newSession(),
		Logger:  logger,
		In:      cmd.InOrStdin(),
		Out:     cmd.OutOrStdout(),
		Spinner: isTerminal(os.Stdout),
	})
	if err := rt.startBackground(ctx, func(rep *tool.ReloadReport) {
		cli.Notify(reloadNotice(rep))
	}); err != nil {
		return err
	}
	return cli.Run(ctx)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// reloadNotice summarizes a watcher-driven reload for the chat window.
func reloadNotice(rep *tool.ReloadReport) string {
	msg := fmt.Sprintf("tools reloaded: %d loaded", len(rep.Loaded))
	for _, part := range []struct {
		label string
		names []string
	}{{"added", rep.Added}, {"removed", rep.Removed}, {"changed", rep.Changed}} {
		if len(part.names) > 0 {
			msg += fmt.Sprintf(", %s %s", part.label, strings.Join(part.names, " "))
		}
	}
	if n := len(rep.Failures); n > 0 {
		msg += fmt.Sprintf(", %d failed (see `modbot tools check`)", n)
	}
	return msg
}
