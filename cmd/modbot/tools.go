package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"modbot/internal/domain"
)

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tools directory",
	}

	var category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List loaded tools grouped by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			return writeToolList(cmd.OutOrStdout(), rt, category)
		},
	}
	list.Flags().StringVar(&category, "category", "", "only show this category")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load every manifest and report files that fail",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Audit.Enabled = false
			rt, err := newRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d tools loaded\n", cfg.Tools.Dir, len(rt.report.Loaded))
			for _, f := range rt.report.Failures {
				fmt.Fprintf(out, "  FAIL %s\n", f.Error())
			}
			if n := len(rt.report.Failures); n > 0 {
				return fmt.Errorf("%d manifest problems", n)
			}
			fmt.Fprintln(out, "  all manifests OK")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "schema [name]",
		Short: "Print the schemas handed to the language model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			schemas := rt.filter.FilterSchemas(rt.registry.ExportSchemas())
			var v any = schemas
			if len(args) == 1 {
				s, ok := findSchema(schemas, args[0])
				if !ok {
					return fmt.Errorf("no tool named %q", args[0])
				}
				v = s
			}
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})
	return cmd
}

func callCmd() *cobra.Command {
	var rawArgs string
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke a single tool without the language model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			return runCall(cmd.Context(), cmd.OutOrStdout(), rt, args[0], rawArgs)
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "{}", "tool arguments as a JSON object")
	return cmd
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newRuntime(ctx, cfg, logger)
}

func runCall(ctx context.Context, out io.Writer, rt *runtime, name, rawArgs string) error {
	args := map[string]any{}
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Errorf("--args must be a JSON object: %w", err)
		}
	}
	result, err := rt.dispatcher.Invoke(ctx, name, args, rt.newSession())
	if err != nil {
		fmt.Fprintln(out, domain.RenderToolError(err))
		return err
	}
	fmt.Fprintln(out, result)
	return nil
}

func writeToolList(out io.Writer, rt *runtime, category string) error {
	cats := rt.registry.Categories()
	if category != "" {
		cats = []string{category}
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	shown := 0
	for _, cat := range cats {
		var rows []string
		for _, d := range rt.registry.List(cat) {
			if !rt.filter.IsAllowed(d.Name()) {
				continue
			}
			rows = append(rows, fmt.Sprintf("  %s\t%s\t%s", d.Name(), d.Version(), d.Description()))
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(tw, "[%s]\n", cat)
		for _, r := range rows {
			fmt.Fprintln(tw, r)
		}
		shown += len(rows)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if shown == 0 {
		if category != "" {
			fmt.Fprintf(out, "No tools in category %q.\n", category)
		} else {
			fmt.Fprintln(out, "No tools loaded.")
		}
	}
	return nil
}

func findSchema(schemas []domain.ToolSchema, name string) (domain.ToolSchema, bool) {
	for _, s := range schemas {
		if s.Name == name {
			return s, true
		}
	}
	return domain.ToolSchema{}, false
}
