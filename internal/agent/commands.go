package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"modbot/internal/session"
)

// ChatCommand is a parsed meta-command.
type ChatCommand struct {
	Name string   // command name without "/"
	Args []string // arguments after the command
	Raw  string   // original full text
}

var metaCommands = map[string]bool{
	"help":   true,
	"tools":  true,
	"stats":  true,
	"reload": true,
}

// ParseCommand recognizes meta-commands, with or without a leading "/".
// Without the slash only the bare word is accepted ("tools" may take one
// category argument), so ordinary sentences starting with "tools" still
// reach the oracle. Returns nil for anything else.
func ParseCommand(text string) *ChatCommand {
	text = strings.TrimSpace(text)
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil
	}

	slashed := strings.HasPrefix(parts[0], "/")
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if !metaCommands[name] {
		return nil
	}
	args := parts[1:]
	if !slashed {
		maxArgs := 0
		if name == "tools" {
			maxArgs = 1
		}
		if len(args) > maxArgs {
			return nil
		}
	}
	return &ChatCommand{Name: name, Args: args, Raw: text}
}

// HandleCommand runs a meta-command. Commands never reach the oracle and
// never touch the conversation history.
func (l *Loop) HandleCommand(ctx context.Context, cmd *ChatCommand, sc *session.Context) string {
	switch cmd.Name {
	case "tools":
		category := ""
		if len(cmd.Args) > 0 {
			category = cmd.Args[0]
		}
		return l.toolsText(category)
	case "stats":
		return l.statsText(sc)
	case "reload":
		return l.reloadText(ctx)
	default:
		return helpText()
	}
}

func helpText() string {
	return `Commands (the leading "/" is optional):

help              Show this help message
tools [category]  List available tools, grouped by category
stats             Show statistics for this session
reload            Rescan the tools directory
exit              Leave the chat`
}

func (l *Loop) toolsText(category string) string {
	categories := l.tools.Categories()
	if category != "" {
		categories = []string{category}
	}

	var sb strings.Builder
	total := 0
	for _, cat := range categories {
		var lines []string
		for _, d := range l.tools.List(cat) {
			if !l.filter.IsAllowed(d.Name()) {
				continue
			}
			lines = append(lines, fmt.Sprintf("  • %s: %s", d.Name(), d.Description()))
		}
		if len(lines) == 0 {
			continue
		}
		total += len(lines)
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", cat, strings.Join(lines, "\n"))
	}
	if total == 0 {
		if category != "" {
			return fmt.Sprintf("No tools in category %q.", category)
		}
		return "No tools loaded."
	}
	return fmt.Sprintf("Available tools (%d):\n%s", total, sb.String())
}

func (l *Loop) statsText(sc *session.Context) string {
	st := sc.Stats()
	var sb strings.Builder
	sb.WriteString("Session statistics:\n")
	fmt.Fprintf(&sb, "  • session: %s\n", sc.ID())
	fmt.Fprintf(&sb, "  • user: %s\n", sc.UserID())
	fmt.Fprintf(&sb, "  • messages: %d (%d from you)\n", st.Turns, st.UserTurns)
	fmt.Fprintf(&sb, "  • duration: %s\n", st.Elapsed.Round(time.Second))
	fmt.Fprintf(&sb, "  • tool calls: %d across %d tools\n", st.Invocations, st.DistinctTools)
	fmt.Fprintf(&sb, "  • tools loaded: %d\n", l.tools.Len())
	if keys := sc.ScratchKeys(); len(keys) > 0 {
		fmt.Fprintf(&sb, "  • stored data: %s\n", strings.Join(keys, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (l *Loop) reloadText(ctx context.Context) string {
	if l.reloader == nil {
		return "Reload is not available."
	}
	rep, err := l.reloader.Reload(ctx)
	if err != nil {
		return fmt.Sprintf("Reload failed: %v", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Reloaded %d tools in %s.", len(rep.Loaded), rep.Duration.Round(time.Millisecond))
	if len(rep.Added) > 0 {
		fmt.Fprintf(&sb, "\n  added: %s", strings.Join(rep.Added, ", "))
	}
	if len(rep.Removed) > 0 {
		fmt.Fprintf(&sb, "\n  removed: %s", strings.Join(rep.Removed, ", "))
	}
	if len(rep.Changed) > 0 {
		fmt.Fprintf(&sb, "\n  changed: %s", strings.Join(rep.Changed, ", "))
	}
	for _, f := range rep.Failures {
		fmt.Fprintf(&sb, "\n  failed: %s", f.Error())
	}
	return sb.String()
}
