package agent

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"modbot/internal/domain"
	"modbot/internal/session"
)

const defaultSystemPrompt = "You are a helpful assistant with access to a set of tools. " +
	"Call a tool whenever it gives a more reliable answer than you could on your own, " +
	"otherwise answer directly. Be concise and friendly."

// buildSystemPrompt renders the system message for one oracle round.
func buildSystemPrompt(base string, sc *session.Context, schemas []domain.ToolSchema, now time.Time) string {
	if base == "" {
		base = defaultSystemPrompt
	}
	prefs := sc.Preferences()

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n## Context\n")

	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		loc = time.UTC
	}
	fmt.Fprintf(&sb, "- Current time: %s\n", now.In(loc).Format("2006-01-02 15:04 (Monday) MST"))
	if prefs.Language != "" {
		fmt.Fprintf(&sb, "- Reply in language: %s\n", prefs.Language)
	}
	if len(prefs.Units) > 0 {
		keys := make([]string, 0, len(prefs.Units))
		for k := range prefs.Units {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+prefs.Units[k])
		}
		fmt.Fprintf(&sb, "- Preferred units: %s\n", strings.Join(parts, ", "))
	}

	if len(schemas) > 0 {
		sb.WriteString("\n## Tools\n")
		for _, s := range schemas {
			fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
		}
		sb.WriteString("\nIf a tool reports an error, fix the arguments or pick another tool. Never invent tool names.\n")
	}
	return sb.String()
}

// historyMessages converts the session history into oracle messages. Tool
// results from earlier turns carry no call id, so they are replayed as
// system notes.
func historyMessages(turns []session.Turn) []domain.Message {
	msgs := make([]domain.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case session.RoleUser:
			msgs = append(msgs, domain.Message{Role: "user", Content: t.Content})
		case session.RoleAssistant:
			msgs = append(msgs, domain.Message{Role: "assistant", Content: t.Content})
		case session.RoleTool:
			msgs = append(msgs, domain.Message{
				Role:    "system",
				Content: fmt.Sprintf("Result of tool %s:\n%s", t.Tool, t.Content),
			})
		}
	}
	return msgs
}
