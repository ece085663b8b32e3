package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"modbot/internal/domain"
)

// extractToolCallsFromContent attempts to parse tool calls from oracle content text.
// Some models (especially smaller ones) return tool calls as JSON in the content
// instead of using the structured tool_calls field. Handles several patterns:
//   - Pure JSON: `{"name":"add","arguments":{...}}`
//   - Code-fenced: ```json\n{...}\n```
//   - Prefixed text: `assistant\n{"name":"add",...}` (common with llama models)
//   - Suffixed text: `{"name":"add",...}\n\nI'll add those.`
func extractToolCallsFromContent(content string) []domain.ToolCall {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	if calls := tryParseToolJSON(content); len(calls) > 0 {
		return calls
	}

	if start, end := findJSONBounds(content); start >= 0 && end > start {
		if calls := tryParseToolJSON(content[start:end]); len(calls) > 0 {
			return calls
		}
	}

	return nil
}

// findJSONBounds locates the first top-level JSON object ({}) or array ([]) in s.
// Returns the start index and end+1 index, or (-1, -1) if not found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}

	openChar := s[start]
	closeChar := byte('}')
	if openChar == '[' {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

type embeddedCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Arguments  map[string]any `json:"arguments"`
}

// tryParseToolJSON parses raw as a single call object or an array of them.
func tryParseToolJSON(raw string) []domain.ToolCall {
	text := raw
	var single embeddedCall
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		text = sanitizeJSONEscapes(text)
		_ = json.Unmarshal([]byte(text), &single)
	}
	if single.Name != "" {
		return []domain.ToolCall{{
			ID:        newCallID(),
			Name:      single.Name,
			Arguments: coalesce(single.Parameters, single.Arguments),
		}}
	}

	var multi []embeddedCall
	if err := json.Unmarshal([]byte(text), &multi); err != nil {
		return nil
	}
	var calls []domain.ToolCall
	for _, tc := range multi {
		if tc.Name == "" {
			continue
		}
		calls = append(calls, domain.ToolCall{
			ID:        newCallID(),
			Name:      tc.Name,
			Arguments: coalesce(tc.Parameters, tc.Arguments),
		})
	}
	return calls
}

// newCallID returns an id for a call the oracle embedded in its text.
func newCallID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return fmt.Sprintf("call_%d", time.Now().UnixNano())
	}
	return "call_" + id
}

// normalizeToolName maps model-generated variations ("System-Info",
// "systeminfo") onto a known tool name. Unknown names pass through so the
// dispatcher can report them.
func normalizeToolName(name string, known []string) string {
	for _, k := range known {
		if k == name {
			return name
		}
	}
	want := canonicalName(name)
	for _, k := range known {
		if canonicalName(k) == want {
			return k
		}
	}
	return name
}

func canonicalName(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

// stripRolePrefix removes role-name prefixes that some models leak into
// their content, e.g. "assistant\nHello" or "Assistant: Hello".
func stripRolePrefix(content string) string {
	prefixes := []string{
		"assistant\n",
		"Assistant\n",
		"assistant:\n",
		"Assistant:\n",
		"assistant: ",
		"Assistant: ",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(content, p) {
			return strings.TrimSpace(content[len(p):])
		}
	}
	return content
}

// coalesce returns the first non-nil map, or an empty map if both are nil.
func coalesce(a, b map[string]any) map[string]any {
	if a != nil {
		return a
	}
	if b != nil {
		return b
	}
	return make(map[string]any)
}

// sanitizeJSONEscapes fixes invalid JSON escape sequences produced by some models.
// Valid JSON escapes: \", \\, \/, \b, \f, \n, \r, \t, \uXXXX.
// Invalid ones (e.g. \% or \Y) are corrected by dropping the backslash.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' && (i == 0 || s[i-1] != '\\') {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
			default:
				continue
			}
		} else {
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}
