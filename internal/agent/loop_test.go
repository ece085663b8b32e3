package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"modbot/internal/domain"
	"modbot/internal/session"
)

func TestHandleTurn_DirectReply(t *testing.T) {
	oracle := &scriptedOracle{replies: []*domain.ChatResponse{reply("Hello there")}}
	loop, _ := newTestLoop(t, oracle, nil)
	sc := session.New()

	got, err := loop.HandleTurn(context.Background(), sc, "hi")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if got != "Hello there" {
		t.Fatalf("expected 'Hello there', got %q", got)
	}
	h := sc.History()
	if len(h) != 2 || h[0].Role != session.RoleUser || h[1].Role != session.RoleAssistant {
		t.Fatalf("unexpected history: %+v", h)
	}
	if len(oracle.requests[0].Tools) != 2 {
		t.Fatalf("expected 2 tool schemas, got %d", len(oracle.requests[0].Tools))
	}
	if oracle.requests[0].Messages[0].Role != "system" {
		t.Fatal("first message should be the system prompt")
	}
}

func TestHandleTurn_ToolRoundTrip(t *testing.T) {
	oracle := &scriptedOracle{replies: []*domain.ChatResponse{
		callTool("add", map[string]any{"a": 2, "b": 3}),
		reply("2 + 3 = 5"),
	}}
	loop, _ := newTestLoop(t, oracle, nil)
	sc := session.New()

	got, err := loop.HandleTurn(context.Background(), sc, "what is 2+3?")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if got != "2 + 3 = 5" {
		t.Fatalf("unexpected reply %q", got)
	}

	second := oracle.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != "tool" || last.Content != "5" || last.ToolCallID != "call_add" {
		t.Fatalf("expected tool result 5 for call_add, got %+v", last)
	}

	var toolTurns int
	for _, turn := range sc.History() {
		if turn.Role == session.RoleTool {
			toolTurns++
			if turn.Content != "5" || turn.Tool != "add" {
				t.Fatalf("unexpected tool turn %+v", turn)
			}
		}
	}
	if toolTurns != 1 {
		t.Fatalf("expected exactly one tool-result turn, got %d", toolTurns)
	}
	if st := sc.Stats(); st.Invocations != 1 {
		t.Fatalf("expected 1 invocation, got %d", st.Invocations)
	}
}

func TestHandleTurn_UnknownToolIsRecoverable(t *testing.T) {
	oracle := &scriptedOracle{replies: []*domain.ChatResponse{
		callTool("weather", map[string]any{"city": "Lisbon"}),
		reply("Sorry, I cannot check the weather."),
	}}
	loop, _ := newTestLoop(t, oracle, nil)
	sc := session.New()

	got, err := loop.HandleTurn(context.Background(), sc, "weather in Lisbon?")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !strings.Contains(got, "cannot") {
		t.Fatalf("unexpected reply %q", got)
	}
	msgs := oracle.requests[1].Messages
	if res := msgs[len(msgs)-1].Content; !strings.Contains(res, `no tool named "weather"`) {
		t.Fatalf("expected rendered ToolNotFound, got %q", res)
	}
	for _, turn := range sc.History() {
		if turn.Role == session.RoleTool {
			t.Fatal("failed call must not add a tool turn")
		}
	}
}

func TestHandleTurn_InvalidArgumentsRendered(t *testing.T) {
	oracle := &scriptedOracle{replies: []*domain.ChatResponse{
		callTool("add", map[string]any{"a": 1}),
		reply("I need both numbers."),
	}}
	loop, _ := newTestLoop(t, oracle, nil)

	if _, err := loop.HandleTurn(context.Background(), session.New(), "add 1"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	msgs := oracle.requests[1].Messages
	res := msgs[len(msgs)-1].Content
	if !strings.Contains(res, `field "b"`) {
		t.Fatalf("expected error naming b, got %q", res)
	}
}

func TestHandleTurn_DeniedToolNotExported(t *testing.T) {
	oracle := &scriptedOracle{replies: []*domain.ChatResponse{
		callTool("shout", map[string]any{"text": "hey"}),
		reply("done"),
	}}
	loop, _ := newTestLoop(t, oracle, NewToolFilter(nil, []string{"shout"}))
	sc := session.New()

	if _, err := loop.HandleTurn(context.Background(), sc, "shout hey"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	for _, s := range oracle.requests[0].Tools {
		if s.Name == "shout" {
			t.Fatal("denied tool exported to oracle")
		}
	}
	msgs := oracle.requests[1].Messages
	if res := msgs[len(msgs)-1].Content; !strings.Contains(res, "no tool named") {
		t.Fatalf("denied tool should resolve as missing, got %q", res)
	}
	if sc.Stats().Invocations != 0 {
		t.Fatal("denied tool must not run")
	}
}

func TestHandleTurn_IterationLimit(t *testing.T) {
	var replies []*domain.ChatResponse
	for i := 0; i < 4; i++ {
		replies = append(replies, callTool("add", map[string]any{"a": i, "b": 1}))
	}
	oracle := &scriptedOracle{replies: replies}
	loop, _ := newTestLoop(t, oracle, nil)
	sc := session.New()

	got, err := loop.HandleTurn(context.Background(), sc, "loop forever")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !strings.Contains(got, "stopped after 4 rounds") {
		t.Fatalf("unexpected reply %q", got)
	}
	if len(oracle.requests) != 4 {
		t.Fatalf("expected 4 oracle calls, got %d", len(oracle.requests))
	}
	h := sc.History()
	if h[len(h)-1].Role != session.RoleAssistant {
		t.Fatal("turn should end with an assistant message")
	}
}

func TestHandleTurn_OracleError(t *testing.T) {
	oracle := &scriptedOracle{err: errors.New("connection refused")}
	loop, _ := newTestLoop(t, oracle, nil)

	_, err := loop.HandleTurn(context.Background(), session.New(), "hi")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected oracle error, got %v", err)
	}
}

func TestHandleTurn_EmbeddedToolCall(t *testing.T) {
	oracle := &scriptedOracle{replies: []*domain.ChatResponse{
		reply("assistant\n{\"name\": \"Add\", \"arguments\": {\"a\": 4, \"b\": 4}}"),
		reply("Assistant: 8"),
	}}
	loop, _ := newTestLoop(t, oracle, nil)

	got, err := loop.HandleTurn(context.Background(), session.New(), "4+4")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if got != "8" {
		t.Fatalf("expected role prefix stripped, got %q", got)
	}
	msgs := oracle.requests[1].Messages
	last := msgs[len(msgs)-1]
	if last.ToolName != "add" || last.Content != "8" {
		t.Fatalf("expected normalized add call, got %+v", last)
	}
	if !strings.HasPrefix(last.ToolCallID, "call_") {
		t.Fatalf("extracted call should get an id, got %q", last.ToolCallID)
	}
}

func TestHandleTurn_PriorToolResultsReplayed(t *testing.T) {
	oracle := &scriptedOracle{replies: []*domain.ChatResponse{
		callTool("add", map[string]any{"a": 1, "b": 1}),
		reply("2"),
		reply("still 2"),
	}}
	loop, _ := newTestLoop(t, oracle, nil)
	sc := session.New()
	ctx := context.Background()

	if _, err := loop.HandleTurn(ctx, sc, "1+1"); err != nil {
		t.Fatal(err)
	}
	if _, err := loop.HandleTurn(ctx, sc, "again?"); err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, m := range oracle.requests[2].Messages {
		if m.Role == "system" && strings.Contains(m.Content, "Result of tool add") {
			found = true
		}
	}
	if !found {
		t.Fatal("earlier tool result should be replayed as a system note")
	}
}

func TestHandleTurn_EmptyMessage(t *testing.T) {
	loop, _ := newTestLoop(t, &scriptedOracle{}, nil)
	if _, err := loop.HandleTurn(context.Background(), session.New(), "   "); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestHandleTurn_CommandSkipsOracle(t *testing.T) {
	oracle := &scriptedOracle{}
	loop, _ := newTestLoop(t, oracle, nil)
	sc := session.New()

	got, err := loop.HandleTurn(context.Background(), sc, "stats")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, sc.ID()) {
		t.Fatalf("stats should mention the session id, got %q", got)
	}
	if len(oracle.requests) != 0 || len(sc.History()) != 0 {
		t.Fatal("commands must not reach the oracle or the history")
	}
}

// --- extractToolCallsFromContent ---

func TestExtractToolCalls_SingleObject(t *testing.T) {
	input := `{"name": "calculate", "arguments": {"expression": "2*3"}}`
	calls := extractToolCallsFromContent(input)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "calculate" {
		t.Fatalf("expected 'calculate', got %q", calls[0].Name)
	}
	if calls[0].Arguments["expression"] != "2*3" {
		t.Fatalf("expected '2*3', got %v", calls[0].Arguments["expression"])
	}
}

func TestExtractToolCalls_ParametersField(t *testing.T) {
	input := `{"name": "date_info", "parameters": {"timezone": "Europe/Lisbon"}}`
	calls := extractToolCallsFromContent(input)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Arguments["timezone"] != "Europe/Lisbon" {
		t.Fatalf("expected timezone, got %v", calls[0].Arguments)
	}
}

func TestExtractToolCalls_Array(t *testing.T) {
	input := `[{"name": "add", "arguments": {"a": 1, "b": 2}}, {"name": "add", "arguments": {"a": 3, "b": 4}}]`
	calls := extractToolCallsFromContent(input)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].ID == calls[1].ID {
		t.Fatal("extracted calls should get distinct ids")
	}
}

func TestExtractToolCalls_CodeFenceWrapped(t *testing.T) {
	input := "```json\n{\"name\": \"add\", \"arguments\": {\"a\": 1, \"b\": 1}}\n```"
	calls := extractToolCallsFromContent(input)
	if len(calls) != 1 || calls[0].Name != "add" {
		t.Fatalf("expected add from code fence, got %+v", calls)
	}
}

func TestExtractToolCalls_SurroundingText(t *testing.T) {
	input := "Sure.\n{\"name\": \"add\", \"arguments\": {\"a\": 1, \"b\": 1}}\nLet me do that."
	calls := extractToolCallsFromContent(input)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
}

func TestExtractToolCalls_PlainText(t *testing.T) {
	if calls := extractToolCallsFromContent("Sure, let me help you with that!"); len(calls) != 0 {
		t.Fatalf("expected 0 calls for plain text, got %d", len(calls))
	}
}

func TestExtractToolCalls_EmptyName(t *testing.T) {
	if calls := extractToolCallsFromContent(`{"name": "", "arguments": {}}`); len(calls) != 0 {
		t.Fatalf("expected 0 calls for empty name, got %d", len(calls))
	}
}

func TestExtractToolCalls_NilArguments(t *testing.T) {
	calls := extractToolCallsFromContent(`{"name": "system_info"}`)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Arguments == nil {
		t.Fatal("arguments should be initialized to empty map")
	}
}

func TestExtractToolCalls_WithInvalidEscapes(t *testing.T) {
	input := `{"name": "text_analyzer", "arguments": {"text": "100\% done"}}`
	calls := extractToolCallsFromContent(input)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call after sanitization, got %d", len(calls))
	}
	if calls[0].Arguments["text"] != "100% done" {
		t.Fatalf("unexpected text %v", calls[0].Arguments["text"])
	}
}

// --- sanitizeJSONEscapes ---

func TestSanitizeJSONEscapes_InvalidEscape(t *testing.T) {
	result := sanitizeJSONEscapes(`{"key": "100\% done"}`)
	if result != `{"key": "100% done"}` {
		t.Fatalf("unexpected %q", result)
	}
}

func TestSanitizeJSONEscapes_PreservesValidEscapes(t *testing.T) {
	input := `{"text": "line1\nline2\ttab \"q\""}`
	if result := sanitizeJSONEscapes(input); result != input {
		t.Fatalf("valid escapes should be preserved: got %q", result)
	}
}

// --- normalizeToolName / stripRolePrefix / coalesce ---

func TestNormalizeToolName(t *testing.T) {
	known := []string{"system_info", "unit_converter", "add"}
	cases := map[string]string{
		"system_info":    "system_info",
		"systeminfo":     "system_info",
		"System-Info":    "system_info",
		"Unit Converter": "unit_converter",
		"ADD":            "add",
		"weather":        "weather",
	}
	for in, want := range cases {
		if got := normalizeToolName(in, known); got != want {
			t.Errorf("normalizeToolName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripRolePrefix(t *testing.T) {
	if got := stripRolePrefix("assistant\nHello"); got != "Hello" {
		t.Fatalf("got %q", got)
	}
	if got := stripRolePrefix("Assistant: Hi"); got != "Hi" {
		t.Fatalf("got %q", got)
	}
	if got := stripRolePrefix("The assistant said"); got != "The assistant said" {
		t.Fatalf("got %q", got)
	}
}

func TestCoalesce(t *testing.T) {
	a := map[string]any{"key": "a"}
	b := map[string]any{"key": "b"}
	if coalesce(a, b)["key"] != "a" {
		t.Fatal("first non-nil map should win")
	}
	if coalesce(nil, b)["key"] != "b" {
		t.Fatal("second map expected when first is nil")
	}
	if m := coalesce(nil, nil); m == nil || len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}
}
