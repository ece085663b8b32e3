package agent

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"testing"

	"modbot/internal/domain"
	"modbot/internal/session"
	"modbot/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedOracle replays canned responses and keeps every request.
type scriptedOracle struct {
	replies  []*domain.ChatResponse
	err      error
	requests []domain.ChatRequest
}

func (o *scriptedOracle) Name() string                     { return "scripted" }
func (o *scriptedOracle) Healthy(ctx context.Context) error { return nil }

func (o *scriptedOracle) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	o.requests = append(o.requests, req)
	if o.err != nil {
		return nil, o.err
	}
	if len(o.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := o.replies[0]
	o.replies = o.replies[1:]
	return r, nil
}

func reply(content string) *domain.ChatResponse {
	return &domain.ChatResponse{Content: content, FinishReason: "stop"}
}

func callTool(name string, args map[string]any) *domain.ChatResponse {
	return &domain.ChatResponse{
		ToolCalls:    []domain.ToolCall{{ID: "call_" + name, Name: name, Arguments: args}},
		FinishReason: "tool_calls",
	}
}

type addArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

type textArgs struct {
	Text string `json:"text"`
}

// testRegistry installs add (math) and shout (text).
func testRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	add, err := tool.NewDescriptor(tool.Meta{Name: "add", Description: "Add two numbers", Category: "math"},
		tool.Typed(func(ctx context.Context, sc *session.Context, args addArgs) (string, error) {
			return strconv.FormatFloat(args.A+args.B, 'f', -1, 64), nil
		}))
	if err != nil {
		t.Fatal(err)
	}
	shout, err := tool.NewDescriptor(tool.Meta{Name: "shout", Description: "Upper-case text", Category: "text"},
		tool.Typed(func(ctx context.Context, sc *session.Context, args textArgs) (string, error) {
			return args.Text + "!", nil
		}))
	if err != nil {
		t.Fatal(err)
	}
	reg := tool.NewRegistry(testLogger())
	if _, err := reg.Install([]*tool.Descriptor{add, shout}); err != nil {
		t.Fatal(err)
	}
	return reg
}

func newTestLoop(t *testing.T, oracle domain.Oracle, filter *ToolFilter) (*Loop, *tool.Registry) {
	t.Helper()
	reg := testRegistry(t)
	return NewLoop(LoopConfig{
		Oracle:        oracle,
		Tools:         reg,
		Dispatcher:    tool.NewDispatcher(filter.Lookup(reg), testLogger()),
		Filter:        filter,
		Logger:        testLogger(),
		MaxIterations: 4,
	}), reg
}
