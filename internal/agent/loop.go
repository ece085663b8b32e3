package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modbot/internal/domain"
	"modbot/internal/session"
	"modbot/internal/tool"
)

const (
	defaultMaxIterations = 10
	defaultMaxTokens     = 1000
	defaultTemperature   = 0.7
)

// Invoker runs one tool call. *tool.Dispatcher implements it.
type Invoker interface {
	Invoke(ctx context.Context, name string, raw map[string]any, sc *session.Context) (string, error)
}

// Reloader rescans the tools directory. *tool.Reloader implements it.
type Reloader interface {
	Reload(ctx context.Context) (*tool.ReloadReport, error)
}

// Loop is the conversation engine: user turn → oracle → tool calls → reply.
type Loop struct {
	oracle        domain.Oracle
	tools         *tool.Registry
	dispatcher    Invoker
	reloader      Reloader
	filter        *ToolFilter
	limiter       *RateLimiter
	logger        *slog.Logger
	model         string
	temperature   float64
	maxTokens     int
	maxIterations int
	systemPrompt  string
	now           func() time.Time
}

// LoopConfig holds all dependencies and tuning parameters for the agent loop.
type LoopConfig struct {
	Oracle        domain.Oracle
	Tools         *tool.Registry
	Dispatcher    Invoker
	Reloader      Reloader    // optional: enables the reload command
	Filter        *ToolFilter // optional
	Limiter       *RateLimiter
	Logger        *slog.Logger
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxIterations int
	SystemPrompt  string
	Now           func() time.Time
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loop{
		oracle:        cfg.Oracle,
		tools:         cfg.Tools,
		dispatcher:    cfg.Dispatcher,
		reloader:      cfg.Reloader,
		filter:        cfg.Filter,
		limiter:       cfg.Limiter,
		logger:        cfg.Logger,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		maxIterations: cfg.MaxIterations,
		systemPrompt:  cfg.SystemPrompt,
		now:           cfg.Now,
	}
}

// HandleTurn processes one user message against sc and returns the reply.
// Meta-commands are answered directly. Otherwise the oracle is consulted
// until it answers without requesting tools, or maxIterations rounds pass.
// Tool calls run one after another; their failures are handed back to the
// oracle as text so it can recover.
func (l *Loop) HandleTurn(ctx context.Context, sc *session.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("agent: empty message")
	}
	if cmd := ParseCommand(text); cmd != nil {
		return l.HandleCommand(ctx, cmd, sc), nil
	}

	if err := sc.AppendTurn(session.RoleUser, text); err != nil {
		return "", err
	}

	schemas := l.filter.FilterSchemas(l.tools.ExportSchemas())
	known := make([]string, len(schemas))
	for i, s := range schemas {
		known[i] = s.Name
	}

	messages := append([]domain.Message{{
		Role:    "system",
		Content: buildSystemPrompt(l.systemPrompt, sc, schemas, l.now()),
	}}, historyMessages(sc.History())...)

	var final string
	answered := false
	for iteration := 0; iteration < l.maxIterations; iteration++ {
		l.logger.Debug("agent iteration", "iteration", iteration+1, "messages", len(messages))

		if err := l.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}

		start := time.Now()
		resp, err := l.oracle.Chat(ctx, domain.ChatRequest{
			Messages:    messages,
			Tools:       schemas,
			Model:       l.model,
			MaxTokens:   l.maxTokens,
			Temperature: l.temperature,
		})
		if err != nil {
			return "", fmt.Errorf("oracle %s: %w", l.oracle.Name(), err)
		}
		if resp.LatencyMs == 0 {
			resp.LatencyMs = time.Since(start).Milliseconds()
		}
		l.logger.Debug("oracle replied",
			"latency_ms", resp.LatencyMs,
			"tool_calls", len(resp.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		// Fallback: some smaller models embed tool calls as JSON in the content field.
		if !resp.HasToolCalls() && resp.Content != "" {
			if extracted := extractToolCallsFromContent(resp.Content); len(extracted) > 0 {
				resp.ToolCalls = extracted
				resp.Content = ""
				l.logger.Info("extracted tool calls from content text", "count", len(extracted))
			}
		}

		if !resp.HasToolCalls() {
			final = stripRolePrefix(strings.TrimSpace(resp.Content))
			answered = true
			break
		}

		for i := range resp.ToolCalls {
			tc := &resp.ToolCalls[i]
			if tc.ID == "" {
				tc.ID = newCallID()
			}
			tc.Name = normalizeToolName(tc.Name, known)
			if tc.Arguments == nil {
				tc.Arguments = map[string]any{}
			}
		}
		messages = append(messages, domain.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			result, err := l.runTool(ctx, sc, tc)
			if err != nil {
				return "", err
			}
			messages = append(messages, domain.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}
	}

	switch {
	case !answered:
		l.logger.Warn("iteration limit reached", "max", l.maxIterations)
		final = fmt.Sprintf("I stopped after %d rounds of tool calls without reaching an answer. Please try rephrasing the request.", l.maxIterations)
	case final == "":
		final = "I've completed processing but have no additional response."
	}

	if err := sc.AppendTurn(session.RoleAssistant, final); err != nil {
		return "", err
	}
	return final, nil
}

// runTool dispatches one call. Dispatcher errors become the tool result;
// only cancellation of ctx aborts the turn.
func (l *Loop) runTool(ctx context.Context, sc *session.Context, tc domain.ToolCall) (string, error) {
	if l.logger.Enabled(ctx, slog.LevelDebug) {
		if argsJSON, err := json.Marshal(tc.Arguments); err == nil {
			l.logger.Debug("tool arguments", "tool", tc.Name, "args", string(argsJSON))
		}
	}

	out, err := l.dispatcher.Invoke(ctx, tc.Name, tc.Arguments, sc)
	if err == nil {
		return out, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return "", cerr
	}
	return domain.RenderToolError(err), nil
}
