package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"modbot/internal/domain"
	"modbot/internal/session"
)

// Observer receives one observation per finished invocation.
type Observer interface {
	ObserveInvocation(tool, outcome string, elapsed time.Duration)
}

// Lookup resolves tool names. *Registry implements it.
type Lookup interface {
	Get(name string) (*Descriptor, bool)
}

type DispatcherOption func(*Dispatcher)

func WithRecorder(r domain.Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// WithTimeout bounds every handler call. Zero means no bound beyond ctx.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// Dispatcher executes one tool call at a time for the agent loop:
// resolve, validate, execute, then record the result in the session.
// Failures are never retried.
type Dispatcher struct {
	tools    Lookup
	recorder domain.Recorder
	observer Observer
	timeout  time.Duration
	logger   *slog.Logger
}

func NewDispatcher(tools Lookup, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{tools: tools, logger: logger}
	for _, o := range opts {
		o(d)
	}
	return d
}

type invocation struct {
	tool  string
	state domain.InvocationState
	start time.Time
}

func (inv *invocation) advance(s domain.InvocationState) {
	inv.state = s
}

// Invoke runs the named tool with raw arguments against sc. On success the
// output is appended to sc's history as a single tool-result turn. Errors
// are *domain.ToolError values of kind ErrToolNotFound, ErrInvalidArguments
// or ErrToolExecution; the history is left untouched in every error case.
func (d *Dispatcher) Invoke(ctx context.Context, name string, raw map[string]any, sc *session.Context) (string, error) {
	if sc == nil {
		return "", errors.New("tool: nil session context")
	}
	inv := &invocation{tool: name, state: domain.StatePending, start: time.Now()}

	desc, ok := d.tools.Get(name)
	if !ok {
		return "", d.finish(ctx, inv, sc, &domain.ToolError{
			Kind:    domain.ErrToolNotFound,
			Tool:    name,
			Message: "no such tool",
		})
	}
	inv.advance(domain.StateResolved)

	args, err := coerceArgs(name, desc.params, desc.strict, raw)
	if err != nil {
		return "", d.finish(ctx, inv, sc, err)
	}
	call, err := bind(desc, args)
	if err != nil {
		return "", d.finish(ctx, inv, sc, err)
	}
	inv.advance(domain.StateValidated)

	inv.advance(domain.StateExecuting)
	sc.RecordInvocation(name)
	out, err := d.execute(ctx, desc, call, sc)
	if err != nil {
		return "", d.finish(ctx, inv, sc, err)
	}

	sc.AppendToolResult(name, out)
	d.finish(ctx, inv, sc, nil)
	return out, nil
}

// bind resolves the handler call for args. Handlers that decode into a
// typed struct do it here so a mismatch is reported as InvalidArguments.
func bind(desc *Descriptor, args map[string]any) (Call, error) {
	b, ok := desc.handler.(Binder)
	if !ok {
		return func(ctx context.Context, sc *session.Context) (string, error) {
			return desc.handler.Call(ctx, sc, args)
		}, nil
	}
	call, err := b.Bind(args)
	if err == nil {
		return call, nil
	}
	te := &domain.ToolError{Kind: domain.ErrInvalidArguments, Tool: desc.Name(), Message: err.Error(), Err: err}
	var be *BindError
	if errors.As(err, &be) && be.Field != "" {
		te.Field = be.Field
		te.Expected = be.Expected
		te.Message = "got " + be.Got
	}
	return nil, te
}

func (d *Dispatcher) execute(ctx context.Context, desc *Descriptor, call Call, sc *session.Context) (out string, err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	execErr := func(cause error, msg string) error {
		return &domain.ToolError{Kind: domain.ErrToolExecution, Tool: desc.Name(), Message: msg, Err: cause}
	}

	if cerr := ctx.Err(); cerr != nil {
		return "", execErr(cerr, cerr.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", desc.Name(), "panic", r)
			out, err = "", execErr(nil, fmt.Sprintf("panic: %v", r))
		}
	}()

	out, err = call(ctx, sc)
	if err != nil {
		return "", execErr(err, err.Error())
	}
	return out, nil
}

// finish moves inv to its terminal state, logs, records and observes it.
// It returns err unchanged.
func (d *Dispatcher) finish(ctx context.Context, inv *invocation, sc *session.Context, err error) error {
	elapsed := time.Since(inv.start)
	reached := inv.state
	final := domain.StateSucceeded
	if err != nil {
		final = domain.StateFailed
	}

	if err != nil {
		d.logger.Warn("tool invocation failed",
			"tool", inv.tool,
			"session", sc.ID(),
			"reached", reached,
			"kind", domain.KindName(err),
			"err", err,
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		d.logger.Debug("tool invocation succeeded",
			"tool", inv.tool,
			"session", sc.ID(),
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	if d.observer != nil {
		outcome := "success"
		if err != nil {
			outcome = domain.KindName(err)
		}
		d.observer.ObserveInvocation(inv.tool, outcome, elapsed)
	}

	if d.recorder != nil {
		rec := domain.InvocationRecord{
			SessionID:  sc.ID(),
			Tool:       inv.tool,
			State:      final,
			Reached:    reached,
			DurationMs: elapsed.Milliseconds(),
			CreatedAt:  inv.start,
		}
		if err != nil {
			rec.ErrorKind = domain.KindName(err)
			rec.Error = err.Error()
		}
		// Recorded even when ctx was cancelled. A failed write only logs.
		if rerr := d.recorder.Record(context.WithoutCancel(ctx), rec); rerr != nil {
			d.logger.Warn("audit record failed", "tool", inv.tool, "err", rerr)
		}
	}
	inv.advance(final)
	return err
}
