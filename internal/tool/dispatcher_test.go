package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"modbot/internal/domain"
	"modbot/internal/session"
)

type memRecorder struct{ recs []domain.InvocationRecord }

func (m *memRecorder) Record(ctx context.Context, rec domain.InvocationRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

type countObserver struct{ outcomes []string }

func (o *countObserver) ObserveInvocation(tool, outcome string, elapsed time.Duration) {
	o.outcomes = append(o.outcomes, tool+":"+outcome)
}

func newTestDispatcher(t *testing.T, descs []*Descriptor, opts ...DispatcherOption) *Dispatcher {
	t.Helper()
	reg := NewRegistry(testLogger())
	if _, err := reg.Install(descs); err != nil {
		t.Fatal(err)
	}
	return NewDispatcher(reg, testLogger(), opts...)
}

func TestInvoke_AddEndToEnd(t *testing.T) {
	add := mustDescriptor(t, Meta{Name: "add", Description: "Add two numbers"}, addHandler())
	rec := &memRecorder{}
	obs := &countObserver{}
	d := newTestDispatcher(t, []*Descriptor{add}, WithRecorder(rec), WithObserver(obs))
	sc := session.New()

	out, err := d.Invoke(context.Background(), "add", map[string]any{"a": 2, "b": 3}, sc)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "5" {
		t.Fatalf("expected \"5\", got %q", out)
	}
	h := sc.History()
	if len(h) != 1 || h[0].Role != session.RoleTool || h[0].Tool != "add" || h[0].Content != "5" {
		t.Fatalf("expected exactly one tool-result turn, got %+v", h)
	}
	if st := sc.Stats(); st.Invocations != 1 || st.DistinctTools != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if len(rec.recs) != 1 || rec.recs[0].State != domain.StateSucceeded || rec.recs[0].SessionID != sc.ID() {
		t.Fatalf("unexpected audit records: %+v", rec.recs)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "add:success" {
		t.Fatalf("unexpected observations: %v", obs.outcomes)
	}
}

func TestInvoke_NumericStringsAreCoerced(t *testing.T) {
	add := mustDescriptor(t, Meta{Name: "add", Description: "Add"}, addHandler())
	out, err := newTestDispatcher(t, []*Descriptor{add}).Invoke(context.Background(), "add", map[string]any{"a": "2", "b": "3.5"}, session.New())
	if err != nil {
		t.Fatal(err)
	}
	if out != "5.5" {
		t.Fatalf("got %q", out)
	}
}

func TestInvoke_ToolNotFoundLeavesHistory(t *testing.T) {
	rec := &memRecorder{}
	d := newTestDispatcher(t, nil, WithRecorder(rec))
	sc := session.New()
	_ = sc.AppendTurn(session.RoleUser, "hi")

	_, err := d.Invoke(context.Background(), "ghost", nil, sc)
	if !errors.Is(err, domain.ErrToolNotFound) {
		t.Fatalf("expected ToolNotFound, got %v", err)
	}
	if len(sc.History()) != 1 {
		t.Fatalf("history must be unchanged, got %+v", sc.History())
	}
	if len(rec.recs) != 1 || rec.recs[0].Reached != domain.StatePending || rec.recs[0].ErrorKind != "tool_not_found" {
		t.Fatalf("unexpected audit record: %+v", rec.recs)
	}
}

func TestInvoke_MissingRequiredDoesNotRunHandler(t *testing.T) {
	calls := 0
	h := Typed(func(ctx context.Context, sc *session.Context, a addArgs) (string, error) {
		calls++
		return "", nil
	})
	desc := mustDescriptor(t, Meta{Name: "add", Description: "Add"}, h)
	sc := session.New()
	sc.ScratchSet("k", "v")

	_, err := newTestDispatcher(t, []*Descriptor{desc}).Invoke(context.Background(), "add", map[string]any{"a": 1}, sc)
	var te *domain.ToolError
	if !errors.As(err, &te) || !errors.Is(err, domain.ErrInvalidArguments) {
		t.Fatalf("expected InvalidArguments, got %v", err)
	}
	if te.Field != "b" {
		t.Fatalf("expected field b, got %q", te.Field)
	}
	if calls != 0 {
		t.Fatal("handler must not run")
	}
	if len(sc.History()) != 0 || sc.Stats().Invocations != 0 {
		t.Fatal("context must be untouched")
	}
	if len(sc.ScratchKeys()) != 1 {
		t.Fatal("scratch must be untouched")
	}
}

func TestInvoke_HandlerError(t *testing.T) {
	h := &echoHandler{err: errors.New("boom")}
	desc := mustDescriptor(t, Meta{Name: "fail", Description: "fails"}, h)
	sc := session.New()

	_, err := newTestDispatcher(t, []*Descriptor{desc}).Invoke(context.Background(), "fail", nil, sc)
	if !errors.Is(err, domain.ErrToolExecution) {
		t.Fatalf("expected ToolExecutionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") || !strings.Contains(err.Error(), "fail") {
		t.Fatalf("error should name tool and message: %v", err)
	}
	if len(sc.History()) != 0 {
		t.Fatal("failed call must not append a turn")
	}
	if sc.Stats().Invocations != 1 {
		t.Fatal("failed execution should still count as an invocation")
	}
}

func TestInvoke_PanicIsContained(t *testing.T) {
	h := Untyped(func(ctx context.Context, sc *session.Context, args map[string]any) (string, error) {
		panic("kaboom")
	})
	desc := mustDescriptor(t, Meta{Name: "panic", Description: "panics"}, h)
	_, err := newTestDispatcher(t, []*Descriptor{desc}).Invoke(context.Background(), "panic", nil, session.New())
	if !errors.Is(err, domain.ErrToolExecution) || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected contained panic, got %v", err)
	}
}

func TestInvoke_CancelledContext(t *testing.T) {
	h := &echoHandler{result: "never"}
	desc := mustDescriptor(t, Meta{Name: "echo", Description: "echo"}, h)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDispatcher(t, []*Descriptor{desc}).Invoke(ctx, "echo", nil, session.New())
	if !errors.Is(err, domain.ErrToolExecution) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected execution error wrapping context.Canceled, got %v", err)
	}
	if h.calls != 0 {
		t.Fatal("handler should not start on a cancelled context")
	}
}

func TestInvoke_Timeout(t *testing.T) {
	h := Untyped(func(ctx context.Context, sc *session.Context, args map[string]any) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	desc := mustDescriptor(t, Meta{Name: "slow", Description: "slow"}, h)
	_, err := newTestDispatcher(t, []*Descriptor{desc}, WithTimeout(20*time.Millisecond)).
		Invoke(context.Background(), "slow", nil, session.New())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestInvoke_HandlerMutatesScratch(t *testing.T) {
	h := Untyped(func(ctx context.Context, sc *session.Context, args map[string]any) (string, error) {
		n, _ := sc.ScratchGet("count", 0).(int)
		sc.ScratchSet("count", n+1)
		return "ok", nil
	})
	desc := mustDescriptor(t, Meta{Name: "inc", Description: "increments"}, h)
	d := newTestDispatcher(t, []*Descriptor{desc})
	sc := session.New()
	for i := 0; i < 3; i++ {
		if _, err := d.Invoke(context.Background(), "inc", nil, sc); err != nil {
			t.Fatal(err)
		}
	}
	if sc.ScratchGet("count", 0) != 3 {
		t.Fatalf("expected count 3, got %v", sc.ScratchGet("count", 0))
	}
}

func TestInvoke_UntypedReceivesExtras(t *testing.T) {
	h := &echoHandler{result: "ok"}
	desc := mustDescriptor(t, Meta{Name: "echo", Description: "echo"}, h)
	if _, err := newTestDispatcher(t, []*Descriptor{desc}).Invoke(context.Background(), "echo", map[string]any{"anything": 1}, session.New()); err != nil {
		t.Fatal(err)
	}
	if h.last["anything"] != 1 {
		t.Fatalf("untyped handler should receive all arguments, got %v", h.last)
	}
}

func TestInvoke_NilSession(t *testing.T) {
	d := newTestDispatcher(t, nil)
	if _, err := d.Invoke(context.Background(), "x", nil, nil); err == nil {
		t.Fatal("expected error for nil session")
	}
}

type tagArgs struct {
	Tags []string `json:"tags"`
}

func TestInvoke_ElementTypeMismatchIsInvalidArguments(t *testing.T) {
	ran := false
	h := Typed(func(ctx context.Context, sc *session.Context, args tagArgs) (string, error) {
		ran = true
		return strings.Join(args.Tags, ","), nil
	})
	tag := mustDescriptor(t, Meta{Name: "tag", Description: "Tag things"}, h)
	rec := &memRecorder{}
	d := newTestDispatcher(t, []*Descriptor{tag}, WithRecorder(rec))
	sc := session.New()

	_, err := d.Invoke(context.Background(), "tag", map[string]any{"tags": []any{1, 2}}, sc)
	if !errors.Is(err, domain.ErrInvalidArguments) {
		t.Fatalf("expected InvalidArguments, got %v", err)
	}
	var te *domain.ToolError
	if !errors.As(err, &te) || te.Field != "tags" || te.Expected != "string" {
		t.Fatalf("expected field tags expecting string, got %+v", te)
	}
	if ran {
		t.Fatal("handler must not run")
	}
	if st := sc.Stats(); st.Invocations != 0 {
		t.Fatalf("argument failure must not count as an invocation: %+v", st)
	}
	if len(sc.History()) != 0 {
		t.Fatal("history must be untouched")
	}
	if len(rec.recs) != 1 || rec.recs[0].ErrorKind != "invalid_arguments" || rec.recs[0].Reached != domain.StateResolved {
		t.Fatalf("unexpected audit record %+v", rec.recs)
	}

	out, err := d.Invoke(context.Background(), "tag", map[string]any{"tags": []any{"a", "b"}}, sc)
	if err != nil || out != "a,b" {
		t.Fatalf("valid call failed: %q %v", out, err)
	}
}
