package session

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestAppendTurn_UnknownRole(t *testing.T) {
	sc := New()
	if err := sc.AppendTurn("system", "hi"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if len(sc.History()) != 0 {
		t.Fatal("rejected turn must not be appended")
	}
}

func TestHistory_IsCopy(t *testing.T) {
	sc := New()
	_ = sc.AppendTurn(RoleUser, "hello")
	h := sc.History()
	h[0].Content = "mutated"
	if sc.History()[0].Content != "hello" {
		t.Fatal("History must return a copy")
	}
}

func TestAppendToolResult(t *testing.T) {
	sc := New()
	sc.AppendToolResult("add", "5")
	h := sc.History()
	if len(h) != 1 || h[0].Role != RoleTool || h[0].Tool != "add" || h[0].Content != "5" {
		t.Fatalf("unexpected history: %+v", h)
	}
}

func TestScratch(t *testing.T) {
	sc := New()
	if got := sc.ScratchGet("missing", 42); got != 42 {
		t.Fatalf("expected default 42, got %v", got)
	}
	sc.ScratchSet("b", 1)
	sc.ScratchSet("a", "x")
	if got := sc.ScratchGet("a", nil); got != "x" {
		t.Fatalf("expected x, got %v", got)
	}
	keys := sc.ScratchKeys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("expected sorted keys [a b], got %v", keys)
	}
	sc.ScratchDelete("a")
	if len(sc.ScratchKeys()) != 1 {
		t.Fatal("expected one key after delete")
	}
}

func TestStats(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	sc := New(WithClock(clock))

	_ = sc.AppendTurn(RoleUser, "hi")
	_ = sc.AppendTurn(RoleAssistant, "hello")
	_ = sc.AppendTurn(RoleUser, "add 2 and 3")
	sc.RecordInvocation("add")
	sc.RecordInvocation("add")
	sc.RecordInvocation("password")
	now = now.Add(90 * time.Second)

	st := sc.Stats()
	if st.Turns != 3 || st.UserTurns != 2 {
		t.Fatalf("unexpected turn counts: %+v", st)
	}
	if st.DistinctTools != 2 || st.Invocations != 3 {
		t.Fatalf("unexpected tool counts: %+v", st)
	}
	if st.Elapsed != 90*time.Second {
		t.Fatalf("expected 90s elapsed, got %v", st.Elapsed)
	}
}

func TestPreferences_Isolated(t *testing.T) {
	sc := New(WithUserID("alice"))
	if sc.UserID() != "alice" {
		t.Fatalf("expected user alice, got %q", sc.UserID())
	}
	p := sc.Preferences()
	p.Units["temperature"] = "fahrenheit"
	if sc.Preferences().Units["temperature"] != "celsius" {
		t.Fatal("Preferences must return a copy")
	}
	if New(WithPreferences(p)).Preferences().Units["temperature"] != "fahrenheit" {
		t.Fatal("WithPreferences did not apply")
	}
}

func TestIDsAreUnique(t *testing.T) {
	if New().ID() == New().ID() {
		t.Fatal("session ids must differ")
	}
}

func TestTitle(t *testing.T) {
	sc := New()
	if sc.Title() != "New conversation" {
		t.Fatalf("expected default title, got %q", sc.Title())
	}
	_ = sc.AppendTurn(RoleUser, "  \nFirst line\r\nSecond line")
	if sc.Title() != "First line" {
		t.Fatalf("expected first line, got %q", sc.Title())
	}
}

func TestShorten_WordBoundary(t *testing.T) {
	long := "This is a very long message that exceeds the sixty character limit and should be truncated"
	title := shorten(long, titleLimit)
	if title != "This is a very long message that exceeds the sixty character..." {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestShorten_ExactlyAtLimit(t *testing.T) {
	msg := strings.Repeat("1234567890", 6)
	if got := shorten(msg, titleLimit); got != msg {
		t.Fatalf("60-char message should be kept as-is, got %q", got)
	}
}

func TestShorten_MultibyteRunes(t *testing.T) {
	msg := strings.Repeat("é", 70)
	got := shorten(msg, titleLimit)
	if !utf8.ValidString(got) {
		t.Fatalf("cut split a rune: %q", got)
	}
	if got != strings.Repeat("é", 60)+"..." {
		t.Fatalf("unexpected %q", got)
	}
}
