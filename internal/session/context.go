// Package session holds the per-conversation state handed to every tool
// invocation. A Context is owned by one session and is not safe for
// concurrent use.
package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

func (r Role) valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleTool
}

// Turn is one entry of the conversation history.
type Turn struct {
	Role      Role
	Content   string
	Tool      string // set for tool-result turns
	Timestamp time.Time
}

// Preferences are user settings that handlers may read.
type Preferences struct {
	Language string
	Timezone string
	Units    map[string]string // e.g. "temperature" -> "celsius"
}

func DefaultPreferences() Preferences {
	return Preferences{
		Language: "en",
		Timezone: "UTC",
		Units: map[string]string{
			"temperature": "celsius",
			"distance":    "km",
			"weight":      "kg",
		},
	}
}

func (p Preferences) clone() Preferences {
	out := p
	out.Units = make(map[string]string, len(p.Units))
	for k, v := range p.Units {
		out.Units[k] = v
	}
	return out
}

// Stats is a snapshot of session activity.
type Stats struct {
	Turns         int
	UserTurns     int
	Elapsed       time.Duration
	DistinctTools int
	Invocations   int
}

type Context struct {
	id          string
	userID      string
	startedAt   time.Time
	history     []Turn
	scratch     map[string]any
	toolCounts  map[string]int
	invocations int
	prefs       Preferences
	now         func() time.Time
}

type Option func(*Context)

func WithUserID(id string) Option {
	return func(c *Context) { c.userID = id }
}

func WithPreferences(p Preferences) Option {
	return func(c *Context) { c.prefs = p.clone() }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

func New(opts ...Option) *Context {
	c := &Context{
		id:         uuid.NewString(),
		userID:     "default",
		scratch:    make(map[string]any),
		toolCounts: make(map[string]int),
		prefs:      DefaultPreferences(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.startedAt = c.now()
	return c
}

func (c *Context) ID() string           { return c.id }
func (c *Context) UserID() string       { return c.userID }
func (c *Context) StartedAt() time.Time { return c.startedAt }

// AppendTurn adds a turn to the history. Unknown roles are rejected.
func (c *Context) AppendTurn(role Role, content string) error {
	if !role.valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	c.history = append(c.history, Turn{Role: role, Content: content, Timestamp: c.now()})
	return nil
}

func (c *Context) AppendToolResult(tool, content string) {
	c.history = append(c.history, Turn{Role: RoleTool, Tool: tool, Content: content, Timestamp: c.now()})
}

// History returns a copy of the turns in append order.
func (c *Context) History() []Turn {
	out := make([]Turn, len(c.history))
	copy(out, c.history)
	return out
}

// Title is the first line of the first user turn, shortened to at most
// titleLimit characters. A session without user turns is "New conversation".
func (c *Context) Title() string {
	for _, t := range c.history {
		if t.Role != RoleUser {
			continue
		}
		line, _, _ := strings.Cut(strings.TrimSpace(t.Content), "\n")
		if line = strings.TrimSpace(line); line != "" {
			return shorten(line, titleLimit)
		}
	}
	return "New conversation"
}

func (c *Context) ScratchGet(key string, def any) any {
	if v, ok := c.scratch[key]; ok {
		return v
	}
	return def
}

func (c *Context) ScratchSet(key string, value any) {
	c.scratch[key] = value
}

func (c *Context) ScratchDelete(key string) {
	delete(c.scratch, key)
}

// ScratchKeys returns the scratch keys sorted.
func (c *Context) ScratchKeys() []string {
	keys := make([]string, 0, len(c.scratch))
	for k := range c.scratch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RecordInvocation notes that a handler for tool was started. Failed
// executions count too.
func (c *Context) RecordInvocation(tool string) {
	c.toolCounts[tool]++
	c.invocations++
}

func (c *Context) Preferences() Preferences { return c.prefs.clone() }

func (c *Context) Stats() Stats {
	s := Stats{
		Turns:         len(c.history),
		Elapsed:       c.now().Sub(c.startedAt),
		DistinctTools: len(c.toolCounts),
		Invocations:   c.invocations,
	}
	for _, t := range c.history {
		if t.Role == RoleUser {
			s.UserTurns++
		}
	}
	return s
}

const titleLimit = 60

// shorten cuts s to limit runes, at the last space when one falls in the
// final two thirds, and appends "...".
func shorten(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	cut := limit
	for i := limit; i >= limit/3; i-- {
		if r[i] == ' ' {
			cut = i
			break
		}
	}
	return string(r[:cut]) + "..."
}
