package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every *ToolError wraps exactly one of these, so callers can
// branch with errors.Is(err, domain.ErrToolNotFound) and friends.
var (
	ErrLoad             = errors.New("load error")
	ErrNameCollision    = errors.New("name collision")
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrToolExecution    = errors.New("tool execution error")
)

// ToolError is the structured failure produced by the loader and the
// dispatcher.
type ToolError struct {
	Kind     error  // one of the Err* kinds above
	Tool     string // tool name, when known
	Field    string // offending argument (InvalidArguments only)
	Expected string // expected type or constraint (InvalidArguments only)
	Message  string
	Err      error // underlying cause, may be nil
}

func (e *ToolError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Tool != "" {
		fmt.Fprintf(&sb, " [%s]", e.Tool)
	}
	if e.Field != "" {
		fmt.Fprintf(&sb, " field %q", e.Field)
		if e.Expected != "" {
			fmt.Fprintf(&sb, " (expected %s)", e.Expected)
		}
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil && (e.Message == "" || !strings.Contains(e.Message, e.Err.Error())) {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns a short stable label for the error kind, used in audit
// records and metric labels.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrToolNotFound):
		return "tool_not_found"
	case errors.Is(err, ErrInvalidArguments):
		return "invalid_arguments"
	case errors.Is(err, ErrToolExecution):
		return "tool_execution"
	case errors.Is(err, ErrNameCollision):
		return "name_collision"
	case errors.Is(err, ErrLoad):
		return "load"
	}
	return "unknown"
}

// RenderToolError turns a dispatcher error into the text handed back to the
// oracle. The oracle sees enough to retry with another tool or with
// corrected arguments.
func RenderToolError(err error) string {
	var te *ToolError
	if !errors.As(err, &te) {
		return fmt.Sprintf("Error: %v", err)
	}
	switch {
	case errors.Is(te, ErrToolNotFound):
		return fmt.Sprintf("Error: no tool named %q is available. Choose one of the listed tools or answer directly.", te.Tool)
	case errors.Is(te, ErrInvalidArguments):
		if te.Field != "" {
			return fmt.Sprintf("Error: invalid arguments for %s: field %q expects %s. %s", te.Tool, te.Field, te.Expected, te.Message)
		}
		return fmt.Sprintf("Error: invalid arguments for %s: %s", te.Tool, te.Message)
	default:
		return fmt.Sprintf("Error executing tool %s: %s", te.Tool, te.Message)
	}
}
