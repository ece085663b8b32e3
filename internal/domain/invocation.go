package domain

import (
	"context"
	"time"
)

// InvocationState tracks one dispatcher call:
// Pending → Resolved → Validated → Executing → Succeeded | Failed.
type InvocationState string

const (
	StatePending   InvocationState = "pending"
	StateResolved  InvocationState = "resolved"
	StateValidated InvocationState = "validated"
	StateExecuting InvocationState = "executing"
	StateSucceeded InvocationState = "succeeded"
	StateFailed    InvocationState = "failed"
)

// InvocationRecord is the audit trail of a finished invocation. It holds
// outcome metadata only, never arguments or results.
type InvocationRecord struct {
	ID         int64           `json:"id"`
	SessionID  string          `json:"session_id"`
	Tool       string          `json:"tool"`
	State      InvocationState `json:"state"`   // Succeeded or Failed
	Reached    InvocationState `json:"reached"` // last state before the outcome
	ErrorKind  string          `json:"error_kind,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Recorder receives one record per finished invocation.
type Recorder interface {
	Record(ctx context.Context, rec InvocationRecord) error
}

// ToolUsage aggregates audit records per tool.
type ToolUsage struct {
	Tool      string `json:"tool"`
	Calls     int    `json:"calls"`
	Failures  int    `json:"failures"`
	AvgMillis int64  `json:"avg_ms"`
}

// AuditStore persists invocation records.
type AuditStore interface {
	Recorder
	Recent(ctx context.Context, limit int) ([]InvocationRecord, error)
	Summary(ctx context.Context) ([]ToolUsage, error)
	Close() error
}
