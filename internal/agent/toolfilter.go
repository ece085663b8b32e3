package agent

import (
	"modbot/internal/domain"
	"modbot/internal/tool"
)

// ToolFilter applies the tools.enabled / tools.denied lists to what the
// oracle sees and to what the dispatcher may resolve.
type ToolFilter struct {
	allowedTools map[string]bool // if non-empty, only these tools are allowed
	deniedTools  map[string]bool // these tools are always denied
}

// NewToolFilter creates a tool filter from allow/deny lists.
// If allowed is non-empty, only those tools are permitted.
// Denied tools are always blocked regardless of the allow list.
func NewToolFilter(allowed, denied []string) *ToolFilter {
	tf := &ToolFilter{
		allowedTools: make(map[string]bool),
		deniedTools:  make(map[string]bool),
	}
	for _, t := range allowed {
		tf.allowedTools[t] = true
	}
	for _, t := range denied {
		tf.deniedTools[t] = true
	}
	return tf
}

// FilterSchemas returns only the schemas that pass the filter, in order.
func (tf *ToolFilter) FilterSchemas(schemas []domain.ToolSchema) []domain.ToolSchema {
	if tf.IsEmpty() {
		return schemas
	}
	filtered := make([]domain.ToolSchema, 0, len(schemas))
	for _, s := range schemas {
		if tf.IsAllowed(s.Name) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// IsAllowed returns true if the tool name passes the filter.
func (tf *ToolFilter) IsAllowed(name string) bool {
	if tf == nil {
		return true
	}
	if tf.deniedTools[name] {
		return false
	}
	if len(tf.allowedTools) > 0 {
		return tf.allowedTools[name]
	}
	return true
}

// IsEmpty returns true if the filter has no rules.
func (tf *ToolFilter) IsEmpty() bool {
	return tf == nil || (len(tf.allowedTools) == 0 && len(tf.deniedTools) == 0)
}

// Lookup wraps next so that filtered-out tools resolve as missing. The
// dispatcher then reports them as ToolNotFound.
func (tf *ToolFilter) Lookup(next tool.Lookup) tool.Lookup {
	if tf.IsEmpty() {
		return next
	}
	return filteredLookup{next: next, filter: tf}
}

type filteredLookup struct {
	next   tool.Lookup
	filter *ToolFilter
}

func (f filteredLookup) Get(name string) (*tool.Descriptor, bool) {
	if !f.filter.IsAllowed(name) {
		return nil, false
	}
	return f.next.Get(name)
}
