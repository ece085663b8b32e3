package metrics

import (
	"context"
	"time"

	"modbot/internal/domain"
)

var (
	toolBuckets   = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}
	oracleBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120}
)

// ObserveInvocation counts a finished tool invocation by tool and outcome
// and records its latency. It satisfies tool.Observer.
func (c *Collector) ObserveInvocation(tool, outcome string, elapsed time.Duration) {
	c.Counter("modbot_tool_invocations_total", "Tool invocations by outcome",
		Labels("tool", tool, "outcome", outcome)).Inc()
	c.Histogram("modbot_tool_latency_seconds", "Tool execution latency in seconds",
		Labels("tool", tool), toolBuckets).Observe(elapsed.Seconds())
}

// SetRegisteredTools publishes the registry size.
func (c *Collector) SetRegisteredTools(n int) {
	c.Gauge("modbot_registered_tools", "Tools currently registered", "").Set(int64(n))
}

// ObserveReload counts a registry reload and the files that failed in it.
func (c *Collector) ObserveReload(failures int) {
	c.Counter("modbot_tool_reloads_total", "Registry reloads", "").Inc()
	c.Counter("modbot_tool_load_failures_total", "Manifest files rejected during reload", "").Add(int64(failures))
}

type instrumentedOracle struct {
	domain.Oracle
	c *Collector
}

// InstrumentOracle wraps an oracle so every Chat call is counted and timed.
func InstrumentOracle(o domain.Oracle, c *Collector) domain.Oracle {
	if c == nil {
		return o
	}
	return &instrumentedOracle{Oracle: o, c: c}
}

func (o *instrumentedOracle) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	start := time.Now()
	resp, err := o.Oracle.Chat(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	labels := Labels("provider", o.Oracle.Name(), "outcome", outcome)
	o.c.Counter("modbot_oracle_requests_total", "Oracle chat requests", labels).Inc()
	o.c.Histogram("modbot_oracle_latency_seconds", "Oracle chat latency in seconds",
		Labels("provider", o.Oracle.Name()), oracleBuckets).Observe(time.Since(start).Seconds())
	if resp != nil {
		o.c.Counter("modbot_oracle_tokens_total", "Tokens reported by the oracle",
			Labels("provider", o.Oracle.Name())).Add(int64(resp.Usage.TotalTokens))
	}
	return resp, err
}
