package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"modbot/internal/domain"
	"modbot/internal/session"
)

const (
	defaultCommandTimeout = 30 * time.Second
	defaultMaxOutputBytes = 65536
)

type CommandConfig struct {
	Timeout        time.Duration // used when a manifest sets no timeout
	MaxOutputBytes int
	WorkDir        string
}

func (c CommandConfig) withDir(dir string) CommandConfig {
	if c.WorkDir == "" {
		c.WorkDir = dir
	}
	return c
}

// CommandHandler runs an external program for each call. The program reads
// a JSON envelope on stdin:
//
//	{"arguments": {...}, "context": {"session_id": "...", "user_id": "...", "scratch": {...}}}
//
// Arguments are also exported as TOOL_PARAM_<NAME> environment variables.
// Plain stdout is the result. A JSON object on stdout with a "result" key is
// unwrapped, and its optional "scratch" object is written back to the
// session ("error" turns the call into a failure).
type CommandHandler struct {
	argv      []string
	params    []domain.Param
	timeout   time.Duration
	maxOutput int
	dir       string
}

func NewCommandHandler(argv []string, params []domain.Param, timeout time.Duration, cfg CommandConfig) *CommandHandler {
	if timeout <= 0 {
		timeout = cfg.Timeout
	}
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	return &CommandHandler{
		argv:      argv,
		params:    params,
		timeout:   timeout,
		maxOutput: cfg.MaxOutputBytes,
		dir:       cfg.WorkDir,
	}
}

func (h *CommandHandler) Params() []domain.Param { return h.params }

// Strict is true once the manifest declares parameters.
func (h *CommandHandler) Strict() bool { return len(h.params) > 0 }

func (h *CommandHandler) Call(ctx context.Context, sc *session.Context, args map[string]any) (string, error) {
	payload, err := json.Marshal(envelope(sc, args))
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, h.argv[0], h.argv[1:]...)
	cmd.Dir = h.dir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(), paramEnv(args)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("command timed out or cancelled: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return "", fmt.Errorf("exit: %w: %s", err, h.truncate(msg))
		}
		return "", fmt.Errorf("exit: %w", err)
	}

	out := strings.TrimSpace(stdout.String())
	if reply, ok := parseReply(out); ok {
		if reply.Error != "" {
			return "", fmt.Errorf("%s", reply.Error)
		}
		for k, v := range reply.Scratch {
			if v == nil {
				sc.ScratchDelete(k)
				continue
			}
			sc.ScratchSet(k, v)
		}
		out = reply.Result
	}
	return h.truncate(out), nil
}

func (h *CommandHandler) truncate(s string) string {
	if h.maxOutput > 0 && len(s) > h.maxOutput {
		return s[:h.maxOutput] + "\n... (output truncated)"
	}
	return s
}

func envelope(sc *session.Context, args map[string]any) map[string]any {
	if args == nil {
		args = map[string]any{}
	}
	scratch := make(map[string]any)
	for _, k := range sc.ScratchKeys() {
		v := sc.ScratchGet(k, nil)
		// Values that cannot be encoded are not visible to external tools.
		if _, err := json.Marshal(v); err == nil {
			scratch[k] = v
		}
	}
	prefs := sc.Preferences()
	return map[string]any{
		"arguments": args,
		"context": map[string]any{
			"session_id": sc.ID(),
			"user_id":    sc.UserID(),
			"scratch":    scratch,
			"preferences": map[string]any{
				"language": prefs.Language,
				"timezone": prefs.Timezone,
				"units":    prefs.Units,
			},
		},
	}
}

func paramEnv(args map[string]any) []string {
	env := make([]string, 0, len(args))
	for k, v := range args {
		key := "TOOL_PARAM_" + strings.ToUpper(strings.Map(func(r rune) rune {
			if r == '-' || r == '.' || r == ' ' {
				return '_'
			}
			return r
		}, k))
		var val string
		switch x := v.(type) {
		case string:
			val = x
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			val = string(b)
		}
		env = append(env, key+"="+val)
	}
	return env
}

type commandReply struct {
	Result  string
	Scratch map[string]any
	Error   string
}

func parseReply(out string) (commandReply, bool) {
	var reply commandReply
	if !strings.HasPrefix(out, "{") {
		return reply, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return reply, false
	}
	result, hasResult := raw["result"]
	errMsg, hasError := raw["error"].(string)
	if !hasResult && !hasError {
		return reply, false
	}
	switch r := result.(type) {
	case nil:
	case string:
		reply.Result = r
	default:
		b, _ := json.Marshal(r)
		reply.Result = string(b)
	}
	reply.Error = errMsg
	reply.Scratch, _ = raw["scratch"].(map[string]any)
	return reply, true
}
