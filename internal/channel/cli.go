// Package channel holds the user-facing front ends. Only the terminal REPL
// exists today.
package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"modbot/internal/session"
)

// Agent answers one user message. *agent.Loop implements it.
type Agent interface {
	HandleTurn(ctx context.Context, sc *session.Context, text string) (string, error)
}

// CLI is the interactive terminal chat.
type CLI struct {
	agent     Agent
	session   *session.Context
	logger    *slog.Logger
	in        io.Reader
	out       io.Writer
	spinner   bool
	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
	thinkDone chan struct{}
}

type CLIConfig struct {
	Agent   Agent
	Session *session.Context
	Logger  *slog.Logger
	In      io.Reader
	Out     io.Writer
	Spinner bool // animate while waiting; only useful on a terminal
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Session == nil {
		cfg.Session = session.New()
	}
	return &CLI{
		agent:   cfg.Agent,
		session: cfg.Session,
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     &syncWriter{w: cfg.Out},
		spinner: cfg.Spinner,
	}
}

// syncWriter serializes writes from the REPL, the spinner and notices.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Notify prints an out-of-band line, such as a background reload, and
// redraws the prompt.
func (c *CLI) Notify(text string) {
	_, _ = fmt.Fprintf(c.out, "\r\033[K[modbot] %s\nYou> ", text)
}

func (c *CLI) Name() string { return "cli" }

func isQuit(line string) bool {
	switch strings.ToLower(strings.TrimPrefix(line, "/")) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

// Run reads lines until EOF, a quit word or ctx cancellation. Each line is
// one turn. On exit a short session summary is printed.
func (c *CLI) Run(ctx context.Context) error {
	_, _ = fmt.Fprintln(c.out, "modbot chat. Type a message and press Enter. Type /help for commands, exit to quit.")
	_, _ = fmt.Fprint(c.out, "You> ")

	defer c.printSummary()

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}
		if isQuit(line) {
			c.logger.Info("user requested quit")
			return nil
		}

		c.startThinking()
		reply, err := c.agent.HandleTurn(ctx, c.session, line)
		c.stopThinking()

		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			c.logger.Error("turn failed", "session", c.session.ID(), "err", err)
			_, _ = fmt.Fprintf(c.out, "Error: %v\n", err)
		} else {
			_, _ = fmt.Fprintln(c.out, "--- modbot ---")
			_, _ = fmt.Fprintln(c.out, reply)
			_, _ = fmt.Fprintln(c.out, "--------------")
		}
		_, _ = fmt.Fprint(c.out, "You> ")
	}
}

func (c *CLI) printSummary() {
	st := c.session.Stats()
	_, _ = fmt.Fprintf(c.out, "\nSession %q ended: %d messages (%d from you), %d tool calls across %d tools, %s.\n",
		c.session.Title(), st.Turns, st.UserTurns, st.Invocations, st.DistinctTools, st.Elapsed.Round(time.Second))
}

func (c *CLI) startThinking() {
	if !c.spinner {
		return
	}
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	c.thinkDone = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				_, _ = fmt.Fprint(c.out, "\r\033[K")
				return
			case <-ticker.C:
				_, _ = fmt.Fprintf(c.out, "\r%s Thinking...", frames[i%len(frames)])
				i++
			}
		}
	}(c.thinkStop, c.thinkDone)
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
	<-c.thinkDone
}
