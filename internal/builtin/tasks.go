package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"modbot/internal/session"
)

const tasksKey = "tasks"

type Task struct {
	ID          int       `json:"id"`
	Description string    `json:"description"`
	Priority    string    `json:"priority"`
	Due         string    `json:"due,omitempty"`
	Created     time.Time `json:"created"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// TaskBook is the per-session task list stored in scratch.
type TaskBook struct {
	Tasks  []Task `json:"tasks"`
	NextID int    `json:"next_id"`
}

type taskArgs struct {
	Action   string `json:"action" jsonschema:"description=One of add list complete remove search stats"`
	Task     string `json:"task,omitempty" jsonschema:"description=Task description (add) or search term (search)"`
	TaskID   int    `json:"task_id,omitempty" jsonschema:"description=Task id for complete and remove"`
	Priority string `json:"priority,omitempty" jsonschema:"description=low medium or high,default=medium"`
	Due      string `json:"due_date,omitempty" jsonschema:"description=Due date as YYYY-MM-DD"`
}

var priorityRank = map[string]int{"high": 0, "medium": 1, "low": 2}

type taskManager struct {
	now func() time.Time
}

func (m taskManager) book(sc *session.Context) *TaskBook {
	if b, ok := sc.ScratchGet(tasksKey, nil).(*TaskBook); ok {
		return b
	}
	b := &TaskBook{NextID: 1}
	sc.ScratchSet(tasksKey, b)
	return b
}

func (m taskManager) handle(ctx context.Context, sc *session.Context, args taskArgs) (string, error) {
	b := m.book(sc)
	switch strings.ToLower(args.Action) {
	case "add":
		return m.add(b, args)
	case "list":
		return listTasks(b), nil
	case "complete":
		return m.complete(b, args.TaskID)
	case "remove":
		return removeTask(b, args.TaskID)
	case "search":
		return searchTasks(b, args.Task)
	case "stats":
		return m.stats(b), nil
	}
	return "", fmt.Errorf("unknown action %q: use add, list, complete, remove, search or stats", args.Action)
}

func (m taskManager) add(b *TaskBook, args taskArgs) (string, error) {
	desc := strings.TrimSpace(args.Task)
	if desc == "" {
		return "", fmt.Errorf("task description is required")
	}
	prio := strings.ToLower(args.Priority)
	if _, ok := priorityRank[prio]; !ok {
		prio = "medium"
	}
	if args.Due != "" {
		if _, err := time.Parse(time.DateOnly, args.Due); err != nil {
			return "", fmt.Errorf("invalid due date %q: use YYYY-MM-DD", args.Due)
		}
	}
	t := Task{ID: b.NextID, Description: desc, Priority: prio, Due: args.Due, Created: m.now()}
	b.Tasks = append(b.Tasks, t)
	b.NextID++

	out := fmt.Sprintf("Added task #%d [%s] %s", t.ID, t.Priority, t.Description)
	if t.Due != "" {
		out += " (due " + t.Due + ")"
	}
	return out, nil
}

func listTasks(b *TaskBook) string {
	if len(b.Tasks) == 0 {
		return "No tasks yet."
	}
	var pending, done []Task
	for _, t := range b.Tasks {
		if t.Completed {
			done = append(done, t)
		} else {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return priorityRank[pending[i].Priority] < priorityRank[pending[j].Priority]
	})

	var sb strings.Builder
	if len(pending) > 0 {
		sb.WriteString("Pending:\n")
		for _, t := range pending {
			fmt.Fprintf(&sb, "  #%d [%s] %s", t.ID, t.Priority, t.Description)
			if t.Due != "" {
				fmt.Fprintf(&sb, " (due %s)", t.Due)
			}
			sb.WriteString("\n")
		}
	}
	if len(done) > 0 {
		fmt.Fprintf(&sb, "Completed (%d):\n", len(done))
		// Only the three most recent.
		for _, t := range done[max(0, len(done)-3):] {
			fmt.Fprintf(&sb, "  #%d %s\n", t.ID, t.Description)
		}
	}
	fmt.Fprintf(&sb, "Total: %d pending, %d completed", len(pending), len(done))
	return sb.String()
}

func (m taskManager) complete(b *TaskBook, id int) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("task_id is required")
	}
	for i := range b.Tasks {
		t := &b.Tasks[i]
		if t.ID == id && !t.Completed {
			t.Completed = true
			t.CompletedAt = m.now()
			return fmt.Sprintf("Completed task #%d: %s", id, t.Description), nil
		}
	}
	return "", fmt.Errorf("task #%d not found or already completed", id)
}

func removeTask(b *TaskBook, id int) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("task_id is required")
	}
	for i, t := range b.Tasks {
		if t.ID == id {
			b.Tasks = append(b.Tasks[:i], b.Tasks[i+1:]...)
			return fmt.Sprintf("Removed task #%d", id), nil
		}
	}
	return "", fmt.Errorf("task #%d not found", id)
}

func searchTasks(b *TaskBook, term string) (string, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return "", fmt.Errorf("search term is required")
	}
	var sb strings.Builder
	n := 0
	for _, t := range b.Tasks {
		if !strings.Contains(strings.ToLower(t.Description), term) {
			continue
		}
		n++
		status := "pending"
		if t.Completed {
			status = "done"
		}
		fmt.Fprintf(&sb, "\n  #%d [%s] %s (%s)", t.ID, t.Priority, t.Description, status)
	}
	if n == 0 {
		return fmt.Sprintf("No tasks match %q", term), nil
	}
	return fmt.Sprintf("Found %d task(s):", n) + sb.String(), nil
}

func (m taskManager) stats(b *TaskBook) string {
	today := m.now().Format(time.DateOnly)
	var pending, done, overdue int
	byPrio := map[string]int{}
	for _, t := range b.Tasks {
		if t.Completed {
			done++
			continue
		}
		pending++
		byPrio[t.Priority]++
		// DateOnly strings compare chronologically.
		if t.Due != "" && t.Due < today {
			overdue++
		}
	}
	return fmt.Sprintf("Total: %d\nPending: %d\nCompleted: %d\nHigh priority: %d\nMedium priority: %d\nLow priority: %d\nOverdue: %d",
		len(b.Tasks), pending, done, byPrio["high"], byPrio["medium"], byPrio["low"], overdue)
}
