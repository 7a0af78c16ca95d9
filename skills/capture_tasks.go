package skills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/atlas/intent"
)

// NewCaptureTasks builds the CAPTURE_TASKS skill. It turns each classified
// entity into a task, parsing simple temporal and priority markers from the
// entity text before calling TASK_CREATE.
func NewCaptureTasks() Skill {
	return &funcSkill{
		name:        "capture_tasks",
		intentTypes: []intent.Type{intent.TypeCaptureTasks},
		risk:        intent.RiskLow,
		description: "Extract and create tasks from user input",
		fn:          runCaptureTasks,
	}
}

func runCaptureTasks(ctx context.Context, sc *Context) (*Result, error) {
	result := newResult()

	entities := append([]string{}, sc.Intent.RawEntities...)

	// Tasks may also arrive as structured parameters from classification.
	if list, ok := sc.Intent.Parameters["tasks"].([]any); ok {
		for _, item := range list {
			switch v := item.(type) {
			case map[string]any:
				if title, ok := v["title"].(string); ok && title != "" {
					entities = append(entities, title)
				} else {
					entities = append(entities, fmt.Sprintf("%v", v))
				}
			case string:
				entities = append(entities, v)
			default:
				entities = append(entities, fmt.Sprintf("%v", v))
			}
		}
	}

	if len(entities) == 0 {
		result.Warnings = append(result.Warnings, "no tasks found in input")
		return result, nil
	}

	registry, failed := requireTools(sc)
	if failed != nil {
		return failed, nil
	}

	created := 0
	for _, entity := range entities {
		title, dueDate, priority := parseTaskEntity(entity)

		args := map[string]any{
			"title":    title,
			"priority": priority,
		}
		if dueDate != "" {
			args["due_date"] = dueDate
		}

		call, res := registry.Dispatch(ctx, "TASK_CREATE", args, true)
		result.record(call, res)

		if res != nil && res.Success {
			created++
		} else if call.Error != "" {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("failed to create task %q: %s", title, call.Error))
		}
	}

	result.Data["tasks_created"] = created
	result.Data["tasks_requested"] = len(entities)

	if created == 0 {
		return result.fail("failed to create any tasks"), nil
	}
	return result, nil
}

// parseTaskEntity extracts a due date and a priority from marker words in a
// captured entity. Markers are matched against the full original text, then
// the date marker is removed from the returned title.
func parseTaskEntity(entity string) (title, dueDate, priority string) {
	title = strings.TrimSpace(entity)
	lower := strings.ToLower(title)

	priority = "medium"
	switch {
	case strings.Contains(lower, "urgent"), strings.Contains(lower, "asap"):
		priority = "high"
	case strings.Contains(lower, "low priority"), strings.Contains(lower, "whenever"):
		priority = "low"
	}

	switch {
	case strings.Contains(lower, "by friday"):
		dueDate = nextWeekday(time.Friday)
		title = strings.TrimSpace(removeFold(title, "by friday"))
	case strings.Contains(lower, "tomorrow"):
		dueDate = dateOffset(1)
		title = strings.TrimSpace(removeFold(title, "tomorrow"))
	case strings.Contains(lower, "today"):
		dueDate = dateOffset(0)
		title = strings.TrimSpace(removeFold(title, "today"))
	}

	return title, dueDate, priority
}

// removeFold deletes the first case-insensitive occurrence of a lowercase
// marker from s.
func removeFold(s, marker string) string {
	idx := strings.Index(strings.ToLower(s), marker)
	if idx < 0 {
		return s
	}
	return s[:idx] + s[idx+len(marker):]
}

func dateOffset(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

// nextWeekday returns the next occurrence of day, always strictly after
// today, formatted YYYY-MM-DD.
func nextWeekday(day time.Weekday) string {
	now := time.Now().UTC()
	ahead := (int(day) - int(now.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return now.AddDate(0, 0, ahead).Format("2006-01-02")
}
