package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/receipt"
)

// taskFields are the task properties TASK_UPDATE may touch.
var taskFields = map[string]bool{
	"title":       true,
	"description": true,
	"due_date":    true,
	"priority":    true,
	"tags":        true,
	"status":      true,
}

// NewTaskCreate creates a task with title, description, due date, priority,
// and tags. Undo deletes the created task.
func NewTaskCreate(store *Store) Tool {
	return &funcTool{
		name:        "TASK_CREATE",
		description: "Create a new task with title, description, due date, and priority",
		risk:        intent.RiskLow,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			title := stringArg(args, "title")
			if title == "" {
				return failure("missing required argument: title"), nil
			}

			taskID := newID("task")
			now := time.Now().UTC().Format(time.RFC3339)

			task := map[string]any{
				"task_id":     taskID,
				"title":       title,
				"description": stringArg(args, "description"),
				"due_date":    stringArg(args, "due_date"),
				"priority":    stringArgDefault(args, "priority", "medium"),
				"tags":        stringSliceArg(args, "tags"),
				"status":      "pending",
				"created_at":  now,
				"updated_at":  now,
			}
			store.putTask(taskID, task)

			return &Result{
				Success: true,
				Data:    map[string]any{"task_id": taskID, "created_at": now},
				Changes: []receipt.Change{{
					EntityType: "task",
					EntityID:   taskID,
					Action:     "created",
					After:      copyEntity(task),
				}},
				UndoStep: &receipt.UndoStep{
					ToolName:    "TASK_DELETE",
					Args:        map[string]any{"task_id": taskID},
					Description: fmt.Sprintf("Delete task: %s", title),
				},
			}, nil
		},
	}
}

// NewTaskList lists tasks with optional status, due-date, and tag filters,
// newest first.
func NewTaskList(store *Store) Tool {
	return &funcTool{
		name:        "TASK_LIST",
		description: "List tasks with optional status, date, and tag filters",
		risk:        intent.RiskLow,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			status := stringArg(args, "status")
			dueBefore := stringArg(args, "due_before")
			tags := stringSliceArg(args, "tags")
			limit := intArgDefault(args, "limit", 50)

			tasks := store.allTasks()
			filtered := tasks[:0]
			for _, t := range tasks {
				if status != "" && t["status"] != status {
					continue
				}
				if dueBefore != "" {
					due, _ := t["due_date"].(string)
					if due == "" || due > dueBefore {
						continue
					}
				}
				if len(tags) > 0 && !anyTagMatches(t, tags) {
					continue
				}
				filtered = append(filtered, t)
			}

			sort.Slice(filtered, func(i, j int) bool {
				a, _ := filtered[i]["created_at"].(string)
				b, _ := filtered[j]["created_at"].(string)
				return a > b
			})
			if len(filtered) > limit {
				filtered = filtered[:limit]
			}

			return &Result{
				Success: true,
				Data:    map[string]any{"tasks": filtered, "total": len(filtered)},
			}, nil
		},
	}
}

// NewTaskGet fetches one task by id.
func NewTaskGet(store *Store) Tool {
	return &funcTool{
		name:        "TASK_GET",
		description: "Get a specific task by its ID",
		risk:        intent.RiskLow,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			taskID := stringArg(args, "task_id")
			task, ok := store.getTask(taskID)
			if !ok {
				return failure("Task not found: %s", taskID), nil
			}
			return &Result{Success: true, Data: map[string]any{"task": task}}, nil
		},
	}
}

// NewTaskUpdate updates task fields. Undo restores the prior values of the
// touched fields only.
func NewTaskUpdate(store *Store) Tool {
	return &funcTool{
		name:        "TASK_UPDATE",
		description: "Update a task's properties (status, title, etc.)",
		risk:        intent.RiskMedium,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			taskID := stringArg(args, "task_id")
			updates := mapArg(args, "updates")

			before, ok := store.getTask(taskID)
			if !ok {
				return failure("Task not found: %s", taskID), nil
			}

			after := copyEntity(before)
			for key, value := range updates {
				if taskFields[key] {
					after[key] = value
				}
			}
			after["updated_at"] = time.Now().UTC().Format(time.RFC3339)
			store.putTask(taskID, after)

			return &Result{
				Success: true,
				Data: map[string]any{
					"task_id": taskID,
					"before":  fieldSubset(before, updates),
					"after":   fieldSubset(after, updates),
				},
				Changes: []receipt.Change{{
					EntityType: "task",
					EntityID:   taskID,
					Action:     "updated",
					Before:     before,
					After:      copyEntity(after),
				}},
				UndoStep: &receipt.UndoStep{
					ToolName: "TASK_UPDATE",
					Args: map[string]any{
						"task_id": taskID,
						"updates": fieldSubset(before, updates),
					},
					Description: "Restore task to previous state",
				},
			}, nil
		},
	}
}

// NewTaskDelete removes a task. Undo recreates it from the captured state.
func NewTaskDelete(store *Store) Tool {
	return &funcTool{
		name:        "TASK_DELETE",
		description: "Delete a task by its ID",
		risk:        intent.RiskMedium,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			taskID := stringArg(args, "task_id")
			task, ok := store.deleteTask(taskID)
			if !ok {
				return failure("Task not found: %s", taskID), nil
			}

			title, _ := task["title"].(string)
			return &Result{
				Success: true,
				Data:    map[string]any{"task_id": taskID, "deleted": true},
				Changes: []receipt.Change{{
					EntityType: "task",
					EntityID:   taskID,
					Action:     "deleted",
					Before:     task,
				}},
				UndoStep: &receipt.UndoStep{
					ToolName: "TASK_CREATE",
					Args: map[string]any{
						"title":       task["title"],
						"description": task["description"],
						"due_date":    task["due_date"],
						"priority":    task["priority"],
						"tags":        task["tags"],
					},
					Description: fmt.Sprintf("Restore deleted task: %s", title),
				},
			}, nil
		},
	}
}

// anyTagMatches reports whether the entity carries at least one of the tags.
func anyTagMatches(entity map[string]any, tags []string) bool {
	entityTags := toStringSlice(entity["tags"])
	for _, want := range tags {
		for _, have := range entityTags {
			if want == have {
				return true
			}
		}
	}
	return false
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// fieldSubset extracts the entity values for the keys present in updates.
func fieldSubset(entity map[string]any, updates map[string]any) map[string]any {
	out := make(map[string]any, len(updates))
	for key := range updates {
		out[key] = entity[key]
	}
	return out
}
