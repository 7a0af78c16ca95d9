package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/receipt"
)

// NewWorkflowSave saves a workflow definition. Workflows are saved in the
// disabled state; WORKFLOW_ENABLE is a separate, high-risk step. The
// "enabled" argument exists only so undo can restore a deleted workflow's
// exact prior state.
func NewWorkflowSave(store *Store) Tool {
	return &funcTool{
		name:        "WORKFLOW_SAVE",
		description: "Save a workflow definition in the disabled state",
		risk:        intent.RiskLow,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			name := stringArg(args, "name")
			if name == "" {
				return failure("missing required argument: name"), nil
			}

			enabled := false
			if v, ok := args["enabled"].(bool); ok {
				enabled = v
			}

			workflowID := newID("wf")
			now := time.Now().UTC().Format(time.RFC3339)

			wf := map[string]any{
				"workflow_id": workflowID,
				"name":        name,
				"description": stringArg(args, "description"),
				"trigger":     stringArg(args, "trigger"),
				"steps":       args["steps"],
				"enabled":     enabled,
				"created_at":  now,
				"updated_at":  now,
			}
			store.putWorkflow(workflowID, wf)

			return &Result{
				Success: true,
				Data:    map[string]any{"workflow_id": workflowID, "enabled": enabled, "created_at": now},
				Changes: []receipt.Change{{
					EntityType: "workflow",
					EntityID:   workflowID,
					Action:     "created",
					After:      copyEntity(wf),
				}},
				UndoStep: &receipt.UndoStep{
					ToolName:    "WORKFLOW_DELETE",
					Args:        map[string]any{"workflow_id": workflowID},
					Description: fmt.Sprintf("Delete workflow: %s", name),
				},
			}, nil
		},
	}
}

// NewWorkflowEnable toggles a workflow's enabled flag. Activation is the
// high-risk act; the optional "enabled" argument (default true) lets the
// undo step disable the workflow again.
func NewWorkflowEnable(store *Store) Tool {
	return &funcTool{
		name:        "WORKFLOW_ENABLE",
		description: "Enable a saved workflow so it can run",
		risk:        intent.RiskHigh,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			workflowID := stringArg(args, "workflow_id")

			before, ok := store.getWorkflow(workflowID)
			if !ok {
				return failure("Workflow not found: %s", workflowID), nil
			}

			enabled := true
			if v, ok := args["enabled"].(bool); ok {
				enabled = v
			}

			after := copyEntity(before)
			after["enabled"] = enabled
			after["updated_at"] = time.Now().UTC().Format(time.RFC3339)
			store.putWorkflow(workflowID, after)

			return &Result{
				Success: true,
				Data:    map[string]any{"workflow_id": workflowID, "enabled": enabled},
				Changes: []receipt.Change{{
					EntityType: "workflow",
					EntityID:   workflowID,
					Action:     "updated",
					Before:     before,
					After:      copyEntity(after),
				}},
				UndoStep: &receipt.UndoStep{
					ToolName: "WORKFLOW_ENABLE",
					Args: map[string]any{
						"workflow_id": workflowID,
						"enabled":     before["enabled"],
					},
					Description: "Restore workflow enabled state",
				},
			}, nil
		},
	}
}

// NewWorkflowList lists saved workflows, newest first.
func NewWorkflowList(store *Store) Tool {
	return &funcTool{
		name:        "WORKFLOW_LIST",
		description: "List saved workflows",
		risk:        intent.RiskLow,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			limit := intArgDefault(args, "limit", 50)

			workflows := store.allWorkflows()
			sort.Slice(workflows, func(i, j int) bool {
				a, _ := workflows[i]["created_at"].(string)
				b, _ := workflows[j]["created_at"].(string)
				return a > b
			})
			if len(workflows) > limit {
				workflows = workflows[:limit]
			}

			return &Result{
				Success: true,
				Data:    map[string]any{"workflows": workflows, "total": len(workflows)},
			}, nil
		},
	}
}

// NewWorkflowDelete removes a workflow. Undo recreates it with its prior
// definition and enabled state.
func NewWorkflowDelete(store *Store) Tool {
	return &funcTool{
		name:        "WORKFLOW_DELETE",
		description: "Delete a workflow by its ID",
		risk:        intent.RiskMedium,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			workflowID := stringArg(args, "workflow_id")
			wf, ok := store.deleteWorkflow(workflowID)
			if !ok {
				return failure("Workflow not found: %s", workflowID), nil
			}

			name, _ := wf["name"].(string)
			return &Result{
				Success: true,
				Data:    map[string]any{"workflow_id": workflowID, "deleted": true},
				Changes: []receipt.Change{{
					EntityType: "workflow",
					EntityID:   workflowID,
					Action:     "deleted",
					Before:     wf,
				}},
				UndoStep: &receipt.UndoStep{
					ToolName: "WORKFLOW_SAVE",
					Args: map[string]any{
						"name":        wf["name"],
						"description": wf["description"],
						"trigger":     wf["trigger"],
						"steps":       wf["steps"],
						"enabled":     wf["enabled"],
					},
					Description: fmt.Sprintf("Restore deleted workflow: %s", name),
				},
			}, nil
		},
	}
}
