package skills

import (
	"context"
	"time"

	"github.com/c360studio/atlas/intent"
)

// workflowDisabledMessage tells the caller that saving never activates.
const workflowDisabledMessage = "Workflow created but NOT enabled. Use WORKFLOW_ENABLE to activate."

// NewBuildWorkflow builds the BUILD_WORKFLOW skill. It saves a workflow
// definition in the disabled state; activation is a separate WORKFLOW_ENABLE
// call that always requires confirmation, which is why the skill itself
// carries HIGH risk.
func NewBuildWorkflow() Skill {
	return &funcSkill{
		name:        "build_workflow",
		intentTypes: []intent.Type{intent.TypeBuildWorkflow},
		risk:        intent.RiskHigh,
		description: "Create automation workflows",
		fn:          runBuildWorkflow,
	}
}

func runBuildWorkflow(ctx context.Context, sc *Context) (*Result, error) {
	result := newResult()

	params := sc.Intent.Parameters

	name, _ := params["name"].(string)
	if name == "" && len(sc.Intent.RawEntities) > 0 {
		name = sc.Intent.RawEntities[0]
	}
	if name == "" {
		name = "Workflow " + time.Now().UTC().Format("20060102_150405")
	}

	trigger := triggerString(params["trigger"])

	steps := mapsFromAny(params["steps"])
	if len(steps) == 0 {
		steps = mapsFromAny(params["actions"])
	}
	if len(steps) == 0 {
		steps = []map[string]any{
			{"type": "notify", "message": "Workflow '" + name + "' triggered"},
		}
	}

	registry, failed := requireTools(sc)
	if failed != nil {
		return failed, nil
	}

	args := map[string]any{
		"name":    name,
		"trigger": trigger,
		"steps":   steps,
	}
	if description, _ := params["description"].(string); description != "" {
		args["description"] = description
	}

	call, res := registry.Dispatch(ctx, "WORKFLOW_SAVE", args, true)
	result.record(call, res)

	if res == nil || !res.Success {
		return result.fail("failed to save workflow: " + call.Error), nil
	}

	result.Data["workflow_id"] = res.Data["workflow_id"]
	result.Data["name"] = name
	result.Data["trigger"] = trigger
	result.Data["steps"] = steps
	result.Data["enabled"] = false
	result.Data["message"] = workflowDisabledMessage

	return result, nil
}

// triggerString normalizes a trigger parameter: classifiers emit either a
// bare string or an object with a "type" field.
func triggerString(v any) string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case map[string]any:
		if s, ok := t["type"].(string); ok && s != "" {
			return s
		}
	}
	return "manual"
}
