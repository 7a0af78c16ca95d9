package skills

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/receipt"
)

func TestPlanDayHoldsCalendarWriteForConfirmation(t *testing.T) {
	reg, toolReg := newTestEnv(t)
	seedTask(t, toolReg, "Draft proposal", "", "")
	seedTask(t, toolReg, "Review PRs", "", "")

	sc := testContext(intent.TypePlanDay, map[string]any{"date": "2026-03-02"}, nil, toolReg)
	res, err := reg.Execute(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, res.Success)

	// CALENDAR_GET_DAY, TASK_LIST, then the held CALENDAR_CREATE_BLOCKS.
	require.Len(t, res.ToolCalls, 3)
	last := res.ToolCalls[2]
	assert.Equal(t, "CALENDAR_CREATE_BLOCKS", last.ToolName)
	assert.Equal(t, receipt.CallPendingConfirm, last.Status)

	// Held call: nothing mutated, nothing to undo.
	assert.Empty(t, res.Changes)
	assert.Empty(t, res.UndoSteps)

	assert.Equal(t, true, res.Data["pending_confirmation"])

	plan := res.Data["plan"].([]map[string]any)
	require.Len(t, plan, 2)
	assert.Equal(t, "09:00", plan[0]["start"])
	assert.Equal(t, "10:00", plan[0]["end"])
	assert.Equal(t, "10:00", plan[1]["start"])
	assert.Equal(t, "11:00", plan[1]["end"])

	titles := []string{plan[0]["title"].(string), plan[1]["title"].(string)}
	assert.ElementsMatch(t, []string{"Draft proposal", "Review PRs"}, titles)
}

func TestPlanDayPriorityOrdering(t *testing.T) {
	reg, toolReg := newTestEnv(t)
	seedTask(t, toolReg, "Low chore", "", "low")
	seedTask(t, toolReg, "Critical fix", "", "high")
	seedTask(t, toolReg, "Normal errand", "", "medium")

	sc := testContext(intent.TypePlanDay, map[string]any{"date": "2026-03-02"}, nil, toolReg)
	res, err := reg.Execute(context.Background(), sc)
	require.NoError(t, err)

	plan := res.Data["plan"].([]map[string]any)
	require.Len(t, plan, 3)

	assert.Equal(t, "Critical fix", plan[0]["title"])
	assert.Equal(t, "focus", plan[0]["type"])
	assert.Equal(t, "Normal errand", plan[1]["title"])
	assert.Equal(t, "task", plan[1]["type"])
	assert.Equal(t, "Low chore", plan[2]["title"])
}

func TestPlanDayFillsFreeSlotsAroundExistingBlocks(t *testing.T) {
	reg, toolReg := newTestEnv(t)
	_, created := toolReg.Dispatch(context.Background(), "CALENDAR_CREATE_BLOCKS", map[string]any{
		"date": "2026-03-02",
		"blocks": []any{
			map[string]any{"title": "Morning workshop", "start": "09:00", "end": "12:00", "type": "meeting"},
		},
	}, true)
	require.NotNil(t, created)
	require.True(t, created.Success)

	seedTask(t, toolReg, "Afternoon work", "", "")

	sc := testContext(intent.TypePlanDay, map[string]any{"date": "2026-03-02"}, nil, toolReg)
	res, err := reg.Execute(context.Background(), sc)
	require.NoError(t, err)

	existing := res.Data["existing_blocks"].([]map[string]any)
	require.Len(t, existing, 1)

	plan := res.Data["plan"].([]map[string]any)
	require.Len(t, plan, 1)
	assert.Equal(t, "12:00", plan[0]["start"])
	assert.Equal(t, "13:00", plan[0]["end"])
}

func TestPlanDayCapsAtFiveBlocks(t *testing.T) {
	reg, toolReg := newTestEnv(t)
	for i := 0; i < 7; i++ {
		seedTask(t, toolReg, fmt.Sprintf("Task %d", i), "", "")
	}

	sc := testContext(intent.TypePlanDay, map[string]any{"date": "2026-03-02"}, nil, toolReg)
	res, err := reg.Execute(context.Background(), sc)
	require.NoError(t, err)

	assert.Equal(t, 7, res.Data["tasks_scheduled"])
	plan := res.Data["plan"].([]map[string]any)
	assert.Len(t, plan, 5)
}

func TestPlanDayNoTasksWarns(t *testing.T) {
	reg, toolReg := newTestEnv(t)

	sc := testContext(intent.TypePlanDay, map[string]any{"date": "2026-03-02"}, nil, toolReg)
	res, err := reg.Execute(context.Background(), sc)
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no tasks to schedule")
	assert.Equal(t, "No tasks to schedule", res.Data["message"])

	for _, call := range res.ToolCalls {
		assert.NotEqual(t, "CALENDAR_CREATE_BLOCKS", call.ToolName, "nothing to write without tasks")
	}
}

func TestPlanDaySchedulesAdhocEntities(t *testing.T) {
	reg, toolReg := newTestEnv(t)

	sc := testContext(intent.TypePlanDay, map[string]any{"date": "2026-03-02"}, []string{"Write blog post"}, toolReg)
	res, err := reg.Execute(context.Background(), sc)
	require.NoError(t, err)

	plan := res.Data["plan"].([]map[string]any)
	require.Len(t, plan, 1)
	assert.Equal(t, "Write blog post", plan[0]["title"])

	taskID := plan[0]["task_id"].(string)
	assert.True(t, strings.HasPrefix(taskID, "adhoc_"), "task_id = %q", taskID)
}

func TestPlanDayFetchesExplicitTasksWithoutDuplication(t *testing.T) {
	reg, toolReg := newTestEnv(t)
	id := seedTask(t, toolReg, "Already pending", "", "")

	sc := testContext(intent.TypePlanDay, map[string]any{
		"date":              "2026-03-02",
		"tasks_to_schedule": []any{id},
	}, nil, toolReg)
	res, err := reg.Execute(context.Background(), sc)
	require.NoError(t, err)

	var sawGet bool
	for _, call := range res.ToolCalls {
		if call.ToolName == "TASK_GET" {
			sawGet = true
		}
	}
	assert.True(t, sawGet, "explicit ids are fetched via TASK_GET")

	// The pending list returns the same task; it is scheduled once.
	assert.Equal(t, 1, res.Data["tasks_scheduled"])
	plan := res.Data["plan"].([]map[string]any)
	require.Len(t, plan, 1)
	assert.Equal(t, id, plan[0]["task_id"])
}

func TestPlanBlocksClipsToSlotEnd(t *testing.T) {
	tasks := []map[string]any{
		{"task_id": "t1", "title": "A", "priority": "medium"},
		{"task_id": "t2", "title": "B", "priority": "medium"},
	}
	slots := []map[string]any{
		{"start": "09:00", "end": "09:30"},
		{"start": "13:00", "end": "17:00"},
	}

	plan := planBlocks(tasks, slots)
	require.Len(t, plan, 2)

	// The first block is clipped to the half-hour slot, which is then
	// consumed; the second block opens the next slot.
	assert.Equal(t, "09:00", plan[0]["start"])
	assert.Equal(t, "09:30", plan[0]["end"])
	assert.Equal(t, "13:00", plan[1]["start"])
	assert.Equal(t, "14:00", plan[1]["end"])
}

func TestPlanBlocksStopsWhenSlotsRunOut(t *testing.T) {
	tasks := []map[string]any{
		{"task_id": "t1", "title": "A", "priority": "medium"},
		{"task_id": "t2", "title": "B", "priority": "medium"},
		{"task_id": "t3", "title": "C", "priority": "medium"},
	}
	slots := []map[string]any{
		{"start": "09:00", "end": "10:00"},
	}

	plan := planBlocks(tasks, slots)
	require.Len(t, plan, 1)
	assert.Equal(t, "A", plan[0]["title"])
}

func TestAddHour(t *testing.T) {
	assert.Equal(t, "10:00", addHour("09:00"))
	assert.Equal(t, "15:30", addHour("14:30"))
	assert.Equal(t, "24:15", addHour("23:15"), "no midnight wrap; callers clip to the slot end")
	assert.Equal(t, "bogus", addHour("bogus"))
}
