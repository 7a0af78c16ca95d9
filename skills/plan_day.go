package skills

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/receipt"
)

// NewPlanDay builds the PLAN_DAY skill. It reads the day's calendar and the
// pending task list, greedily fits up to five one-hour blocks into the free
// slots by task priority, and proposes them through CALENDAR_CREATE_BLOCKS.
// The calendar write stays behind the confirmation gate.
func NewPlanDay() Skill {
	return &funcSkill{
		name:        "plan_day",
		intentTypes: []intent.Type{intent.TypePlanDay},
		risk:        intent.RiskMedium,
		description: "Generate a day plan with scheduled time blocks",
		fn:          runPlanDay,
	}
}

func runPlanDay(ctx context.Context, sc *Context) (*Result, error) {
	result := newResult()

	params := sc.Intent.Parameters

	targetDate, _ := params["date"].(string)
	if targetDate == "" {
		targetDate = time.Now().UTC().Format("2006-01-02")
	}

	registry, failed := requireTools(sc)
	if failed != nil {
		return failed, nil
	}

	dayCall, dayRes := registry.Dispatch(ctx, "CALENDAR_GET_DAY", map[string]any{"date": targetDate}, true)
	result.record(dayCall, dayRes)

	existing := []map[string]any{}
	slots := []map[string]any{}
	if dayRes != nil && dayRes.Success {
		existing = mapsFromAny(dayRes.Data["blocks"])
		slots = mapsFromAny(dayRes.Data["free_slots"])
	}

	var toSchedule []map[string]any
	seen := map[string]bool{}

	// Explicitly requested task ids are fetched first.
	for _, id := range stringsFromAny(params["tasks_to_schedule"]) {
		getCall, getRes := registry.Dispatch(ctx, "TASK_GET", map[string]any{"task_id": id}, true)
		result.record(getCall, getRes)

		if getRes == nil || !getRes.Success {
			continue
		}
		if task, ok := getRes.Data["task"].(map[string]any); ok {
			toSchedule = append(toSchedule, task)
			if tid, ok := task["task_id"].(string); ok {
				seen[tid] = true
			}
		}
	}

	listCall, listRes := registry.Dispatch(ctx, "TASK_LIST", map[string]any{
		"status": "pending",
		"limit":  10,
	}, true)
	result.record(listCall, listRes)

	if listRes != nil && listRes.Success {
		for _, task := range mapsFromAny(listRes.Data["tasks"]) {
			tid, _ := task["task_id"].(string)
			if seen[tid] {
				continue
			}
			seen[tid] = true
			toSchedule = append(toSchedule, task)
		}
	}

	// Entities become ad-hoc items scheduled by title alone.
	for _, entity := range sc.Intent.RawEntities {
		toSchedule = append(toSchedule, map[string]any{
			"task_id":  adhocID(entity),
			"title":    entity,
			"priority": "medium",
		})
	}

	if len(toSchedule) == 0 {
		result.Warnings = append(result.Warnings, "no tasks to schedule")
		result.Data["date"] = targetDate
		result.Data["existing_blocks"] = existing
		result.Data["plan"] = []map[string]any{}
		result.Data["message"] = "No tasks to schedule"
		return result, nil
	}

	plan := planBlocks(toSchedule, slots)

	if len(plan) > 0 {
		createCall, createRes := registry.Dispatch(ctx, "CALENDAR_CREATE_BLOCKS", map[string]any{
			"date":   targetDate,
			"blocks": plan,
		}, false)
		result.record(createCall, createRes)

		switch {
		case createRes != nil && createRes.Success:
			result.Data["blocks_created"] = len(mapsFromAny(createRes.Data["created"]))
		case createCall.Status == receipt.CallPendingConfirm:
			result.Data["pending_confirmation"] = true
			result.Data["blocks_pending"] = plan
		}
	}

	result.Data["date"] = targetDate
	result.Data["existing_blocks"] = existing
	result.Data["plan"] = plan
	result.Data["tasks_scheduled"] = len(toSchedule)

	return result, nil
}

// planBlocks assigns tasks to free slots in priority order, one hour per
// task clipped to the slot end. Slots are consumed front to back; at most
// five blocks are planned.
func planBlocks(tasks, slots []map[string]any) []map[string]any {
	plan := []map[string]any{}

	sorted := make([]map[string]any, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return priorityRank(sorted[i]) < priorityRank(sorted[j])
	})
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}

	remaining := make([]map[string]string, 0, len(slots))
	for _, s := range slots {
		start, _ := s["start"].(string)
		end, _ := s["end"].(string)
		remaining = append(remaining, map[string]string{"start": start, "end": end})
	}

	slotIndex := 0
	for _, task := range sorted {
		if slotIndex >= len(remaining) {
			break
		}
		slot := remaining[slotIndex]

		start := slot["start"]
		end := addHour(start)
		if end > slot["end"] {
			end = slot["end"]
		}

		blockType := "task"
		if priorityOf(task) == "high" {
			blockType = "focus"
		}

		title, _ := task["title"].(string)
		plan = append(plan, map[string]any{
			"title":   title,
			"start":   start,
			"end":     end,
			"type":    blockType,
			"task_id": task["task_id"],
		})

		slot["start"] = end
		if end >= slot["end"] {
			slotIndex++
		}
	}

	return plan
}

func priorityOf(task map[string]any) string {
	p, _ := task["priority"].(string)
	if p == "" {
		return "medium"
	}
	return p
}

func priorityRank(task map[string]any) int {
	switch priorityOf(task) {
	case "high":
		return 0
	case "low":
		return 2
	}
	return 1
}

// addHour advances an HH:MM timestamp by one hour without wrapping at
// midnight; callers clip the result to the slot end.
func addHour(hhmm string) string {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return hhmm
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return hhmm
	}
	return fmt.Sprintf("%02d:%s", hour+1, parts[1])
}

// adhocID derives a stable id for a task that exists only in this plan.
func adhocID(title string) string {
	h := fnv.New32a()
	h.Write([]byte(title))
	return fmt.Sprintf("adhoc_%d", h.Sum32()%10000)
}
