package skills

import (
	"context"
	"strings"
	"time"

	"github.com/c360studio/atlas/intent"
)

// NewProcessMeetingNotes builds the PROCESS_MEETING_NOTES skill. It files
// the meeting content as a note, scans it for action items, and creates a
// task for each one.
func NewProcessMeetingNotes() Skill {
	return &funcSkill{
		name:        "process_meeting_notes",
		intentTypes: []intent.Type{intent.TypeProcessMeetingNotes},
		risk:        intent.RiskMedium,
		description: "Extract tasks and follow-ups from meeting notes",
		fn:          runProcessMeetingNotes,
	}
}

func runProcessMeetingNotes(ctx context.Context, sc *Context) (*Result, error) {
	result := newResult()

	params := sc.Intent.Parameters

	content, _ := params["content"].(string)
	if content == "" {
		content, _ = params["notes"].(string)
	}
	if content == "" && len(sc.Intent.RawEntities) > 0 {
		content = strings.Join(sc.Intent.RawEntities, "\n")
	}

	meetingDate, _ := params["meeting_date"].(string)
	if meetingDate == "" {
		meetingDate = time.Now().UTC().Format("2006-01-02")
	}
	attendees := stringsFromAny(params["attendees"])

	title, _ := params["title"].(string)
	if title == "" {
		title = "Meeting Notes - " + meetingDate
	}

	registry, failed := requireTools(sc)
	if failed != nil {
		return failed, nil
	}

	tags := []string{"meeting"}
	for i, attendee := range attendees {
		if i == 3 {
			break
		}
		tags = append(tags, "attendee:"+attendee)
	}

	noteCall, noteRes := registry.Dispatch(ctx, "NOTE_CREATE", map[string]any{
		"title":   title,
		"content": content,
		"tags":    tags,
	}, true)
	result.record(noteCall, noteRes)

	var noteID any
	if noteRes != nil && noteRes.Success {
		noteID = noteRes.Data["note_id"]
	}

	items := extractActionItems(content)

	taskIDs := []any{}
	for _, item := range items {
		taskCall, taskRes := registry.Dispatch(ctx, "TASK_CREATE", map[string]any{
			"title":       item,
			"description": "From meeting: " + title,
			"priority":    "medium",
			"tags":        []string{"meeting", "action-item"},
		}, true)
		result.record(taskCall, taskRes)

		if taskRes != nil && taskRes.Success {
			taskIDs = append(taskIDs, taskRes.Data["task_id"])
		}
	}

	result.Data["note_id"] = noteID
	result.Data["meeting_date"] = meetingDate
	result.Data["action_items_found"] = len(items)
	result.Data["tasks_created"] = len(taskIDs)
	result.Data["task_ids"] = taskIDs
	result.Data["attendees"] = attendees

	return result, nil
}

// actionKeywords mark a line as an action item wherever they appear.
var actionKeywords = []string{
	"action:", "todo:", "task:", "follow up:",
	"- [ ]", "[] ", "action item:",
	"need to", "should", "will",
}

// actionVerbs promote a bulleted line to an action item.
var actionVerbs = []string{
	"schedule", "send", "follow", "review", "update", "create", "prepare", "contact",
}

// actionPrefixes are stripped from the front of an extracted title, in order.
var actionPrefixes = []string{"- [ ]", "[] ", "-", "*", "•", "action:", "todo:", "task:"}

// extractActionItems scans meeting content line by line for action-item
// markers and returns cleaned task titles, at most ten, each capped at 100
// characters.
func extractActionItems(content string) []string {
	var items []string

	for _, line := range strings.Split(content, "\n") {
		lower := strings.ToLower(strings.TrimSpace(line))
		if lower == "" {
			continue
		}

		isAction := false
		for _, kw := range actionKeywords {
			if strings.Contains(lower, kw) {
				isAction = true
				break
			}
		}

		if !isAction && (strings.HasPrefix(lower, "-") || strings.HasPrefix(lower, "*") || strings.HasPrefix(lower, "•")) {
			for _, verb := range actionVerbs {
				if strings.Contains(lower, verb) {
					isAction = true
					break
				}
			}
		}

		if !isAction {
			continue
		}

		title := strings.TrimSpace(line)
		for _, prefix := range actionPrefixes {
			if strings.HasPrefix(strings.ToLower(title), prefix) {
				title = strings.TrimSpace(title[len(prefix):])
			}
		}
		if title == "" {
			continue
		}
		if len(title) > 100 {
			title = title[:100]
		}

		items = append(items, title)
		if len(items) == 10 {
			break
		}
	}

	return items
}
