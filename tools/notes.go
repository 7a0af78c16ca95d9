package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/receipt"
)

// noteFields are the note properties NOTE_UPDATE may touch.
var noteFields = map[string]bool{
	"title":   true,
	"content": true,
	"tags":    true,
}

// snippetLength caps the content excerpt returned by NOTE_SEARCH.
const snippetLength = 200

// NewNoteCreate creates a note. Undo deletes it.
func NewNoteCreate(store *Store) Tool {
	return &funcTool{
		name:        "NOTE_CREATE",
		description: "Create a new note with title, content, and tags",
		risk:        intent.RiskLow,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			title := stringArg(args, "title")
			if title == "" {
				return failure("missing required argument: title"), nil
			}

			noteID := newID("note")
			now := time.Now().UTC().Format(time.RFC3339)

			note := map[string]any{
				"note_id":    noteID,
				"title":      title,
				"content":    stringArg(args, "content"),
				"tags":       stringSliceArg(args, "tags"),
				"created_at": now,
				"updated_at": now,
			}
			store.putNote(noteID, note)

			return &Result{
				Success: true,
				Data:    map[string]any{"note_id": noteID, "created_at": now},
				Changes: []receipt.Change{{
					EntityType: "note",
					EntityID:   noteID,
					Action:     "created",
					After:      copyEntity(note),
				}},
				UndoStep: &receipt.UndoStep{
					ToolName:    "NOTE_DELETE",
					Args:        map[string]any{"note_id": noteID},
					Description: fmt.Sprintf("Delete note: %s", title),
				},
			}, nil
		},
	}
}

// NewNoteSearch searches notes by query string and tags. Relevance: 0.5
// for a title match, 0.3 for a content match, 0.2 per matched tag; notes
// score a flat 0.5 when neither query nor tags are given.
func NewNoteSearch(store *Store) Tool {
	return &funcTool{
		name:        "NOTE_SEARCH",
		description: "Search notes by query string or tags",
		risk:        intent.RiskLow,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			query := stringArg(args, "query")
			tags := stringSliceArg(args, "tags")
			limit := intArgDefault(args, "limit", 20)

			queryLower := strings.ToLower(query)
			var results []map[string]any

			for _, note := range store.allNotes() {
				relevance := 0.0
				title, _ := note["title"].(string)
				content, _ := note["content"].(string)

				if queryLower != "" && strings.Contains(strings.ToLower(title), queryLower) {
					relevance += 0.5
				}
				if queryLower != "" && strings.Contains(strings.ToLower(content), queryLower) {
					relevance += 0.3
				}
				if len(tags) > 0 {
					relevance += 0.2 * float64(matchedTagCount(note, tags))
				}
				if query == "" && len(tags) == 0 {
					relevance = 0.5
				}

				if relevance <= 0 {
					continue
				}

				results = append(results, map[string]any{
					"note_id":    note["note_id"],
					"title":      title,
					"snippet":    snippet(content),
					"tags":       note["tags"],
					"relevance":  math.Round(relevance*100) / 100,
					"created_at": note["created_at"],
				})
			}

			sort.Slice(results, func(i, j int) bool {
				return results[i]["relevance"].(float64) > results[j]["relevance"].(float64)
			})
			if len(results) > limit {
				results = results[:limit]
			}

			return &Result{
				Success: true,
				Data:    map[string]any{"notes": results, "total": len(results)},
			}, nil
		},
	}
}

// NewNoteGet fetches one note by id.
func NewNoteGet(store *Store) Tool {
	return &funcTool{
		name:        "NOTE_GET",
		description: "Get the full content of a note by its ID",
		risk:        intent.RiskLow,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			noteID := stringArg(args, "note_id")
			note, ok := store.getNote(noteID)
			if !ok {
				return failure("Note not found: %s", noteID), nil
			}
			return &Result{Success: true, Data: map[string]any{"note": note}}, nil
		},
	}
}

// NewNoteUpdate updates note fields. Undo restores the prior values of the
// touched fields only.
func NewNoteUpdate(store *Store) Tool {
	return &funcTool{
		name:        "NOTE_UPDATE",
		description: "Update a note's title, content, or tags",
		risk:        intent.RiskMedium,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			noteID := stringArg(args, "note_id")
			updates := mapArg(args, "updates")

			before, ok := store.getNote(noteID)
			if !ok {
				return failure("Note not found: %s", noteID), nil
			}

			after := copyEntity(before)
			for key, value := range updates {
				if noteFields[key] {
					after[key] = value
				}
			}
			after["updated_at"] = time.Now().UTC().Format(time.RFC3339)
			store.putNote(noteID, after)

			return &Result{
				Success: true,
				Data: map[string]any{
					"note_id": noteID,
					"before":  fieldSubset(before, updates),
					"after":   fieldSubset(after, updates),
				},
				Changes: []receipt.Change{{
					EntityType: "note",
					EntityID:   noteID,
					Action:     "updated",
					Before:     before,
					After:      copyEntity(after),
				}},
				UndoStep: &receipt.UndoStep{
					ToolName: "NOTE_UPDATE",
					Args: map[string]any{
						"note_id": noteID,
						"updates": fieldSubset(before, updates),
					},
					Description: "Restore note to previous state",
				},
			}, nil
		},
	}
}

// NewNoteDelete removes a note. Undo recreates it from the captured state.
func NewNoteDelete(store *Store) Tool {
	return &funcTool{
		name:        "NOTE_DELETE",
		description: "Delete a note by its ID",
		risk:        intent.RiskMedium,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			noteID := stringArg(args, "note_id")
			note, ok := store.deleteNote(noteID)
			if !ok {
				return failure("Note not found: %s", noteID), nil
			}

			title, _ := note["title"].(string)
			return &Result{
				Success: true,
				Data:    map[string]any{"note_id": noteID, "deleted": true},
				Changes: []receipt.Change{{
					EntityType: "note",
					EntityID:   noteID,
					Action:     "deleted",
					Before:     note,
				}},
				UndoStep: &receipt.UndoStep{
					ToolName: "NOTE_CREATE",
					Args: map[string]any{
						"title":   note["title"],
						"content": note["content"],
						"tags":    note["tags"],
					},
					Description: fmt.Sprintf("Restore deleted note: %s", title),
				},
			}, nil
		},
	}
}

func matchedTagCount(entity map[string]any, tags []string) int {
	entityTags := toStringSlice(entity["tags"])
	have := make(map[string]bool, len(entityTags))
	for _, t := range entityTags {
		have[t] = true
	}

	n := 0
	for _, want := range tags {
		if have[want] {
			n++
		}
	}
	return n
}

func snippet(content string) string {
	if len(content) > snippetLength {
		return content[:snippetLength] + "..."
	}
	return content
}
