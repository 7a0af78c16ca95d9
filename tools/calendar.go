package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/receipt"
)

// Working-day window used for free-slot computation.
const (
	workDayStart = "09:00"
	workDayEnd   = "17:00"
)

// blockFields are the calendar block properties CALENDAR_UPDATE_BLOCK may touch.
var blockFields = map[string]bool{
	"title": true,
	"start": true,
	"end":   true,
	"type":  true,
}

// NewCalendarGetDay returns a day's blocks sorted by start time plus the
// free slots between them within the working window.
func NewCalendarGetDay(store *Store) Tool {
	return &funcTool{
		name:        "CALENDAR_GET_DAY",
		description: "Get all calendar blocks and free slots for a given date",
		risk:        intent.RiskLow,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			date := stringArg(args, "date")

			var blocks []map[string]any
			for _, b := range store.allBlocks() {
				if b["date"] == date {
					blocks = append(blocks, b)
				}
			}
			sort.Slice(blocks, func(i, j int) bool {
				a, _ := blocks[i]["start"].(string)
				b, _ := blocks[j]["start"].(string)
				return a < b
			})

			return &Result{
				Success: true,
				Data: map[string]any{
					"date":       date,
					"blocks":     blocks,
					"free_slots": freeSlots(blocks),
				},
			}, nil
		},
	}
}

// freeSlots computes the gaps between blocks inside the working window.
// Times are "HH:MM" strings, which compare correctly lexicographically.
func freeSlots(blocks []map[string]any) []map[string]any {
	slots := []map[string]any{}

	if len(blocks) == 0 {
		return append(slots, map[string]any{"start": workDayStart, "end": workDayEnd})
	}

	first, _ := blocks[0]["start"].(string)
	if first > workDayStart {
		slots = append(slots, map[string]any{"start": workDayStart, "end": first})
	}

	for i := 0; i < len(blocks)-1; i++ {
		end, _ := blocks[i]["end"].(string)
		next, _ := blocks[i+1]["start"].(string)
		if end < next {
			slots = append(slots, map[string]any{"start": end, "end": next})
		}
	}

	last, _ := blocks[len(blocks)-1]["end"].(string)
	if last < workDayEnd {
		slots = append(slots, map[string]any{"start": last, "end": workDayEnd})
	}

	return slots
}

// NewCalendarCreateBlocks creates one or more blocks for a date. Undo
// deletes all of them in one step.
func NewCalendarCreateBlocks(store *Store) Tool {
	return &funcTool{
		name:        "CALENDAR_CREATE_BLOCKS",
		description: "Create one or more calendar blocks for a given date",
		risk:        intent.RiskMedium,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			date := stringArg(args, "date")
			specs := mapSliceArg(args, "blocks")
			if len(specs) == 0 {
				return failure("missing required argument: blocks"), nil
			}

			created := make([]map[string]any, 0, len(specs))
			blockIDs := make([]any, 0, len(specs))
			changes := make([]receipt.Change, 0, len(specs))

			for _, spec := range specs {
				blockID := newID("block")
				block := map[string]any{
					"block_id":   blockID,
					"date":       date,
					"title":      stringArgDefault(spec, "title", "Untitled"),
					"start":      stringArgDefault(spec, "start", workDayStart),
					"end":        stringArgDefault(spec, "end", "10:00"),
					"type":       stringArgDefault(spec, "type", "task"),
					"created_at": time.Now().UTC().Format(time.RFC3339),
				}
				store.putBlock(blockID, block)

				created = append(created, copyEntity(block))
				blockIDs = append(blockIDs, blockID)
				changes = append(changes, receipt.Change{
					EntityType: "calendar_block",
					EntityID:   blockID,
					Action:     "created",
					After:      copyEntity(block),
				})
			}

			return &Result{
				Success: true,
				Data:    map[string]any{"created": created},
				Changes: changes,
				UndoStep: &receipt.UndoStep{
					ToolName:    "CALENDAR_DELETE_BLOCKS",
					Args:        map[string]any{"block_ids": blockIDs},
					Description: fmt.Sprintf("Delete %d calendar block(s)", len(blockIDs)),
				},
			}, nil
		},
	}
}

// NewCalendarDeleteBlocks removes blocks by id. Undo recreates the deleted
// blocks on their original date.
func NewCalendarDeleteBlocks(store *Store) Tool {
	return &funcTool{
		name:        "CALENDAR_DELETE_BLOCKS",
		description: "Delete one or more calendar blocks by their IDs",
		risk:        intent.RiskMedium,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			blockIDs := stringSliceArg(args, "block_ids")

			var deleted []map[string]any
			var notFound []string
			for _, id := range blockIDs {
				if block, ok := store.deleteBlock(id); ok {
					deleted = append(deleted, block)
				} else {
					notFound = append(notFound, id)
				}
			}

			if len(deleted) == 0 {
				return failure("No blocks found: %v", notFound), nil
			}

			deletedIDs := make([]any, 0, len(deleted))
			changes := make([]receipt.Change, 0, len(deleted))
			undoBlocks := make([]any, 0, len(deleted))
			for _, block := range deleted {
				id, _ := block["block_id"].(string)
				deletedIDs = append(deletedIDs, id)
				changes = append(changes, receipt.Change{
					EntityType: "calendar_block",
					EntityID:   id,
					Action:     "deleted",
					Before:     block,
				})
				undoBlocks = append(undoBlocks, map[string]any{
					"title": block["title"],
					"start": block["start"],
					"end":   block["end"],
					"type":  block["type"],
				})
			}
			date, _ := deleted[0]["date"].(string)

			return &Result{
				Success: true,
				Data: map[string]any{
					"deleted":      deletedIDs,
					"deleted_data": deleted,
					"not_found":    notFound,
				},
				Changes: changes,
				UndoStep: &receipt.UndoStep{
					ToolName:    "CALENDAR_CREATE_BLOCKS",
					Args:        map[string]any{"date": date, "blocks": undoBlocks},
					Description: fmt.Sprintf("Restore %d deleted calendar block(s)", len(deleted)),
				},
			}, nil
		},
	}
}

// NewCalendarUpdateBlock updates block fields. Undo restores the prior
// values of the touched fields only.
func NewCalendarUpdateBlock(store *Store) Tool {
	return &funcTool{
		name:        "CALENDAR_UPDATE_BLOCK",
		description: "Update a calendar block's properties",
		risk:        intent.RiskMedium,
		fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			blockID := stringArg(args, "block_id")
			updates := mapArg(args, "updates")

			before, ok := store.getBlock(blockID)
			if !ok {
				return failure("Block not found: %s", blockID), nil
			}

			after := copyEntity(before)
			for key, value := range updates {
				if blockFields[key] {
					after[key] = value
				}
			}
			store.putBlock(blockID, after)

			return &Result{
				Success: true,
				Data: map[string]any{
					"block_id": blockID,
					"before":   fieldSubset(before, updates),
					"after":    fieldSubset(after, updates),
				},
				Changes: []receipt.Change{{
					EntityType: "calendar_block",
					EntityID:   blockID,
					Action:     "updated",
					Before:     before,
					After:      copyEntity(after),
				}},
				UndoStep: &receipt.UndoStep{
					ToolName: "CALENDAR_UPDATE_BLOCK",
					Args: map[string]any{
						"block_id": blockID,
						"updates":  fieldSubset(before, updates),
					},
					Description: "Restore calendar block to previous state",
				},
			}, nil
		},
	}
}
