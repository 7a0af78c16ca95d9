package tools

import (
	"context"
	"strings"
	"testing"
)

func TestNoteCreateAndDelete(t *testing.T) {
	store := NewStore()
	created := mustExecute(t, NewNoteCreate(store), map[string]any{
		"title":   "meeting notes",
		"content": "discussed roadmap",
		"tags":    []any{"meeting"},
	})
	noteID := created.Data["note_id"].(string)

	if created.UndoStep.ToolName != "NOTE_DELETE" {
		t.Errorf("undo tool = %s", created.UndoStep.ToolName)
	}

	deleted := mustExecute(t, NewNoteDelete(store), map[string]any{"note_id": noteID})
	if _, ok := store.getNote(noteID); ok {
		t.Fatal("note still present")
	}

	// Undo of the delete recreates the note content.
	restored := mustExecute(t, NewNoteCreate(store), deleted.UndoStep.Args)
	note, _ := store.getNote(restored.Data["note_id"].(string))
	if note["title"] != "meeting notes" || note["content"] != "discussed roadmap" {
		t.Errorf("restored note = %v", note)
	}
}

func TestNoteSearchRelevance(t *testing.T) {
	store := NewStore()
	create := NewNoteCreate(store)

	mustExecute(t, create, map[string]any{"title": "roadmap planning", "content": "q3 goals"})
	mustExecute(t, create, map[string]any{"title": "standup", "content": "roadmap blockers discussed"})
	mustExecute(t, create, map[string]any{"title": "roadmap", "content": "the roadmap itself"})
	mustExecute(t, create, map[string]any{"title": "unrelated", "content": "nothing here"})

	result := mustExecute(t, NewNoteSearch(store), map[string]any{"query": "roadmap"})
	notes := result.Data["notes"].([]map[string]any)

	if len(notes) != 3 {
		t.Fatalf("got %d results, want 3", len(notes))
	}

	// Title+content match (0.8) outranks title-only (0.5) outranks
	// content-only (0.3).
	if notes[0]["title"] != "roadmap" {
		t.Errorf("top result = %v", notes[0]["title"])
	}
	if notes[0]["relevance"].(float64) != 0.8 {
		t.Errorf("top relevance = %v", notes[0]["relevance"])
	}
	if notes[1]["title"] != "roadmap planning" {
		t.Errorf("second result = %v", notes[1]["title"])
	}
	if notes[2]["relevance"].(float64) != 0.3 {
		t.Errorf("third relevance = %v", notes[2]["relevance"])
	}
}

func TestNoteSearchTagScoring(t *testing.T) {
	store := NewStore()
	create := NewNoteCreate(store)

	mustExecute(t, create, map[string]any{"title": "a", "tags": []any{"x", "y"}})
	mustExecute(t, create, map[string]any{"title": "b", "tags": []any{"x"}})
	mustExecute(t, create, map[string]any{"title": "c"})

	result := mustExecute(t, NewNoteSearch(store), map[string]any{"tags": []any{"x", "y"}})
	notes := result.Data["notes"].([]map[string]any)

	if len(notes) != 2 {
		t.Fatalf("got %d results, want 2", len(notes))
	}
	if notes[0]["title"] != "a" || notes[0]["relevance"].(float64) != 0.4 {
		t.Errorf("top = %v (%v)", notes[0]["title"], notes[0]["relevance"])
	}
	if notes[1]["relevance"].(float64) != 0.2 {
		t.Errorf("second relevance = %v", notes[1]["relevance"])
	}
}

func TestNoteSearchNoQueryReturnsAll(t *testing.T) {
	store := NewStore()
	create := NewNoteCreate(store)
	mustExecute(t, create, map[string]any{"title": "one"})
	mustExecute(t, create, map[string]any{"title": "two"})

	result := mustExecute(t, NewNoteSearch(store), map[string]any{})
	notes := result.Data["notes"].([]map[string]any)
	if len(notes) != 2 {
		t.Fatalf("got %d, want all notes", len(notes))
	}
	for _, n := range notes {
		if n["relevance"].(float64) != 0.5 {
			t.Errorf("default relevance = %v, want 0.5", n["relevance"])
		}
	}
}

func TestNoteSearchSnippet(t *testing.T) {
	store := NewStore()
	long := strings.Repeat("a", 300)
	mustExecute(t, NewNoteCreate(store), map[string]any{"title": "long", "content": long})

	result := mustExecute(t, NewNoteSearch(store), map[string]any{"query": "long"})
	notes := result.Data["notes"].([]map[string]any)
	snippet := notes[0]["snippet"].(string)

	if len(snippet) != snippetLength+3 {
		t.Errorf("snippet length = %d, want %d + ellipsis", len(snippet), snippetLength)
	}
	if !strings.HasSuffix(snippet, "...") {
		t.Error("long snippet must end with ellipsis")
	}
}

func TestNoteUpdateUndo(t *testing.T) {
	store := NewStore()
	created := mustExecute(t, NewNoteCreate(store), map[string]any{"title": "before", "content": "old"})
	noteID := created.Data["note_id"].(string)

	update := NewNoteUpdate(store)
	result := mustExecute(t, update, map[string]any{
		"note_id": noteID,
		"updates": map[string]any{"content": "new"},
	})

	mustExecute(t, update, result.UndoStep.Args)
	note, _ := store.getNote(noteID)
	if note["content"] != "old" {
		t.Errorf("content after undo = %v", note["content"])
	}
}

func TestNoteGetNotFound(t *testing.T) {
	result, err := NewNoteGet(NewStore()).Execute(context.Background(), map[string]any{"note_id": "note_missing"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("expected failure")
	}
}
