package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Release Notes - Example</title></head>
<body>
<nav>navigation junk</nav>
<article>
<h1>Release Notes</h1>
<p>This release improves reliability across the board. The fallback
pipeline now bounds every request, and receipts capture the complete
model attempt history for auditing. Operators can inspect any request
after the fact and replay its undo plan when something goes wrong.</p>
<p>Upgrade is recommended for all deployments running earlier builds,
particularly those relying on confirmation flows for risky operations.</p>
</article>
<footer>footer junk</footer>
</body>
</html>`

func TestNoteImportURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, samplePage)
	}))
	defer server.Close()

	store := NewStore()
	result := mustExecute(t, NewNoteImportURL(store), map[string]any{"url": server.URL})

	noteID := result.Data["note_id"].(string)
	note, ok := store.getNote(noteID)
	if !ok {
		t.Fatal("note not stored")
	}

	content := note["content"].(string)
	if !strings.Contains(content, "Release Notes") {
		t.Errorf("content missing heading: %q", content)
	}
	if !strings.Contains(content, "fallback") {
		t.Errorf("content missing article text: %q", content)
	}
	if strings.Contains(content, "<p>") || strings.Contains(content, "<article>") {
		t.Error("content must be markdown, not HTML")
	}

	if note["source_url"] != server.URL {
		t.Errorf("source_url = %v", note["source_url"])
	}

	if result.UndoStep == nil || result.UndoStep.ToolName != "NOTE_DELETE" {
		t.Fatalf("undo = %v", result.UndoStep)
	}
	if result.UndoStep.Args["note_id"] != noteID {
		t.Error("undo must target the imported note")
	}
}

func TestNoteImportURLUsesDocumentTitle(t *testing.T) {
	// A page too small for article extraction still imports with the
	// <title> tag as the note title.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Tiny Page</title></head><body><p>hi</p></body></html>`)
	}))
	defer server.Close()

	store := NewStore()
	result := mustExecute(t, NewNoteImportURL(store), map[string]any{"url": server.URL})

	title := result.Data["title"].(string)
	if title != "Tiny Page" {
		t.Errorf("title = %q", title)
	}
}

func TestNoteImportURLHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	result, err := NewNoteImportURL(NewStore()).Execute(context.Background(), map[string]any{"url": server.URL})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("404 fetch must fail")
	}
	if !strings.Contains(result.Error, "HTTP 404") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestNoteImportURLInvalidArgs(t *testing.T) {
	tool := NewNoteImportURL(NewStore())

	for _, args := range []map[string]any{
		{},
		{"url": "ftp://example.com/file"},
		{"url": "not a url at all ::"},
	} {
		result, err := tool.Execute(context.Background(), args)
		if err != nil {
			t.Fatal(err)
		}
		if result.Success {
			t.Errorf("args %v should fail", args)
		}
	}
}
