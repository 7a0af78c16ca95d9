package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/receipt"
)

const (
	// maxFetchSize caps how much of a page NOTE_IMPORT_URL will read.
	maxFetchSize = 5 << 20 // 5 MB

	fetchTimeout = 30 * time.Second

	importUserAgent = "atlas/1.0 (+note-import)"
)

var excessiveBlankLines = regexp.MustCompile(`\n{4,}`)

// noteImportURL fetches a web page, extracts the readable article, converts
// it to markdown, and stores it as a note. Undo deletes the note.
type noteImportURL struct {
	store     *Store
	client    *http.Client
	converter *md.Converter
}

// NewNoteImportURL creates the NOTE_IMPORT_URL tool.
func NewNoteImportURL(store *Store) Tool {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &noteImportURL{
		store:     store,
		client:    &http.Client{Timeout: fetchTimeout},
		converter: converter,
	}
}

func (t *noteImportURL) Name() string        { return "NOTE_IMPORT_URL" }
func (t *noteImportURL) Description() string { return "Import a web page as a markdown note" }

func (t *noteImportURL) RiskLevel() intent.RiskLevel { return intent.RiskLow }

func (t *noteImportURL) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	rawURL := stringArg(args, "url")
	if rawURL == "" {
		return failure("missing required argument: url"), nil
	}

	pageURL, err := url.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return failure("invalid url: %s", rawURL), nil
	}

	body, err := t.fetch(ctx, rawURL)
	if err != nil {
		return failure("fetch %s: %v", rawURL, err), nil
	}

	title, markdown, err := t.extract(body, pageURL)
	if err != nil {
		return failure("extract %s: %v", rawURL, err), nil
	}
	if title == "" {
		title = pageURL.Host
	}

	noteID := newID("note")
	now := time.Now().UTC().Format(time.RFC3339)
	note := map[string]any{
		"note_id":    noteID,
		"title":      title,
		"content":    markdown,
		"tags":       []string{"imported", "web"},
		"source_url": rawURL,
		"created_at": now,
		"updated_at": now,
	}
	t.store.putNote(noteID, note)

	return &Result{
		Success: true,
		Data: map[string]any{
			"note_id":        noteID,
			"title":          title,
			"source_url":     rawURL,
			"content_length": len(markdown),
		},
		Changes: []receipt.Change{{
			EntityType: "note",
			EntityID:   noteID,
			Action:     "created",
			After:      copyEntity(note),
		}},
		UndoStep: &receipt.UndoStep{
			ToolName:    "NOTE_DELETE",
			Args:        map[string]any{"note_id": noteID},
			Description: fmt.Sprintf("Delete imported note: %s", title),
		},
	}, nil
}

func (t *noteImportURL) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", importUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxFetchSize {
		return nil, fmt.Errorf("content too large (exceeds %d bytes)", maxFetchSize)
	}
	return body, nil
}

// extract pulls the readable article out of the page and converts it to
// markdown. Pages readability cannot parse fall back to converting the
// whole document.
func (t *noteImportURL) extract(body []byte, pageURL *url.URL) (title, markdown string, err error) {
	content := string(body)

	article, rerr := readability.FromReader(bytes.NewReader(body), pageURL)
	if rerr == nil && strings.TrimSpace(article.Content) != "" {
		title = article.Title
		content = article.Content
	}

	markdown, err = t.converter.ConvertString(content)
	if err != nil {
		return "", "", err
	}
	markdown = strings.TrimSpace(excessiveBlankLines.ReplaceAllString(markdown, "\n\n\n"))

	if title == "" {
		title = htmlTitle(body)
	}
	return title, markdown, nil
}

// htmlTitle extracts the <title> text from a document.
func htmlTitle(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
