package skills

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/c360studio/atlas/intent"
)

// NewSearchSummarize builds the SEARCH_SUMMARIZE skill. It searches notes
// and/or tasks per the requested sources and returns ranked results with a
// short summary and citations.
func NewSearchSummarize() Skill {
	return &funcSkill{
		name:        "search_summarize",
		intentTypes: []intent.Type{intent.TypeSearchSummarize},
		risk:        intent.RiskLow,
		description: "Search notes and summarize results with citations",
		fn:          runSearchSummarize,
	}
}

func runSearchSummarize(ctx context.Context, sc *Context) (*Result, error) {
	result := newResult()

	params := sc.Intent.Parameters

	query, _ := params["query"].(string)
	if query == "" && len(sc.Intent.RawEntities) > 0 {
		query = strings.Join(sc.Intent.RawEntities, " ")
	}

	tags := stringsFromAny(params["tags"])
	sources := stringsFromAny(params["sources"])
	if len(sources) == 0 {
		sources = []string{"notes"}
	}

	registry, failed := requireTools(sc)
	if failed != nil {
		return failed, nil
	}

	var found []map[string]any

	if slices.Contains(sources, "notes") {
		call, res := registry.Dispatch(ctx, "NOTE_SEARCH", map[string]any{
			"query": query,
			"tags":  tags,
			"limit": 10,
		}, true)
		result.record(call, res)

		if res != nil && res.Success {
			for _, note := range mapsFromAny(res.Data["notes"]) {
				found = append(found, map[string]any{
					"source":    "notes",
					"id":        note["note_id"],
					"title":     note["title"],
					"snippet":   note["snippet"],
					"relevance": note["relevance"],
				})
			}
		}
	}

	if slices.Contains(sources, "tasks") {
		call, res := registry.Dispatch(ctx, "TASK_LIST", map[string]any{"limit": 20}, true)
		result.record(call, res)

		if res != nil && res.Success {
			queryLower := strings.ToLower(query)
			for _, task := range mapsFromAny(res.Data["tasks"]) {
				title, _ := task["title"].(string)
				description, _ := task["description"].(string)

				// Substring scoring; an empty query is unfiltered and
				// everything scores the baseline.
				var relevance float64
				switch {
				case query != "" && strings.Contains(strings.ToLower(title), queryLower):
					relevance = 0.7
				case query != "" && strings.Contains(strings.ToLower(description), queryLower):
					relevance = 0.5
				case query == "":
					relevance = 0.3
				default:
					continue
				}

				found = append(found, map[string]any{
					"source":    "tasks",
					"id":        task["task_id"],
					"title":     title,
					"snippet":   headOf(description, 100),
					"relevance": relevance,
					"status":    task["status"],
					"due_date":  task["due_date"],
				})
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return relevanceOf(found[i]) > relevanceOf(found[j])
	})

	top := found
	if len(top) > 10 {
		top = top[:10]
	}
	cited := found
	if len(cited) > 5 {
		cited = cited[:5]
	}
	citations := make([]map[string]any, 0, len(cited))
	for _, r := range cited {
		citations = append(citations, map[string]any{
			"source": r["source"],
			"id":     r["id"],
			"title":  r["title"],
		})
	}

	result.Data["query"] = query
	result.Data["results"] = top
	result.Data["total_found"] = len(found)
	result.Data["summary"] = searchSummary(query, found)
	result.Data["citations"] = citations

	if len(found) == 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("no results found for query: %s", query))
	}

	return result, nil
}

func relevanceOf(hit map[string]any) float64 {
	f, _ := hit["relevance"].(float64)
	return f
}

func headOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func searchSummary(query string, results []map[string]any) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	notes, tasks := 0, 0
	for _, r := range results {
		switch r["source"] {
		case "notes":
			notes++
		case "tasks":
			tasks++
		}
	}

	parts := []string{fmt.Sprintf("Found %d result(s) for %q.", len(results), query)}
	if notes > 0 {
		parts = append(parts, fmt.Sprintf("%d note(s)", notes))
	}
	if tasks > 0 {
		parts = append(parts, fmt.Sprintf("%d task(s)", tasks))
	}

	title, _ := results[0]["title"].(string)
	parts = append(parts, fmt.Sprintf("Top result: %s (from %v)", title, results[0]["source"]))

	return strings.Join(parts, " ")
}
