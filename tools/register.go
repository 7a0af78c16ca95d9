package tools

import (
	"log/slog"

	"github.com/bmatcuk/doublestar/v4"
)

// RegisterAll registers every shipped tool against the given store,
// skipping tools whose name matches a disabled pattern. Patterns support
// glob syntax ("WORKFLOW_*" disables the workflow family).
func RegisterAll(registry *Registry, store *Store, disabled []string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	all := []Tool{
		NewTaskCreate(store),
		NewTaskList(store),
		NewTaskGet(store),
		NewTaskUpdate(store),
		NewTaskDelete(store),

		NewNoteCreate(store),
		NewNoteSearch(store),
		NewNoteGet(store),
		NewNoteUpdate(store),
		NewNoteDelete(store),
		NewNoteImportURL(store),

		NewCalendarGetDay(store),
		NewCalendarCreateBlocks(store),
		NewCalendarDeleteBlocks(store),
		NewCalendarUpdateBlock(store),

		NewWorkflowSave(store),
		NewWorkflowEnable(store),
		NewWorkflowList(store),
		NewWorkflowDelete(store),
	}

	for _, tool := range all {
		if pattern, matched := matchesDisabled(tool.Name(), disabled); matched {
			logger.Info("tool disabled by configuration",
				"tool", tool.Name(),
				"pattern", pattern)
			continue
		}
		registry.Register(tool)
	}
}

func matchesDisabled(name string, disabled []string) (string, bool) {
	for _, pattern := range disabled {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			continue
		}
		if ok {
			return pattern, true
		}
	}
	return "", false
}
