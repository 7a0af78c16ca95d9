package tools

import (
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
)

// Store is the in-memory entity state the tools operate on: tasks, notes,
// calendar blocks, and workflows. Entities are plain maps so they
// round-trip through receipts and undo args without a schema migration
// every time a field is added.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]map[string]any
	notes     map[string]map[string]any
	blocks    map[string]map[string]any
	workflows map[string]map[string]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset clears all entities. Intended for tests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]map[string]any)
	s.notes = make(map[string]map[string]any)
	s.blocks = make(map[string]map[string]any)
	s.workflows = make(map[string]map[string]any)
}

// newID builds an entity id: prefix + "_" + 12 hex chars.
func newID(prefix string) string {
	u := uuid.New()
	return prefix + "_" + hex.EncodeToString(u[:6])
}

// copyEntity returns a shallow copy so callers cannot mutate stored state
// through a returned map.
func copyEntity(e map[string]any) map[string]any {
	out := make(map[string]any, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func (s *Store) putTask(id string, task map[string]any) {
	s.mu.Lock()
	s.tasks[id] = task
	s.mu.Unlock()
}

func (s *Store) getTask(id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return copyEntity(t), true
}

func (s *Store) deleteTask(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	delete(s.tasks, id)
	return t, true
}

func (s *Store) allTasks() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]any, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, copyEntity(t))
	}
	return out
}

func (s *Store) putNote(id string, note map[string]any) {
	s.mu.Lock()
	s.notes[id] = note
	s.mu.Unlock()
}

func (s *Store) getNote(id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, false
	}
	return copyEntity(n), true
}

func (s *Store) deleteNote(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, false
	}
	delete(s.notes, id)
	return n, true
}

func (s *Store) allNotes() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]any, 0, len(s.notes))
	for _, n := range s.notes {
		out = append(out, copyEntity(n))
	}
	return out
}

func (s *Store) putBlock(id string, block map[string]any) {
	s.mu.Lock()
	s.blocks[id] = block
	s.mu.Unlock()
}

func (s *Store) getBlock(id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id]
	if !ok {
		return nil, false
	}
	return copyEntity(b), true
}

func (s *Store) deleteBlock(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return nil, false
	}
	delete(s.blocks, id)
	return b, true
}

func (s *Store) allBlocks() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]any, 0, len(s.blocks))
	for _, b := range s.blocks {
		out = append(out, copyEntity(b))
	}
	return out
}

func (s *Store) putWorkflow(id string, wf map[string]any) {
	s.mu.Lock()
	s.workflows[id] = wf
	s.mu.Unlock()
}

func (s *Store) getWorkflow(id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, false
	}
	return copyEntity(w), true
}

func (s *Store) deleteWorkflow(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, false
	}
	delete(s.workflows, id)
	return w, true
}

func (s *Store) allWorkflows() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]any, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, copyEntity(w))
	}
	return out
}
