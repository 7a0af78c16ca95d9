package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/atlas/receipt"
	"github.com/c360studio/atlas/storage"
)

func newTestStore(t *testing.T) *storage.ReceiptStore {
	t.Helper()

	db, err := storage.Open("sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.Migrate(context.Background(), db))
	return storage.NewReceiptStore(db)
}

func TestReceiptStoreCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := receipt.New("add a task to buy milk", "BALANCED")
	r.Status = receipt.StatusSuccess
	r.Warnings = append(r.Warnings, "model fell back once")

	require.NoError(t, store.Create(ctx, r))

	got, err := store.Get(ctx, r.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, r.ReceiptID, got.ReceiptID)
	assert.Equal(t, receipt.StatusSuccess, got.Status)
	assert.Equal(t, "add a task to buy milk", got.UserInput)
	assert.Equal(t, []string{"model fell back once"}, got.Warnings)
}

func TestReceiptStoreGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReceiptStoreCreateDuplicateFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := receipt.New("once", "")
	require.NoError(t, store.Create(ctx, r))
	assert.Error(t, store.Create(ctx, r))
}

func TestReceiptStoreList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	statuses := []receipt.Status{
		receipt.StatusSuccess,
		receipt.StatusFailed,
		receipt.StatusSuccess,
		receipt.StatusPendingConfirm,
	}
	ids := make([]string, 0, len(statuses))
	for _, st := range statuses {
		r := receipt.New("input", "")
		r.Status = st
		require.NoError(t, store.Create(ctx, r))
		ids = append(ids, r.ReceiptID)
	}

	t.Run("newest first", func(t *testing.T) {
		got, err := store.List(ctx, 10, 0, "")
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, ids[3], got[0].ReceiptID)
		assert.Equal(t, ids[0], got[3].ReceiptID)
	})

	t.Run("limit and offset", func(t *testing.T) {
		got, err := store.List(ctx, 2, 1, "")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, ids[2], got[0].ReceiptID)
		assert.Equal(t, ids[1], got[1].ReceiptID)
	})

	t.Run("status filter", func(t *testing.T) {
		got, err := store.List(ctx, 10, 0, receipt.StatusSuccess)
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, r := range got {
			assert.Equal(t, receipt.StatusSuccess, r.Status)
		}
	})
}

func TestReceiptStoreCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := receipt.New("input", "")
		r.Status = receipt.StatusFailed
		require.NoError(t, store.Create(ctx, r))
	}
	r := receipt.New("input", "")
	r.Status = receipt.StatusSuccess
	require.NoError(t, store.Create(ctx, r))

	total, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	failed, err := store.Count(ctx, receipt.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 3, failed)
}

func TestReceiptStoreUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := receipt.New("confirm me", "")
	r.ToolCalls = append(r.ToolCalls, receipt.ToolCall{
		ToolName:     "TASK_DELETE",
		Args:         map[string]any{"task_id": "task_abc123def456"},
		Status:       receipt.CallPendingConfirm,
		TimestampUTC: time.Now().UTC(),
	})
	require.NoError(t, store.Create(ctx, r))

	r.ToolCalls[0].Status = receipt.CallOK
	r.Status = receipt.StatusSuccess
	require.NoError(t, store.Update(ctx, r))

	got, err := store.Get(ctx, r.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, receipt.StatusSuccess, got.Status)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, receipt.CallOK, got.ToolCalls[0].Status)
}

func TestReceiptStoreUpdateMissing(t *testing.T) {
	store := newTestStore(t)

	r := receipt.New("never stored", "")
	err := store.Update(context.Background(), r)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReceiptStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := receipt.New("delete me", "")
	require.NoError(t, store.Create(ctx, r))

	require.NoError(t, store.Delete(ctx, r.ReceiptID))

	_, err := store.Get(ctx, r.ReceiptID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, r.ReceiptID), storage.ErrNotFound)
}

func TestReceiptStoreGetRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := receipt.New("fresh", "")
	require.NoError(t, store.Create(ctx, r))

	got, err := store.GetRecent(ctx, 24*time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.ReceiptID, got[0].ReceiptID)

	// A zero-width window excludes rows stamped in the past second.
	got, err = store.GetRecent(ctx, -time.Hour, 100)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReceiptStoreGetByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pending := receipt.New("awaiting", "")
	require.NoError(t, store.Create(ctx, pending))

	done := receipt.New("finished", "")
	done.Status = receipt.StatusSuccess
	require.NoError(t, store.Create(ctx, done))

	got, err := store.GetByStatus(ctx, receipt.StatusPendingConfirm, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ReceiptID, got[0].ReceiptID)
}

func TestReceiptRoundTripPreservesStructure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := receipt.New("capture: buy milk, call dentist", "FAST")
	r.Status = receipt.StatusSuccess
	r.ModelsAttempted = append(r.ModelsAttempted, receipt.ModelAttempt{
		Provider:      "ollama",
		Model:         "llama3.2:1b",
		AttemptNumber: 1,
		Success:       true,
		LatencyMS:     412,
		TimestampUTC:  time.Now().UTC(),
	})
	r.Changes = append(r.Changes, receipt.Change{
		EntityType: "task",
		EntityID:   "task_abc123def456",
		Action:     "created",
		After:      map[string]any{"title": "buy milk"},
	})
	r.Undo = append(r.Undo, receipt.UndoStep{
		ToolName:    "TASK_DELETE",
		Args:        map[string]any{"task_id": "task_abc123def456"},
		Description: "delete task task_abc123def456",
	})

	require.NoError(t, store.Create(ctx, r))

	got, err := store.Get(ctx, r.ReceiptID)
	require.NoError(t, err)
	require.Len(t, got.ModelsAttempted, 1)
	assert.Equal(t, "ollama", got.ModelsAttempted[0].Provider)
	assert.True(t, got.ModelsAttempted[0].Success)
	require.Len(t, got.Changes, 1)
	assert.Equal(t, "created", got.Changes[0].Action)
	require.Len(t, got.Undo, 1)
	assert.Equal(t, "TASK_DELETE", got.Undo[0].ToolName)
}
