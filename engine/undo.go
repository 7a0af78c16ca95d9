package engine

import (
	"context"
	"fmt"

	"github.com/c360studio/atlas/receipt"
)

// UndoOutcome reports the result of executing a receipt's undo plan.
type UndoOutcome struct {
	Success           bool   `json:"success"`
	ReceiptID         string `json:"receipt_id"`
	Message           string `json:"message"`
	UndoStepsExecuted int    `json:"undo_steps_executed"`
}

// Undo executes a stored receipt's undo plan in reverse order, skipping
// confirmation (the undo request itself is the confirmation). Each step's
// outcome is recorded on a new receipt persisted alongside the original;
// the original receipt is never touched. Storage errors, including
// storage.ErrNotFound for an unknown id, are returned as-is.
func (e *Executor) Undo(ctx context.Context, receiptID string) (*UndoOutcome, error) {
	if e.store == nil {
		return nil, fmt.Errorf("undo receipt %s: no receipt store attached", receiptID)
	}
	if e.tools == nil {
		return nil, fmt.Errorf("undo receipt %s: no tool registry attached", receiptID)
	}

	original, err := e.store.Get(ctx, receiptID)
	if err != nil {
		return nil, err
	}

	if len(original.Undo) == 0 {
		return &UndoOutcome{
			Success:   false,
			ReceiptID: receiptID,
			Message:   "No undo steps available for this receipt",
		}, nil
	}

	rec := receipt.New("undo:"+original.ReceiptID, original.ProfileID)

	executed := 0
	for i := len(original.Undo) - 1; i >= 0; i-- {
		step := original.Undo[i]
		call, result := e.tools.Dispatch(ctx, step.ToolName, step.Args, true)
		rec.ToolCalls = append(rec.ToolCalls, call)
		e.metrics.ObserveToolCall(call.ToolName, call.Status.String())

		if result != nil && result.Success {
			executed++
			rec.Changes = append(rec.Changes, result.Changes...)
			if result.UndoStep != nil {
				rec.Undo = append(rec.Undo, *result.UndoStep)
			}
			continue
		}

		rec.Warnings = append(rec.Warnings, fmt.Sprintf("Undo step %d (%s) failed: %s", i, step.ToolName, call.Error))
	}

	total := len(original.Undo)
	switch {
	case executed == total:
		rec.Status = receipt.StatusSuccess
	case executed > 0:
		rec.Status = receipt.StatusPartial
	default:
		rec.Status = receipt.StatusFailed
	}

	e.logger.Info("undo executed",
		"original_receipt_id", original.ReceiptID,
		"receipt_id", rec.ReceiptID,
		"steps_executed", executed,
		"steps_total", total)

	e.finalize(ctx, rec)

	return &UndoOutcome{
		Success:           executed == total,
		ReceiptID:         rec.ReceiptID,
		Message:           fmt.Sprintf("Executed %d of %d undo steps", executed, total),
		UndoStepsExecuted: executed,
	}, nil
}
