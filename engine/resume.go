package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/atlas/receipt"
)

// ErrInvalidApproval marks a resume request that names a tool call index
// that is out of range or not awaiting confirmation.
var ErrInvalidApproval = errors.New("invalid approval")

// Resume re-dispatches approved pending tool calls on a stored receipt,
// with confirmation skipped. The indices address entries in the receipt's
// tool_calls list; every index must currently be PENDING_CONFIRM or the
// whole request is rejected before anything runs. The updated receipt is
// written back atomically and returned.
//
// The overall status is recomputed from the approved calls: all executed
// OK yields SUCCESS, some yields PARTIAL, none leaves it unchanged.
func (e *Executor) Resume(ctx context.Context, receiptID string, approved []int) (*receipt.Receipt, error) {
	if e.store == nil {
		return nil, fmt.Errorf("resume receipt %s: no receipt store attached", receiptID)
	}
	if e.tools == nil {
		return nil, fmt.Errorf("resume receipt %s: no tool registry attached", receiptID)
	}

	rec, err := e.store.Get(ctx, receiptID)
	if err != nil {
		return nil, err
	}

	for _, idx := range approved {
		if idx < 0 || idx >= len(rec.ToolCalls) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidApproval, idx)
		}
		if rec.ToolCalls[idx].Status != receipt.CallPendingConfirm {
			return nil, fmt.Errorf("%w: tool call %d is not pending confirmation", ErrInvalidApproval, idx)
		}
	}

	okCount := 0
	for _, idx := range approved {
		pending := rec.ToolCalls[idx]
		call, result := e.tools.Dispatch(ctx, pending.ToolName, pending.Args, true)
		e.metrics.ObserveToolCall(call.ToolName, call.Status.String())

		// The executed call replaces the held one in place, keeping the
		// receipt's call order stable.
		rec.ToolCalls[idx] = call

		if result != nil && result.Success {
			okCount++
			rec.Changes = append(rec.Changes, result.Changes...)
			if result.UndoStep != nil {
				rec.Undo = append(rec.Undo, *result.UndoStep)
			}
		}
	}

	switch {
	case len(approved) > 0 && okCount == len(approved):
		rec.Status = receipt.StatusSuccess
	case okCount > 0:
		rec.Status = receipt.StatusPartial
	}

	if err := e.store.Update(context.WithoutCancel(ctx), rec); err != nil {
		return nil, fmt.Errorf("update receipt %s: %w", receiptID, err)
	}

	e.metrics.ObserveReceipt(string(rec.Status))
	e.events.ReceiptCompleted(rec)

	e.logger.Info("confirmation resumed",
		"receipt_id", rec.ReceiptID,
		"approved", len(approved),
		"executed_ok", okCount,
		"status", string(rec.Status))

	return rec, nil
}
