package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/c360studio/atlas/receipt"
)

// ReceiptStore persists execution receipts. The full receipt is stored as
// JSON alongside a few indexed columns, so the audit trail survives schema
// evolution of the receipt itself.
type ReceiptStore struct {
	db *sqlx.DB
}

// NewReceiptStore creates a store backed by the given database.
func NewReceiptStore(db *sqlx.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// Create persists a new receipt. The receipt id must be unique.
func (s *ReceiptStore) Create(ctx context.Context, r *receipt.Receipt) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}

	query := s.db.Rebind(`INSERT INTO receipts (receipt_id, status, user_input, receipt_json)
		VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, r.ReceiptID, string(r.Status), r.UserInput, string(payload)); err != nil {
		return fmt.Errorf("insert receipt %s: %w", r.ReceiptID, err)
	}
	return nil
}

// Get returns a receipt by id, or ErrNotFound.
func (s *ReceiptStore) Get(ctx context.Context, receiptID string) (*receipt.Receipt, error) {
	var payload string
	query := s.db.Rebind("SELECT receipt_json FROM receipts WHERE receipt_id = ?")
	err := s.db.GetContext(ctx, &payload, query, receiptID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt %s: %w", receiptID, err)
	}

	var r receipt.Receipt
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("unmarshal receipt %s: %w", receiptID, err)
	}
	return &r, nil
}

// List returns receipts newest first. A non-empty status filters by it.
func (s *ReceiptStore) List(ctx context.Context, limit, offset int, status receipt.Status) ([]*receipt.Receipt, error) {
	var (
		payloads []string
		query    string
		args     []any
	)

	if status != "" {
		query = s.db.Rebind(`SELECT receipt_json FROM receipts
			WHERE status = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ? OFFSET ?`)
		args = []any{string(status), limit, offset}
	} else {
		query = s.db.Rebind(`SELECT receipt_json FROM receipts
			ORDER BY created_at DESC, id DESC
			LIMIT ? OFFSET ?`)
		args = []any{limit, offset}
	}

	if err := s.db.SelectContext(ctx, &payloads, query, args...); err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return unmarshalReceipts(payloads)
}

// Count returns the number of receipts, optionally filtered by status.
func (s *ReceiptStore) Count(ctx context.Context, status receipt.Status) (int, error) {
	var (
		n     int
		query string
		args  []any
	)

	if status != "" {
		query = s.db.Rebind("SELECT COUNT(*) FROM receipts WHERE status = ?")
		args = []any{string(status)}
	} else {
		query = "SELECT COUNT(*) FROM receipts"
	}

	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count receipts: %w", err)
	}
	return n, nil
}

// Update replaces the stored JSON and status for an existing receipt.
// Used when pending confirmations are resolved.
func (s *ReceiptStore) Update(ctx context.Context, r *receipt.Receipt) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}

	query := s.db.Rebind("UPDATE receipts SET status = ?, receipt_json = ? WHERE receipt_id = ?")
	res, err := s.db.ExecContext(ctx, query, string(r.Status), string(payload), r.ReceiptID)
	if err != nil {
		return fmt.Errorf("update receipt %s: %w", r.ReceiptID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a receipt by id. Returns ErrNotFound when absent.
func (s *ReceiptStore) Delete(ctx context.Context, receiptID string) error {
	query := s.db.Rebind("DELETE FROM receipts WHERE receipt_id = ?")
	res, err := s.db.ExecContext(ctx, query, receiptID)
	if err != nil {
		return fmt.Errorf("delete receipt %s: %w", receiptID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRecent returns receipts created within the last `window`, newest first.
func (s *ReceiptStore) GetRecent(ctx context.Context, window time.Duration, limit int) ([]*receipt.Receipt, error) {
	cutoff := time.Now().UTC().Add(-window).Format("2006-01-02 15:04:05")

	var payloads []string
	query := s.db.Rebind(`SELECT receipt_json FROM receipts
		WHERE created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &payloads, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list recent receipts: %w", err)
	}
	return unmarshalReceipts(payloads)
}

// GetByStatus returns up to limit receipts with the given status, newest
// first. Useful for finding pending confirmations or failed executions.
func (s *ReceiptStore) GetByStatus(ctx context.Context, status receipt.Status, limit int) ([]*receipt.Receipt, error) {
	return s.List(ctx, limit, 0, status)
}

func unmarshalReceipts(payloads []string) ([]*receipt.Receipt, error) {
	out := make([]*receipt.Receipt, 0, len(payloads))
	for _, p := range payloads {
		var r receipt.Receipt
		if err := json.Unmarshal([]byte(p), &r); err != nil {
			return nil, fmt.Errorf("unmarshal receipt: %w", err)
		}
		out = append(out, &r)
	}
	return out, nil
}
