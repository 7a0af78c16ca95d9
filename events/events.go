// Package events publishes receipt lifecycle events to NATS. Publishing
// is fire-and-forget: broker errors are logged, never surfaced to the
// request path.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/atlas/receipt"
)

// SubjectReceiptCompleted carries the full receipt JSON for every
// persisted receipt.
const SubjectReceiptCompleted = "atlas.receipt.completed"

// Publisher emits engine events. Implementations must not block the
// request path on broker failures.
type Publisher interface {
	// ReceiptCompleted announces a persisted receipt.
	ReceiptCompleted(rec *receipt.Receipt)
	// Close releases the underlying connection, if any.
	Close()
}

// Noop discards all events. Used when NATS_URL is not configured.
type Noop struct{}

// ReceiptCompleted discards the event.
func (Noop) ReceiptCompleted(*receipt.Receipt) {}

// Close does nothing.
func (Noop) Close() {}

// natsConn is the subset of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
	IsConnected() bool
}

// NATSPublisher publishes events over a core NATS connection.
type NATSPublisher struct {
	conn   natsConn
	logger *slog.Logger
}

// Option configures a NATSPublisher.
type Option func(*NATSPublisher)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(p *NATSPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Connect dials NATS at url and returns a publisher bound to the
// connection.
func Connect(url string, opts ...Option) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("atlas"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return newPublisher(conn, opts...), nil
}

func newPublisher(conn natsConn, opts ...Option) *NATSPublisher {
	p := &NATSPublisher{
		conn:   conn,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ReceiptCompleted publishes the receipt JSON to SubjectReceiptCompleted.
// Marshal and publish errors are logged at warn level and swallowed.
func (p *NATSPublisher) ReceiptCompleted(rec *receipt.Receipt) {
	data, err := json.Marshal(rec)
	if err != nil {
		p.logger.Warn("marshal receipt event",
			"receipt_id", rec.ReceiptID,
			"error", err)
		return
	}

	if err := p.conn.Publish(SubjectReceiptCompleted, data); err != nil {
		p.logger.Warn("publish receipt event",
			"subject", SubjectReceiptCompleted,
			"receipt_id", rec.ReceiptID,
			"error", err)
		return
	}

	p.logger.Debug("receipt event published",
		"subject", SubjectReceiptCompleted,
		"receipt_id", rec.ReceiptID,
		"status", rec.Status)
}

// Connected reports whether the underlying connection is live.
func (p *NATSPublisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains in-flight messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("drain NATS connection", "error", err)
	}
	p.conn.Close()
}
