package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS fulfillment_orders (
		id UUID PRIMARY KEY,
		order_id TEXT NOT NULL,
		buyer_id BIGINT NOT NULL,
		recipient TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		status TEXT NOT NULL,
		http_status INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fulfillment_orders_order_id ON fulfillment_orders (order_id)`,
	`CREATE TABLE IF NOT EXISTS fulfillment_refunds (
		id UUID PRIMARY KEY,
		order_id TEXT NOT NULL,
		attempted BOOLEAN NOT NULL,
		succeeded BOOLEAN NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

const (
	insertDeliverySQL = `INSERT INTO fulfillment_orders (id, order_id, buyer_id, recipient, quantity, status, http_status, category, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	insertRefundSQL = `INSERT INTO fulfillment_refunds (id, order_id, attempted, succeeded, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	countDeliveriesSQL = `SELECT status, COUNT(*) FROM fulfillment_orders GROUP BY status`
)

// PgFulfillmentLedger keeps the audit trail of deliveries and refunds.
type PgFulfillmentLedger struct {
	db     DBTX
	logger *slog.Logger
}

var _ domain.OrderLedger = (*PgFulfillmentLedger)(nil)

func NewPgFulfillmentLedger(db DBTX, logger *slog.Logger) *PgFulfillmentLedger {
	return &PgFulfillmentLedger{db: db, logger: logger.With("component", "fulfillment_ledger_pg")}
}

// EnsureSchema creates the ledger tables if they are missing.
func (r *PgFulfillmentLedger) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure fulfillment ledger schema: %w", err)
		}
	}
	r.logger.InfoContext(ctx, "Fulfillment ledger schema ready")
	return nil
}

func (r *PgFulfillmentLedger) RecordDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	status := "failed"
	if rec.Success {
		status = "delivered"
	}
	_, err := r.db.Exec(ctx, insertDeliverySQL,
		uuid.New(), rec.OrderID, rec.BuyerID, rec.Recipient, rec.Quantity,
		status, rec.HTTPStatus, string(rec.Category), rec.Detail, rec.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert delivery record", "order_id", rec.OrderID, "error", err)
		return fmt.Errorf("insert delivery record for %s: %w", rec.OrderID, err)
	}
	return nil
}

func (r *PgFulfillmentLedger) RecordRefund(ctx context.Context, rec domain.RefundRecord) error {
	_, err := r.db.Exec(ctx, insertRefundSQL,
		uuid.New(), rec.OrderID, rec.Attempted, rec.Succeeded, rec.Reason, rec.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert refund record", "order_id", rec.OrderID, "error", err)
		return fmt.Errorf("insert refund record for %s: %w", rec.OrderID, err)
	}
	return nil
}

// DeliveryCounts returns the number of recorded deliveries per status.
func (r *PgFulfillmentLedger) DeliveryCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, countDeliveriesSQL)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan delivery count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery counts: %w", err)
	}
	return counts, nil
}

// NoopLedger is used when no database is configured.
type NoopLedger struct{}

var _ domain.OrderLedger = NoopLedger{}

func (NoopLedger) RecordDelivery(context.Context, domain.DeliveryRecord) error { return nil }

func (NoopLedger) RecordRefund(context.Context, domain.RefundRecord) error { return nil }
