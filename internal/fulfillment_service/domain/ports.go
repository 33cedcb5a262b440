package domain

import (
	"context"
	"errors"
	"time"
)

// ErrEventStreamClosed is returned by an EventSource that will never yield
// another event.
var ErrEventStreamClosed = errors.New("event stream closed")

// Marketplace is the command side of the marketplace bridge.
type Marketplace interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	SendMessage(ctx context.Context, chatID, text string) error
	Refund(ctx context.Context, orderID string) error
}

// EventSource yields marketplace events one at a time; Next blocks.
type EventSource interface {
	Next(ctx context.Context) (Event, error)
}

// CredentialStore persists the wallet credential between runs.
type CredentialStore interface {
	Load() (*Credential, error)
	Save(cred Credential) error
}

// DeliveryRecord is one audited delivery attempt.
type DeliveryRecord struct {
	OrderID    string
	BuyerID    int64
	Recipient  string
	Quantity   int
	Success    bool
	HTTPStatus int
	Category   ErrorCategory
	Detail     string
	CreatedAt  time.Time
}

// RefundRecord is one audited refund decision.
type RefundRecord struct {
	OrderID   string
	Attempted bool
	Succeeded bool
	Reason    string
	CreatedAt time.Time
}

// OrderLedger keeps an audit trail of money-moving side effects.
type OrderLedger interface {
	RecordDelivery(ctx context.Context, rec DeliveryRecord) error
	RecordRefund(ctx context.Context, rec RefundRecord) error
}
