package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/starsgate/golang_services/internal/fulfillment_service/classifier"
	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

const failureBodyLogLimit = 800

// Fulfillment handles finished deliveries: the buyer is told the result, the
// attempt is written to the ledger, and failures go through the refund path
// followed by a balance check.
type Fulfillment struct {
	replier *Replier
	refunds *RefundHandler
	balance *BalanceMonitor
	ledger  domain.OrderLedger
	now     func() time.Time
	logger  *slog.Logger
}

var _ OutcomeHandler = (*Fulfillment)(nil)

func NewFulfillment(logger *slog.Logger, replier *Replier, refunds *RefundHandler, balance *BalanceMonitor, ledger domain.OrderLedger) *Fulfillment {
	return &Fulfillment{
		replier: replier,
		refunds: refunds,
		balance: balance,
		ledger:  ledger,
		now:     time.Now,
		logger:  logger.With("component", "fulfillment"),
	}
}

func (f *Fulfillment) HandleOutcome(ctx context.Context, session domain.BuyerSession, recipient string, outcome domain.DeliveryOutcome) {
	rec := domain.DeliveryRecord{
		OrderID:    session.OrderID,
		BuyerID:    session.BuyerID,
		Recipient:  recipient,
		Quantity:   session.Quantity,
		Success:    outcome.Success,
		HTTPStatus: outcome.Status,
	}

	if outcome.Success {
		deliveriesCounter.WithLabelValues("success", "").Inc()
		f.logger.InfoContext(ctx, "Stars delivered",
			"order_id", session.OrderID, "recipient", recipient, "quantity", session.Quantity)
		_ = f.replier.Send(ctx, session.ChatID, deliverySucceeded(session.Quantity, recipient))
		f.record(ctx, rec)
		return
	}

	classification := outcome.Classification
	if classification == nil {
		c := classifier.Classify(outcome.Status, outcome.Body)
		classification = &c
	}
	deliveriesCounter.WithLabelValues("failure", string(classification.Category)).Inc()
	f.logger.ErrorContext(ctx, "Stars delivery failed",
		"order_id", session.OrderID,
		"status_code", outcome.Status,
		"body", clipRunes(outcome.Body, failureBodyLogLimit),
		"category", classification.Category,
		"reason", classification.Message,
	)
	rec.Category = classification.Category
	rec.Detail = clipRunes(outcome.Body, failureBodyLogLimit)
	f.record(ctx, rec)

	f.refunds.Handle(ctx, session, classification.Message)
	f.balance.Check(ctx)
}

func (f *Fulfillment) record(ctx context.Context, rec domain.DeliveryRecord) {
	if f.ledger == nil {
		return
	}
	rec.CreatedAt = f.now().UTC()
	if err := f.ledger.RecordDelivery(ctx, rec); err != nil {
		f.logger.ErrorContext(ctx, "Failed to record delivery in ledger", "order_id", rec.OrderID, "error", err)
	}
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
