package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

// Refunder is the marketplace call that returns the buyer's money.
type Refunder interface {
	Refund(ctx context.Context, orderID string) error
}

// RefundHandler decides what happens to the buyer's money after a failed
// delivery. Refunds are attempted once and never retried.
type RefundHandler struct {
	refunder Refunder
	replier  *Replier
	ledger   domain.OrderLedger
	enabled  bool
	now      func() time.Time
	logger   *slog.Logger
}

func NewRefundHandler(logger *slog.Logger, refunder Refunder, replier *Replier, ledger domain.OrderLedger, enabled bool) *RefundHandler {
	return &RefundHandler{
		refunder: refunder,
		replier:  replier,
		ledger:   ledger,
		enabled:  enabled,
		now:      time.Now,
		logger:   logger.With("component", "refund_handler"),
	}
}

// Handle tells the buyer what went wrong and refunds the order when
// automatic refunds are enabled. It reports whether the refund succeeded.
func (h *RefundHandler) Handle(ctx context.Context, session domain.BuyerSession, reason string) bool {
	rec := domain.RefundRecord{OrderID: session.OrderID, Reason: reason}

	if !h.enabled {
		_ = h.replier.Send(ctx, session.ChatID, reason+refundDisabledSuffix)
		h.logger.WarnContext(ctx, "Automatic refund disabled, order needs a manual refund",
			"order_id", session.OrderID, "buyer_id", session.BuyerID, "reason", reason)
		refundsCounter.WithLabelValues("disabled").Inc()
		h.record(ctx, rec)
		return false
	}

	_ = h.replier.Send(ctx, session.ChatID, reason+refundInProgressSuffix)
	rec.Attempted = true
	if err := h.refunder.Refund(ctx, session.OrderID); err != nil {
		h.logger.ErrorContext(ctx, "Refund failed", "order_id", session.OrderID, "reason", reason, "error", err)
		_ = h.replier.Send(ctx, session.ChatID, refundFailed)
		h.logger.WarnContext(ctx, "Could not refund order automatically", "order_id", session.OrderID, "reason", reason)
		refundsCounter.WithLabelValues("failure").Inc()
		h.record(ctx, rec)
		return false
	}

	rec.Succeeded = true
	h.logger.WarnContext(ctx, "Refund issued", "order_id", session.OrderID, "reason", reason)
	_ = h.replier.Send(ctx, session.ChatID, refundSucceeded)
	refundsCounter.WithLabelValues("success").Inc()
	h.record(ctx, rec)
	return true
}

func (h *RefundHandler) record(ctx context.Context, rec domain.RefundRecord) {
	if h.ledger == nil {
		return
	}
	rec.CreatedAt = h.now().UTC()
	if err := h.ledger.RecordRefund(ctx, rec); err != nil {
		h.logger.ErrorContext(ctx, "Failed to record refund in ledger", "order_id", rec.OrderID, "error", err)
	}
}
