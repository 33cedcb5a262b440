package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
	"github.com/starsgate/golang_services/internal/fulfillment_service/quantity"
)

// OrderFetcher loads the full order behind an order event.
type OrderFetcher interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

// OrchestratorConfig holds the order filter and loop timing.
type OrchestratorConfig struct {
	CategoryID       int64
	FilterByCategory bool
	// RetryDelay is the pause after a failed read from the event stream.
	RetryDelay time.Duration
}

// Orchestrator is the single event loop. Events are processed one at a time;
// events arriving while the reply cooldown is active are dropped.
type Orchestrator struct {
	source       domain.EventSource
	orders       OrderFetcher
	conversation *Conversation
	cooldown     *Cooldown
	cfg          OrchestratorConfig
	logger       *slog.Logger
}

func NewOrchestrator(logger *slog.Logger, source domain.EventSource, orders OrderFetcher, conversation *Conversation, cooldown *Cooldown, cfg OrchestratorConfig) *Orchestrator {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Orchestrator{
		source:       source,
		orders:       orders,
		conversation: conversation,
		cooldown:     cooldown,
		cfg:          cfg,
		logger:       logger.With("component", "orchestrator"),
	}
}

// Run reads events until ctx is cancelled or the stream is closed.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "Waiting for marketplace events...")
	for {
		event, err := o.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				o.logger.InfoContext(ctx, "Event loop stopping", "reason", ctx.Err())
				return ctx.Err()
			}
			if errors.Is(err, domain.ErrEventStreamClosed) {
				return err
			}
			o.logger.ErrorContext(ctx, "Failed to read marketplace event", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.cfg.RetryDelay):
			}
			continue
		}
		o.Process(ctx, event)
	}
}

// Process handles one event. Errors and panics are logged with the event id
// and never escape.
func (o *Orchestrator) Process(ctx context.Context, event domain.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	logger := o.logger.With("event_id", event.ID, "event_type", event.Kind)
	eventsReceivedCounter.WithLabelValues(string(event.Kind)).Inc()

	defer func() {
		if r := recover(); r != nil {
			eventsDroppedCounter.WithLabelValues("panic").Inc()
			logger.ErrorContext(ctx, "Recovered from panic while processing event",
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	if o.cooldown.Active() {
		eventsDroppedCounter.WithLabelValues("cooldown").Inc()
		logger.DebugContext(ctx, "Reply cooldown active, dropping event")
		return
	}

	var err error
	switch event.Kind {
	case domain.EventOrderReceived:
		if event.Order == nil {
			eventsDroppedCounter.WithLabelValues("malformed").Inc()
			logger.WarnContext(ctx, "Order event without order")
			return
		}
		err = o.handleOrder(ctx, logger, *event.Order)
	case domain.EventBuyerMessage:
		if event.Message == nil {
			eventsDroppedCounter.WithLabelValues("malformed").Inc()
			logger.WarnContext(ctx, "Message event without message")
			return
		}
		err = o.conversation.HandleMessage(ctx, *event.Message)
	default:
		eventsDroppedCounter.WithLabelValues("malformed").Inc()
		logger.DebugContext(ctx, "Ignoring unknown event type")
		return
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to process event", slog.Any("error", err))
	}
}

func (o *Orchestrator) handleOrder(ctx context.Context, logger *slog.Logger, order domain.Order) error {
	order = o.completeOrder(ctx, logger, order)

	if o.cfg.FilterByCategory && order.CategoryID != o.cfg.CategoryID {
		eventsDroppedCounter.WithLabelValues("category").Inc()
		logger.InfoContext(ctx, "Skipping order outside the stars category",
			"order_id", order.ID, "category_id", order.CategoryID)
		return nil
	}

	title, description := order.ListingText()
	qty := quantity.Extract(title, description)
	logger.InfoContext(ctx, "New order",
		"order_id", order.ID, "buyer_id", order.BuyerID, "title", title, "quantity", qty)
	return o.conversation.Begin(ctx, order, qty)
}

// completeOrder fills the event's order from the full marketplace order. The
// event data is kept when the lookup fails.
func (o *Orchestrator) completeOrder(ctx context.Context, logger *slog.Logger, order domain.Order) domain.Order {
	if o.orders == nil || order.ID == "" {
		return order
	}
	full, err := o.orders.GetOrder(ctx, order.ID)
	if err != nil || full == nil {
		logger.WarnContext(ctx, "Could not load full order, using event data", "order_id", order.ID, "error", err)
		return order
	}
	if full.Title != "" {
		order.Title = full.Title
	}
	if full.Description != "" {
		order.Description = full.Description
	}
	if full.BuyerID != 0 {
		order.BuyerID = full.BuyerID
	}
	if full.ChatID != "" {
		order.ChatID = full.ChatID
	}
	if full.CategoryID != 0 {
		order.CategoryID = full.CategoryID
	}
	return order
}
