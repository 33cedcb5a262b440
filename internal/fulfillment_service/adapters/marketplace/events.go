package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

// MessageSource is a synchronous NATS subscription.
type MessageSource interface {
	NextMsgWithContext(ctx context.Context) (*nats.Msg, error)
}

// EventStream reads marketplace events published by the bridge. Messages
// that cannot be decoded are logged and skipped.
type EventStream struct {
	source MessageSource
	now    func() time.Time
	logger *slog.Logger
}

var _ domain.EventSource = (*EventStream)(nil)

func NewEventStream(logger *slog.Logger, source MessageSource) *EventStream {
	return &EventStream{source: source, now: time.Now, logger: logger.With("component", "marketplace_events")}
}

// Next blocks until the next decodable event arrives or ctx is done.
func (s *EventStream) Next(ctx context.Context) (domain.Event, error) {
	for {
		msg, err := s.source.NextMsgWithContext(ctx)
		if err != nil {
			if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
				return domain.Event{}, fmt.Errorf("%w: %v", domain.ErrEventStreamClosed, err)
			}
			return domain.Event{}, err
		}

		var event domain.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.WarnContext(ctx, "Skipping undecodable marketplace event",
				"subject", msg.Subject, "error", err, "data_len", len(msg.Data))
			continue
		}
		event.ReceivedAt = s.now()
		s.logger.DebugContext(ctx, "Marketplace event received", "event_id", event.ID, "event_type", event.Kind)
		return event, nil
	}
}
