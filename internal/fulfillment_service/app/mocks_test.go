package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type MockWallet struct {
	mock.Mock
}

func (m *MockWallet) CheckRecipientExists(ctx context.Context, recipient string) bool {
	args := m.Called(ctx, recipient)
	return args.Bool(0)
}

func (m *MockWallet) Deliver(ctx context.Context, recipient string, quantity int) domain.DeliveryOutcome {
	args := m.Called(ctx, recipient, quantity)
	return args.Get(0).(domain.DeliveryOutcome)
}

func (m *MockWallet) Balance(ctx context.Context) (float64, bool) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Bool(1)
}

type MockOutcomeHandler struct {
	mock.Mock
}

func (m *MockOutcomeHandler) HandleOutcome(ctx context.Context, session domain.BuyerSession, recipient string, outcome domain.DeliveryOutcome) {
	m.Called(ctx, session, recipient, outcome)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) RecordDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockLedger) RecordRefund(ctx context.Context, rec domain.RefundRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

type MockDeactivator struct {
	mock.Mock
}

func (m *MockDeactivator) DeactivateCategory(ctx context.Context, categoryID int64) DeactivationReport {
	args := m.Called(ctx, categoryID)
	return args.Get(0).(DeactivationReport)
}

type MockOrderFetcher struct {
	mock.Mock
}

func (m *MockOrderFetcher) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

// --- Fakes ---

type sentMessage struct {
	ChatID string
	Text   string
}

// chatRecorder records outbound chat messages and refund calls.
type chatRecorder struct {
	mu        sync.Mutex
	sent      []sentMessage
	sendErr   error
	refunded  []string
	refundErr error
}

func (c *chatRecorder) SendMessage(_ context.Context, chatID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (c *chatRecorder) Refund(_ context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refunded = append(c.refunded, orderID)
	return c.refundErr
}

func (c *chatRecorder) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, m := range c.sent {
		out = append(out, m.Text)
	}
	return out
}

// sliceSource replays events, then reports the stream as closed.
type sliceSource struct {
	events []domain.Event
	errs   []error
}

func (s *sliceSource) Next(ctx context.Context) (domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, err
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return domain.Event{}, err
		}
	}
	if len(s.events) == 0 {
		return domain.Event{}, domain.ErrEventStreamClosed
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

var errBridgeDown = errors.New("bridge down")
