package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/starsgate/golang_services/internal/fulfillment_service/classifier"
	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
	"github.com/starsgate/golang_services/internal/fulfillment_service/provider"
)

// rawBalance serves a wallet balance body through the provider's parser.
type rawBalance string

func (r rawBalance) Balance(context.Context) (float64, bool) {
	return provider.ParseBalance([]byte(r))
}

func testSession() domain.BuyerSession {
	return domain.BuyerSession{BuyerID: 42, ChatID: "chat-42", OrderID: "ORD-1", Quantity: 100, State: domain.StateFailedHandled}
}

func TestBalanceMonitor_LowBalanceDeactivates(t *testing.T) {
	ctx := context.Background()
	deactivator := new(MockDeactivator)
	deactivator.On("DeactivateCategory", ctx, int64(2418)).Return(DeactivationReport{CategoryID: 2418, Deactivated: 3}).Once()

	m := NewBalanceMonitor(discardLogger(), rawBalance(`{"wallet":{"balance":2.5}}`), deactivator, 5.0, true, 2418)
	check := m.Check(ctx)

	assert.True(t, check.Known)
	assert.True(t, check.BelowThreshold)
	assert.InDelta(t, 2.5, check.Balance, 1e-9)
	require.NotNil(t, check.Report)
	assert.Equal(t, 3, check.Report.Deactivated)
	deactivator.AssertExpectations(t)
}

func TestBalanceMonitor_NoDeactivationWhenDisabledOrHealthy(t *testing.T) {
	ctx := context.Background()
	deactivator := new(MockDeactivator)

	disabled := NewBalanceMonitor(discardLogger(), rawBalance(`{"balance":1}`), deactivator, 5.0, false, 2418)
	check := disabled.Check(ctx)
	assert.True(t, check.BelowThreshold)
	assert.Nil(t, check.Report)

	healthy := NewBalanceMonitor(discardLogger(), rawBalance(`{"data":{"amount":"50"}}`), deactivator, 5.0, true, 2418)
	check = healthy.Check(ctx)
	assert.True(t, check.Known)
	assert.False(t, check.BelowThreshold)

	unknown := NewBalanceMonitor(discardLogger(), rawBalance(`{"status":"ok"}`), deactivator, 5.0, true, 2418)
	check = unknown.Check(ctx)
	assert.False(t, check.Known)

	deactivator.AssertNotCalled(t, "DeactivateCategory", mock.Anything, mock.Anything)
}

func TestRefundHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("EnabledSuccess", func(t *testing.T) {
		chat := &chatRecorder{}
		ledger := new(MockLedger)
		ledger.On("RecordRefund", ctx, mock.MatchedBy(func(r domain.RefundRecord) bool {
			return r.OrderID == "ORD-1" && r.Attempted && r.Succeeded && r.Reason == "boom"
		})).Return(nil).Once()
		h := NewRefundHandler(discardLogger(), chat, NewReplier(chat, nil, discardLogger()), ledger, true)

		assert.True(t, h.Handle(ctx, testSession(), "boom"))
		assert.Equal(t, []string{"ORD-1"}, chat.refunded)
		assert.Equal(t, []string{"boom" + refundInProgressSuffix, refundSucceeded}, chat.texts())
		ledger.AssertExpectations(t)
	})

	t.Run("EnabledFailure", func(t *testing.T) {
		chat := &chatRecorder{refundErr: errBridgeDown}
		ledger := new(MockLedger)
		ledger.On("RecordRefund", ctx, mock.MatchedBy(func(r domain.RefundRecord) bool {
			return r.Attempted && !r.Succeeded
		})).Return(nil).Once()
		h := NewRefundHandler(discardLogger(), chat, NewReplier(chat, nil, discardLogger()), ledger, true)

		assert.False(t, h.Handle(ctx, testSession(), "boom"))
		assert.Len(t, chat.refunded, 1, "refund is not retried")
		assert.Equal(t, []string{"boom" + refundInProgressSuffix, refundFailed}, chat.texts())
	})

	t.Run("Disabled", func(t *testing.T) {
		chat := &chatRecorder{}
		ledger := new(MockLedger)
		ledger.On("RecordRefund", ctx, mock.MatchedBy(func(r domain.RefundRecord) bool {
			return !r.Attempted
		})).Return(nil).Once()
		h := NewRefundHandler(discardLogger(), chat, NewReplier(chat, nil, discardLogger()), ledger, false)

		assert.False(t, h.Handle(ctx, testSession(), "boom"))
		assert.Empty(t, chat.refunded)
		assert.Equal(t, []string{"boom" + refundDisabledSuffix}, chat.texts())
	})
}

func TestFulfillment_FailureRefundsAndChecksBalance(t *testing.T) {
	ctx := context.Background()
	chat := &chatRecorder{}
	replier := NewReplier(chat, nil, discardLogger())
	ledger := new(MockLedger)
	deactivator := new(MockDeactivator)

	insufficient := classifier.Message(domain.CategoryInsufficientBalance)
	ledger.On("RecordDelivery", ctx, mock.MatchedBy(func(r domain.DeliveryRecord) bool {
		return !r.Success && r.Category == domain.CategoryInsufficientBalance && r.HTTPStatus == 400 && r.Recipient == "user1"
	})).Return(nil).Once()
	ledger.On("RecordRefund", ctx, mock.Anything).Return(nil).Once()
	deactivator.On("DeactivateCategory", ctx, int64(2418)).Return(DeactivationReport{Deactivated: 1}).Once()

	f := NewFulfillment(discardLogger(), replier,
		NewRefundHandler(discardLogger(), chat, replier, ledger, true),
		NewBalanceMonitor(discardLogger(), rawBalance(`{"wallet":{"balance":2.5}}`), deactivator, 5.0, true, 2418),
		ledger,
	)

	f.HandleOutcome(ctx, testSession(), "user1", domain.DeliveryOutcome{
		Status: 400,
		Body:   `{"errors":[{"error":"Not enough balance"}]}`,
	})

	assert.Equal(t, []string{"ORD-1"}, chat.refunded)
	texts := chat.texts()
	require.NotEmpty(t, texts)
	assert.Equal(t, insufficient+refundInProgressSuffix, texts[0])
	ledger.AssertExpectations(t)
	deactivator.AssertExpectations(t)
}

func TestFulfillment_SuccessNotifiesBuyer(t *testing.T) {
	ctx := context.Background()
	chat := &chatRecorder{}
	replier := NewReplier(chat, nil, discardLogger())
	ledger := new(MockLedger)
	ledger.On("RecordDelivery", ctx, mock.MatchedBy(func(r domain.DeliveryRecord) bool {
		return r.Success && r.Quantity == 100
	})).Return(nil).Once()
	wallet := new(MockWallet)

	f := NewFulfillment(discardLogger(), replier,
		NewRefundHandler(discardLogger(), chat, replier, ledger, true),
		NewBalanceMonitor(discardLogger(), wallet, new(MockDeactivator), 5.0, true, 2418),
		ledger,
	)
	f.HandleOutcome(ctx, testSession(), "user1", domain.DeliveryOutcome{Success: true, Status: 200})

	assert.Equal(t, []string{deliverySucceeded(100, "user1")}, chat.texts())
	assert.Empty(t, chat.refunded)
	wallet.AssertNotCalled(t, "Balance", mock.Anything)
	ledger.AssertExpectations(t)
}
