package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

const testAccountID int64 = 1

type conversationFixture struct {
	conv     *Conversation
	sessions *SessionStore
	chat     *chatRecorder
	wallet   *MockWallet
	outcomes *MockOutcomeHandler
	cooldown *Cooldown
}

func newConversationFixture() *conversationFixture {
	f := &conversationFixture{
		sessions: NewSessionStore(),
		chat:     &chatRecorder{},
		wallet:   new(MockWallet),
		outcomes: new(MockOutcomeHandler),
		cooldown: NewCooldown(0),
	}
	replier := NewReplier(f.chat, f.cooldown, discardLogger())
	f.conv = NewConversation(discardLogger(), f.sessions, replier, f.wallet, f.wallet, f.outcomes, testAccountID)
	return f
}

func testOrder() domain.Order {
	return domain.Order{ID: "ORD-1", Title: "100 stars", BuyerID: 42, ChatID: "chat-42", CategoryID: 2418}
}

func buyerSays(text string) domain.ChatMessage {
	return domain.ChatMessage{ChatID: "chat-42", AuthorID: 42, Text: text}
}

func TestConversation_NickThenConfirmDelivers(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture()

	require.NoError(t, f.conv.Begin(ctx, testOrder(), 100))
	session, ok := f.sessions.Get(42)
	require.True(t, ok)
	assert.Equal(t, domain.StateAwaitingNick, session.State)

	f.wallet.On("CheckRecipientExists", ctx, "user1").Return(true).Once()
	require.NoError(t, f.conv.HandleMessage(ctx, buyerSays("@user1")))

	session, _ = f.sessions.Get(42)
	assert.Equal(t, domain.StateAwaitingConfirmation, session.State)
	assert.Equal(t, "user1", session.PendingRecipient)

	success := domain.DeliveryOutcome{Success: true, Status: 200, Body: `{"ok":true}`}
	f.wallet.On("Deliver", ctx, "user1", 100).Return(success).Once()
	f.outcomes.On("HandleOutcome", ctx, mock.MatchedBy(func(s domain.BuyerSession) bool {
		return s.OrderID == "ORD-1" && s.State == domain.StateDelivered && s.ChatID == "chat-42"
	}), "user1", success).Once()

	require.NoError(t, f.conv.HandleMessage(ctx, buyerSays("+")))

	_, ok = f.sessions.Get(42)
	assert.False(t, ok, "session removed after delivery")
	assert.Equal(t, 0, f.sessions.Len())
	f.wallet.AssertNumberOfCalls(t, "Deliver", 1)
	f.wallet.AssertExpectations(t)
	f.outcomes.AssertExpectations(t)

	texts := f.chat.texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], "100 ⭐")
	assert.Contains(t, texts[1], `"@user1"`)
	assert.Equal(t, sendingProgress(100, "user1"), texts[2])
}

func TestConversation_FailedDeliveryEndsSession(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture()
	require.NoError(t, f.conv.Begin(ctx, testOrder(), 50))
	f.wallet.On("CheckRecipientExists", ctx, "user1").Return(true)
	require.NoError(t, f.conv.HandleMessage(ctx, buyerSays("user1")))

	failure := domain.DeliveryOutcome{Status: 400, Body: `{"username":["bad"]}`}
	f.wallet.On("Deliver", ctx, "user1", 50).Return(failure).Once()
	f.outcomes.On("HandleOutcome", ctx, mock.MatchedBy(func(s domain.BuyerSession) bool {
		return s.State == domain.StateFailedHandled
	}), "user1", failure).Once()

	require.NoError(t, f.conv.HandleMessage(ctx, buyerSays(" + ")))
	assert.Equal(t, 0, f.sessions.Len())
	f.outcomes.AssertExpectations(t)
}

func TestConversation_InvalidNickKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture()
	require.NoError(t, f.conv.Begin(ctx, testOrder(), 100))

	f.wallet.On("CheckRecipientExists", ctx, "ghost").Return(false).Once()
	require.NoError(t, f.conv.HandleMessage(ctx, buyerSays("@ghost")))

	session, ok := f.sessions.Get(42)
	require.True(t, ok)
	assert.Equal(t, domain.StateAwaitingNick, session.State)
	assert.Empty(t, session.PendingRecipient)
	texts := f.chat.texts()
	assert.Equal(t, nicknameNotFound("@ghost"), texts[len(texts)-1])
}

func TestConversation_EmptyTextSkipsProvider(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture()
	require.NoError(t, f.conv.Begin(ctx, testOrder(), 100))

	require.NoError(t, f.conv.HandleMessage(ctx, buyerSays("   ")))
	require.NoError(t, f.conv.HandleMessage(ctx, buyerSays("@")))

	f.wallet.AssertNotCalled(t, "CheckRecipientExists", mock.Anything, mock.Anything)
	session, _ := f.sessions.Get(42)
	assert.Equal(t, domain.StateAwaitingNick, session.State)
}

func TestConversation_ReplacementCandidate(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture()
	require.NoError(t, f.conv.Begin(ctx, testOrder(), 100))

	f.wallet.On("CheckRecipientExists", ctx, "first").Return(true)
	f.wallet.On("CheckRecipientExists", ctx, "second").Return(true)
	f.wallet.On("CheckRecipientExists", ctx, "missing").Return(false)

	require.NoError(t, f.conv.HandleMessage(ctx, buyerSays("first")))
	require.NoError(t, f.conv.HandleMessage(ctx, buyerSays("@second")))
	session, _ := f.sessions.Get(42)
	assert.Equal(t, domain.StateAwaitingConfirmation, session.State)
	assert.Equal(t, "second", session.PendingRecipient)

	require.NoError(t, f.conv.HandleMessage(ctx, buyerSays("missing")))
	session, _ = f.sessions.Get(42)
	assert.Equal(t, domain.StateAwaitingConfirmation, session.State)
	assert.Equal(t, "second", session.PendingRecipient)

	f.wallet.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
}

func TestConversation_IgnoresOwnAndUnknownAuthors(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture()
	require.NoError(t, f.conv.Begin(ctx, testOrder(), 100))
	before := len(f.chat.texts())

	require.NoError(t, f.conv.HandleMessage(ctx, domain.ChatMessage{ChatID: "chat-42", AuthorID: testAccountID, Text: "+"}))
	require.NoError(t, f.conv.HandleMessage(ctx, domain.ChatMessage{ChatID: "chat-7", AuthorID: 7, Text: "@user1"}))

	assert.Len(t, f.chat.texts(), before)
	f.wallet.AssertNotCalled(t, "CheckRecipientExists", mock.Anything, mock.Anything)
	session, _ := f.sessions.Get(42)
	assert.Equal(t, domain.StateAwaitingNick, session.State)
}

func TestConversation_NewOrderOverwritesSession(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture()
	require.NoError(t, f.conv.Begin(ctx, testOrder(), 100))

	f.wallet.On("CheckRecipientExists", ctx, "user1").Return(true)
	require.NoError(t, f.conv.HandleMessage(ctx, buyerSays("user1")))

	second := testOrder()
	second.ID = "ORD-2"
	require.NoError(t, f.conv.Begin(ctx, second, 250))

	assert.Equal(t, 1, f.sessions.Len())
	session, _ := f.sessions.Get(42)
	assert.Equal(t, "ORD-2", session.OrderID)
	assert.Equal(t, 250, session.Quantity)
	assert.Equal(t, domain.StateAwaitingNick, session.State)
	assert.Empty(t, session.PendingRecipient)
}

func TestConversation_RepliesMarkCooldown(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture()
	f.cooldown.window = time.Second
	assert.False(t, f.cooldown.Active())

	require.NoError(t, f.conv.Begin(ctx, testOrder(), 100))
	assert.True(t, f.cooldown.Active())
}

func TestConversation_SendFailureDoesNotMarkCooldown(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture()
	f.cooldown.window = time.Second
	f.chat.sendErr = errBridgeDown

	err := f.conv.Begin(ctx, testOrder(), 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBridgeDown)
	assert.False(t, f.cooldown.Active())
	assert.Equal(t, 1, f.sessions.Len())
}
