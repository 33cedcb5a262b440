package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

// RecipientChecker reports whether a username exists on the delivery side.
type RecipientChecker interface {
	CheckRecipientExists(ctx context.Context, recipient string) bool
}

// Deliverer performs the actual stars transfer.
type Deliverer interface {
	Deliver(ctx context.Context, recipient string, quantity int) domain.DeliveryOutcome
}

// OutcomeHandler reacts to a finished delivery attempt.
type OutcomeHandler interface {
	HandleOutcome(ctx context.Context, session domain.BuyerSession, recipient string, outcome domain.DeliveryOutcome)
}

// ChatSender is the part of the marketplace the replier needs.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Replier sends buyer messages and marks the cooldown after each one.
type Replier struct {
	sender   ChatSender
	cooldown *Cooldown
	logger   *slog.Logger
}

func NewReplier(sender ChatSender, cooldown *Cooldown, logger *slog.Logger) *Replier {
	return &Replier{sender: sender, cooldown: cooldown, logger: logger}
}

func (r *Replier) Send(ctx context.Context, chatID, text string) error {
	if err := r.sender.SendMessage(ctx, chatID, text); err != nil {
		r.logger.ErrorContext(ctx, "Failed to send chat message", "chat_id", chatID, "error", err)
		return fmt.Errorf("send chat message to %s: %w", chatID, err)
	}
	r.cooldown.Mark()
	return nil
}

// Conversation walks each buyer from "send your username" to a delivery.
// Begin and HandleMessage are serialized so a session is never updated by
// two events at once.
type Conversation struct {
	mu        sync.Mutex
	sessions  *SessionStore
	replier   *Replier
	checker   RecipientChecker
	deliverer Deliverer
	outcomes  OutcomeHandler
	validate  *validator.Validate
	accountID int64
	logger    *slog.Logger
}

func NewConversation(
	logger *slog.Logger,
	sessions *SessionStore,
	replier *Replier,
	checker RecipientChecker,
	deliverer Deliverer,
	outcomes OutcomeHandler,
	accountID int64,
) *Conversation {
	return &Conversation{
		sessions:  sessions,
		replier:   replier,
		checker:   checker,
		deliverer: deliverer,
		outcomes:  outcomes,
		validate:  validator.New(),
		accountID: accountID,
		logger:    logger.With("component", "conversation"),
	}
}

// Begin opens (or replaces) the buyer's session and asks for a username.
func (c *Conversation) Begin(ctx context.Context, order domain.Order, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if previous, ok := c.sessions.Get(order.BuyerID); ok {
		c.logger.WarnContext(ctx, "Replacing open session for buyer",
			"buyer_id", order.BuyerID, "previous_order_id", previous.OrderID, "order_id", order.ID)
	}
	c.sessions.Put(domain.NewBuyerSession(order, quantity))
	c.logger.InfoContext(ctx, "Session opened", "buyer_id", order.BuyerID, "order_id", order.ID, "quantity", quantity)
	return c.replier.Send(ctx, order.ChatID, nicknamePrompt(quantity))
}

// HandleMessage advances the author's session, if there is one.
func (c *Conversation) HandleMessage(ctx context.Context, msg domain.ChatMessage) error {
	if msg.AuthorID == c.accountID {
		eventsDroppedCounter.WithLabelValues("self").Inc()
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.sessions.Get(msg.AuthorID)
	if !ok {
		eventsDroppedCounter.WithLabelValues("no_session").Inc()
		c.logger.DebugContext(ctx, "Message from buyer without session", "buyer_id", msg.AuthorID)
		return nil
	}
	chatID := session.ChatID
	if chatID == "" {
		chatID = msg.ChatID
	}
	text := strings.TrimSpace(msg.Text)

	switch session.State {
	case domain.StateAwaitingNick:
		if !c.recipientValid(ctx, text) {
			return c.replier.Send(ctx, chatID, nicknameNotFound(text))
		}
		session.PendingRecipient = domain.NormalizeRecipient(text)
		session.State = domain.StateAwaitingConfirmation
		c.sessions.Put(session)
		return c.replier.Send(ctx, chatID, confirmationPrompt(text))

	case domain.StateAwaitingConfirmation:
		if text == domain.ConfirmationToken {
			return c.deliver(ctx, session, chatID)
		}
		if !c.recipientValid(ctx, text) {
			return c.replier.Send(ctx, chatID, nicknameNotFound(text))
		}
		session.PendingRecipient = domain.NormalizeRecipient(text)
		c.sessions.Put(session)
		return c.replier.Send(ctx, chatID, confirmationPrompt(text))

	default:
		if !session.State.IsTerminal() {
			c.logger.WarnContext(ctx, "Session in unknown state, dropping", "buyer_id", session.BuyerID, "state", session.State)
		}
		c.sessions.Delete(session.BuyerID)
		return nil
	}
}

func (c *Conversation) recipientValid(ctx context.Context, text string) bool {
	candidate := domain.NormalizeRecipient(text)
	if err := c.validate.Var(candidate, "required,max=64"); err != nil {
		return false
	}
	return c.checker.CheckRecipientExists(ctx, candidate)
}

func (c *Conversation) deliver(ctx context.Context, session domain.BuyerSession, chatID string) error {
	recipient := session.PendingRecipient
	c.logger.InfoContext(ctx, "Buyer confirmed recipient",
		"buyer_id", session.BuyerID, "order_id", session.OrderID, "recipient", recipient, "quantity", session.Quantity)
	progressErr := c.replier.Send(ctx, chatID, sendingProgress(session.Quantity, recipient))

	start := time.Now()
	outcome := c.deliverer.Deliver(ctx, recipient, session.Quantity)
	deliveryDurationHist.Observe(time.Since(start).Seconds())

	if outcome.Success {
		session.State = domain.StateDelivered
	} else {
		session.State = domain.StateFailedHandled
	}
	c.sessions.Put(session)

	session.ChatID = chatID
	c.outcomes.HandleOutcome(ctx, session, recipient, outcome)
	return progressErr
}

// Sessions exposes the session store for read-only inspection.
func (c *Conversation) Sessions() *SessionStore {
	return c.sessions
}
