package domain

import "strings"

// SessionState is the position of a buyer in the nickname conversation.
type SessionState string

const (
	StateAwaitingNick         SessionState = "awaiting_nick"
	StateAwaitingConfirmation SessionState = "awaiting_confirmation"
	StateDelivered            SessionState = "delivered"
	StateFailedHandled        SessionState = "failed_handled"
)

// ConfirmationToken is the only input that advances AwaitingConfirmation to delivery.
const ConfirmationToken = "+"

// IsTerminal reports whether the session must be removed.
func (s SessionState) IsTerminal() bool {
	return s == StateDelivered || s == StateFailedHandled
}

// BuyerSession tracks one in-flight order for one buyer.
type BuyerSession struct {
	BuyerID          int64        `json:"buyer_id"`
	ChatID           string       `json:"chat_id"`
	OrderID          string       `json:"order_id"`
	Quantity         int          `json:"quantity"`
	State            SessionState `json:"state"`
	PendingRecipient string       `json:"pending_recipient,omitempty"`
}

// NewBuyerSession starts a session in AwaitingNick.
func NewBuyerSession(order Order, quantity int) BuyerSession {
	return BuyerSession{
		BuyerID:  order.BuyerID,
		ChatID:   order.ChatID,
		OrderID:  order.ID,
		Quantity: quantity,
		State:    StateAwaitingNick,
	}
}

// NormalizeRecipient trims the buyer text and strips one leading '@'.
func NormalizeRecipient(text string) string {
	return strings.TrimPrefix(strings.TrimSpace(text), "@")
}
