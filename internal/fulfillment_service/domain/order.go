package domain

import "time"

// Order is the marketplace view of a purchase.
type Order struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	BuyerID     int64  `json:"buyer_id"`
	ChatID      string `json:"chat_id"`
	CategoryID  int64  `json:"category_id,omitempty"`
}

// ListingText returns the text the quantity is read from. An empty title
// falls back to the description.
func (o Order) ListingText() (title, description string) {
	title = o.Title
	if title == "" {
		title = o.Description
	}
	return title, o.Description
}

// ChatMessage is an inbound chat line.
type ChatMessage struct {
	ChatID   string `json:"chat_id"`
	AuthorID int64  `json:"author_id"`
	Text     string `json:"text"`
}

type EventKind string

const (
	EventOrderReceived EventKind = "order_received"
	EventBuyerMessage  EventKind = "buyer_message"
)

// Event is one item of the marketplace event stream.
type Event struct {
	ID         string       `json:"id"`
	Kind       EventKind    `json:"type"`
	Order      *Order       `json:"order,omitempty"`
	Message    *ChatMessage `json:"message,omitempty"`
	ReceivedAt time.Time    `json:"-"`
}
