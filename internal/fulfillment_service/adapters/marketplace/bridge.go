// Package marketplace talks to the marketplace bridge process over NATS.
// The bridge owns the marketplace session; this service only sends commands
// and reads the event stream.
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

// ErrRejected is returned when the bridge answers with ok=false.
var ErrRejected = errors.New("marketplace bridge rejected request")

// unsupportedReply is the error text of a bridge that does not offer a call.
const unsupportedReply = "unsupported"

// Requester is the request/reply side of a NATS connection.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
}

type Config struct {
	SubjectPrefix  string
	RequestTimeout time.Duration
}

// Bridge implements the marketplace commands on top of NATS request/reply.
type Bridge struct {
	requester Requester
	prefix    string
	timeout   time.Duration
	logger    *slog.Logger
}

var _ domain.Marketplace = (*Bridge)(nil)

func NewBridge(logger *slog.Logger, requester Requester, cfg Config) *Bridge {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "marketplace"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Bridge{
		requester: requester,
		prefix:    cfg.SubjectPrefix,
		timeout:   cfg.RequestTimeout,
		logger:    logger.With("component", "marketplace_bridge"),
	}
}

// Subject returns the full subject for a bridge endpoint.
func (b *Bridge) Subject(name string) string {
	return b.prefix + "." + name
}

type envelope struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type orderRequest struct {
	OrderID string `json:"order_id"`
}

type chatRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type categoryRequest struct {
	CategoryID int64 `json:"category_id,omitempty"`
}

type lotRequest struct {
	LotID string `json:"lot_id"`
}

type saveRequest struct {
	Lot domain.ListingView `json:"lot"`
}

func (b *Bridge) call(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	subject := b.Subject(name)
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", subject, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	msg, err := b.requester.Request(reqCtx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("no bridge listening on %s: %w", subject, err)
		}
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}

	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return nil, fmt.Errorf("decode %s reply: %w", subject, err)
	}
	if !env.OK {
		if env.Error == unsupportedReply {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnsupported, subject)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrRejected, subject, env.Error)
	}
	return env.Data, nil
}

func (b *Bridge) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	data, err := b.call(ctx, "orders.get", orderRequest{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	var order domain.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	if order.ID == "" {
		order.ID = orderID
	}
	return &order, nil
}

func (b *Bridge) SendMessage(ctx context.Context, chatID, text string) error {
	_, err := b.call(ctx, "chat.send", chatRequest{ChatID: chatID, Text: text})
	return err
}

func (b *Bridge) Refund(ctx context.Context, orderID string) error {
	_, err := b.call(ctx, "orders.refund", orderRequest{OrderID: orderID})
	return err
}

// DeactivationChains lists the bridge's listing calls in the order the
// deactivator should try them.
func (b *Bridge) DeactivationChains() domain.DeactivationChains {
	return domain.DeactivationChains{
		Discovery: []domain.ListingDiscovery{
			{Name: "lots.subcategory", Discover: b.discover("lots.subcategory")},
			{Name: "lots.mine", Discover: b.discover("lots.mine")},
			{Name: "lots.all", Discover: b.discoverAll, Unfiltered: true},
		},
		FieldFetch: []domain.ListingFieldFetch{
			{Name: "lots.fields", Fetch: b.fetchFields},
			{Name: "lots.get", Fetch: b.fetchLot},
		},
		Save: []domain.ListingSave{
			{Name: "lots.save", Save: b.save("lots.save")},
			{Name: "lots.update", Save: b.save("lots.update")},
		},
		FallbackSave: &domain.ListingSave{Name: "lots.save", Save: b.save("lots.save")},
	}
}

func (b *Bridge) discover(name string) func(context.Context, int64) ([]domain.ListingView, error) {
	return func(ctx context.Context, categoryID int64) ([]domain.ListingView, error) {
		data, err := b.call(ctx, name, categoryRequest{CategoryID: categoryID})
		if err != nil {
			return nil, err
		}
		return domain.ListingViewsFromJSON(data)
	}
}

func (b *Bridge) discoverAll(ctx context.Context, _ int64) ([]domain.ListingView, error) {
	data, err := b.call(ctx, "lots.all", categoryRequest{})
	if err != nil {
		return nil, err
	}
	return domain.ListingViewsFromJSON(data)
}

func (b *Bridge) fetchFields(ctx context.Context, listingID string) (domain.ListingView, error) {
	data, err := b.call(ctx, "lots.fields", lotRequest{LotID: listingID})
	if err != nil {
		return nil, err
	}
	views, err := domain.ListingViewsFromJSON(data)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, fmt.Errorf("no fields for listing %s", listingID)
	}
	return views[0], nil
}

func (b *Bridge) fetchLot(ctx context.Context, listingID string) (domain.ListingView, error) {
	data, err := b.call(ctx, "lots.get", lotRequest{LotID: listingID})
	if err != nil {
		return nil, err
	}
	var lot domain.Lot
	if err := json.Unmarshal(data, &lot); err != nil {
		return nil, fmt.Errorf("decode lot %s: %w", listingID, err)
	}
	if lot.ID() == "" {
		return nil, fmt.Errorf("lot %s has no id", listingID)
	}
	return &lot, nil
}

func (b *Bridge) save(name string) func(context.Context, domain.ListingView) error {
	return func(ctx context.Context, fields domain.ListingView) error {
		_, err := b.call(ctx, name, saveRequest{Lot: fields})
		return err
	}
}
