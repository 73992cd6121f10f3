package retailers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/dejobratic/orderbus/internal/events"
	"github.com/dejobratic/orderbus/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrRender = errors.New("render notification")
	ErrSend   = errors.New("send notification")
)

// Channel delivers a rendered notification to the outside world.
type Channel interface {
	Send(ctx context.Context, channelID, message string) error
}

// Message is the data a notification template is executed with.
type Message struct {
	SentAt     string
	Retailer   string
	StoreID    string
	DetailType string
	OrderID    string
	CustomerID string
}

// Adapter is the bus target for one retailer. It renders a notification for
// every event it receives and hands it to the channel once.
type Adapter struct {
	retailer  Retailer
	tmpl      *template.Template
	channel   Channel
	channelID string
	now       func() time.Time
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Adapter)

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(a *Adapter) {
		a.metrics = metrics
	}
}

// WithDefaultChannel sets the channel id used when the retailer has none.
func WithDefaultChannel(channelID string) Option {
	return func(a *Adapter) {
		if a.retailer.Channel == "" {
			a.channelID = channelID
		}
	}
}

func NewAdapter(retailer Retailer, channel Channel, opts ...Option) (*Adapter, error) {
	tmpl, err := retailer.template()
	if err != nil {
		return nil, fmt.Errorf("parse template for %s: %w", retailer.StoreID, err)
	}

	a := &Adapter{
		retailer:  retailer,
		tmpl:      tmpl,
		channel:   channel,
		channelID: retailer.Channel,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Retailer() Retailer {
	return a.retailer
}

// Handle does not retry; a failed send is returned so the router records it.
func (a *Adapter) Handle(ctx context.Context, event events.Event) error {
	ctx, span := telemetry.StartEventSpan(ctx, "RetailerAdapter.Handle", event)
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("retailer.store_id", a.retailer.StoreID))

	start := time.Now()
	err := a.notify(ctx, event)
	if a.metrics != nil {
		a.metrics.RecordNotification(ctx, a.retailer.StoreID, time.Since(start).Seconds(), err == nil)
	}

	if err != nil {
		telemetry.RecordSpanError(span, err)
		a.logger.ErrorContext(ctx, "retailer notification failed",
			"error", err,
			"retailer", a.retailer.StoreID,
			"event_id", event.ID,
			"channel", a.channelID,
		)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (a *Adapter) notify(ctx context.Context, event events.Event) error {
	message, err := a.Render(event)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "sending retailer notification",
		"retailer", a.retailer.StoreID,
		"event_id", event.ID,
		"channel", a.channelID,
		"message", message,
	)

	if err := a.channel.Send(ctx, a.channelID, message); err != nil {
		return fmt.Errorf("%w via %q: %w", ErrSend, a.channelID, err)
	}
	return nil
}

// Render executes the retailer's template for event.
func (a *Adapter) Render(event events.Event) (string, error) {
	orderID, _ := event.Detail.String("orderId")
	customerID, _ := event.Detail.String("customerId")

	data := Message{
		SentAt:     a.now().UTC().Format(time.RFC3339),
		Retailer:   a.retailer.DisplayName(),
		StoreID:    a.retailer.StoreID,
		DetailType: event.DetailType,
		OrderID:    orderID,
		CustomerID: customerID,
	}

	var b strings.Builder
	if err := a.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRender, err)
	}
	return b.String(), nil
}
