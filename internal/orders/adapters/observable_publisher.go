package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/orderbus/internal/bus"
	"github.com/dejobratic/orderbus/internal/events"
	"github.com/dejobratic/orderbus/internal/orders/ports"
	"github.com/dejobratic/orderbus/internal/telemetry"
)

type ObservablePublisher struct {
	publisher ports.Publisher
	metrics   *bus.Metrics
}

func NewObservablePublisher(publisher ports.Publisher, metrics *bus.Metrics) *ObservablePublisher {
	return &ObservablePublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *ObservablePublisher) Publish(ctx context.Context, event events.Event) error {
	ctx, span := telemetry.StartEventSpan(ctx, "Publisher.Publish", event)

	start := time.Now()
	err := p.publisher.Publish(ctx, event)
	p.metrics.RecordPublish(ctx, event.DetailType, time.Since(start).Seconds(), err == nil)

	telemetry.EndSpan(span, err)
	return err
}
