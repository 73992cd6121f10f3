package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/orderbus/internal/events"
	"github.com/dejobratic/orderbus/internal/telemetry"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Forwarder is a bus target that mirrors events onto NATS as JSON under
// <prefix>.<source>.<detailType>.
type Forwarder struct {
	conn    *nats.Conn
	prefix  string
	metrics *Metrics
}

func NewForwarder(conn *nats.Conn, prefix string, metrics *Metrics) *Forwarder {
	return &Forwarder{conn: conn, prefix: prefix, metrics: metrics}
}

// Subject returns the subject an event is forwarded to.
func (f *Forwarder) Subject(event events.Event) string {
	return Subject(f.prefix, event.Source, event.DetailType)
}

func (f *Forwarder) Handle(ctx context.Context, event events.Event) error {
	ctx, span := telemetry.StartEventSpan(ctx, "Forwarder.Handle", event, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	subject := f.Subject(event)
	telemetry.AddSpanAttributes(span,
		attribute.String("messaging.system", "nats"),
		attribute.String("messaging.destination.name", subject),
	)

	data, err := json.Marshal(event)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return fmt.Errorf("marshaling event: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	start := time.Now()
	err = f.conn.PublishMsg(msg)
	if f.metrics != nil {
		f.metrics.RecordPublish(ctx, KindForward, time.Since(start).Seconds(), err == nil)
	}
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

// Subject joins tokens into a NATS subject. Characters NATS treats as
// separators or wildcards are replaced inside each token.
func Subject(prefix string, tokens ...string) string {
	parts := make([]string, 0, len(tokens)+1)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	for _, t := range tokens {
		parts = append(parts, subjectToken(t))
	}
	return strings.Join(parts, ".")
}

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}
