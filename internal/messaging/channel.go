package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// NATSChannel publishes notifications to the subject named by the channel id.
type NATSChannel struct {
	conn    *nats.Conn
	metrics *Metrics
}

func NewNATSChannel(conn *nats.Conn, metrics *Metrics) *NATSChannel {
	return &NATSChannel{conn: conn, metrics: metrics}
}

func (c *NATSChannel) Send(ctx context.Context, channelID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := nats.NewMsg(channelID)
	msg.Data = []byte(message)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	start := time.Now()
	err := c.conn.PublishMsg(msg)
	if c.metrics != nil {
		c.metrics.RecordPublish(ctx, KindNotification, time.Since(start).Seconds(), err == nil)
	}
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channelID, err)
	}
	return nil
}

// LogChannel writes notifications to the log instead of sending them. Useful
// for local development without a NATS server.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Send(ctx context.Context, channelID, message string) error {
	c.logger.InfoContext(ctx, "notification", "channel", channelID, "message", message)
	return nil
}
