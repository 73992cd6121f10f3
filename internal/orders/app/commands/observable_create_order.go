package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/orderbus/internal/orders/domain"
	"github.com/dejobratic/orderbus/internal/orders/metrics"
	"github.com/dejobratic/orderbus/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableCommandHandler struct {
	handler CommandHandler
	routes  RoutingTable
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCommandHandler(handler CommandHandler, routes RoutingTable, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCommandHandler {
	return &ObservableCommandHandler{
		handler: handler,
		routes:  routes,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "CreateOrderCommand.Handle")
	defer span.End()

	start := time.Now()
	var success bool
	defer func() {
		duration := time.Since(start).Seconds()
		o.metrics.RecordOrderCreationDuration(ctx, duration)
		o.metrics.RecordOrderCreated(ctx, success)
	}()

	o.logger.InfoContext(ctx, "creating order",
		"customer_id", cmd.CustomerID,
		"store_id", cmd.StoreID,
	)

	order, err := o.handler.Handle(ctx, cmd)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "failed to create order",
			"error", err,
			"customer_id", cmd.CustomerID,
			"store_id", cmd.StoreID,
		)
		return nil, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.OrderID),
		attribute.String("order.customer_id", order.CustomerID),
		attribute.String("order.store_id", order.StoreID),
	)

	if detailType, ok := o.routes.DetailTypeFor(order.StoreID); ok {
		o.metrics.RecordRetailerRouted(ctx, detailType)
		telemetry.AddSpanAttributes(span, attribute.String("order.retailer_event", detailType))
	} else {
		o.metrics.RecordRetailerUnrouted(ctx)
		o.logger.WarnContext(ctx, "no retailer configured for store",
			"order_id", order.OrderID,
			"store_id", order.StoreID,
		)
	}

	o.logger.InfoContext(ctx, "order created successfully",
		"order_id", order.OrderID,
		"customer_id", order.CustomerID,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return order, nil
}
