package commands

import (
	"context"
	"fmt"

	"github.com/dejobratic/orderbus/internal/orders/domain"
	"github.com/dejobratic/orderbus/internal/orders/ports"
)

type CreateOrderCommand struct {
	CustomerID string
	StoreID    string
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error)
}

// RoutingTable maps a store id to the detail type of its retailer event.
type RoutingTable map[string]string

func (t RoutingTable) DetailTypeFor(storeID string) (string, bool) {
	detailType, ok := t[storeID]
	return detailType, ok && detailType != ""
}

type CreateOrderCommandHandler struct {
	publisher ports.Publisher
	routes    RoutingTable
	ids       *OrderIDs
}

func NewCreateOrderCommandHandler(
	publisher ports.Publisher,
	routes RoutingTable,
	ids *OrderIDs,
) *CreateOrderCommandHandler {
	if ids == nil {
		ids = NewOrderIDs(nil)
	}
	return &CreateOrderCommandHandler{
		publisher: publisher,
		routes:    routes,
		ids:       ids,
	}
}

// Handle publishes OrderCreated and, when the store is known, a retailer
// event carrying the same detail. Events are published in that order but
// subscribers may observe them in any order.
func (h *CreateOrderCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	order := domain.Order{
		CustomerID: cmd.CustomerID,
		OrderID:    h.ids.Next(),
		StoreID:    cmd.StoreID,
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}

	if err := h.publisher.Publish(ctx, order.Event(domain.OrderCreated)); err != nil {
		return nil, fmt.Errorf("publish %s: %w", domain.OrderCreated, err)
	}

	detailType, ok := h.routes.DetailTypeFor(order.StoreID)
	if !ok {
		return &order, nil
	}

	if err := h.publisher.Publish(ctx, order.Event(detailType)); err != nil {
		return &order, fmt.Errorf("order created but failed to publish %s: %w", detailType, err)
	}

	return &order, nil
}
