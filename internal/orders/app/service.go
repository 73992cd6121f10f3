package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/orderbus/internal/eventstore"
	"github.com/dejobratic/orderbus/internal/orders/app/commands"
	"github.com/dejobratic/orderbus/internal/orders/app/queries"
	"github.com/dejobratic/orderbus/internal/orders/domain"
	"github.com/dejobratic/orderbus/internal/orders/metrics"
	"github.com/dejobratic/orderbus/internal/orders/ports"
)

// Service bundles use cases for handling orders via the API.
type Service struct {
	idemStore          ports.IdempotencyStore
	createOrderHandler commands.CommandHandler
	historyHandler     *queries.CustomerHistoryQueryHandler
}

// NewService wires required dependencies.
func NewService(
	publisher ports.Publisher,
	routes commands.RoutingTable,
	history eventstore.Reader,
	idem ports.IdempotencyStore,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Service {
	coreHandler := commands.NewCreateOrderCommandHandler(publisher, routes, commands.NewOrderIDs(nil))
	observableHandler := commands.NewObservableCommandHandler(coreHandler, routes, logger, metrics)

	return &Service{
		idemStore:          idem,
		createOrderHandler: observableHandler,
		historyHandler:     queries.NewCustomerHistoryQueryHandler(history),
	}
}

// CreateOrderInput captures payload for creating an order.
type CreateOrderInput struct {
	CustomerID string `json:"customer_id"`
	StoreID    string `json:"store_id"`
}

// CreateOrder publishes the order's events and returns the order.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	cmd := commands.CreateOrderCommand{
		CustomerID: input.CustomerID,
		StoreID:    input.StoreID,
	}
	return s.createOrderHandler.Handle(ctx, cmd)
}

// CustomerHistory lists the stored events for a customer.
func (s *Service) CustomerHistory(ctx context.Context, customerID string, from, to time.Time) ([]queries.HistoryEntry, error) {
	return s.historyHandler.Handle(ctx, queries.CustomerHistoryQuery{
		CustomerID: customerID,
		From:       from,
		To:         to,
	})
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}
