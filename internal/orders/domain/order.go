package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dejobratic/orderbus/internal/events"
)

const (
	// EventSource is the source of every event the order service publishes.
	EventSource = "Order"

	// OrderCreated is published once for every accepted order.
	OrderCreated = "OrderCreated"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrMissingCustomerID = errors.New("customerId is required")
)

// Order is the payload of every order event.
type Order struct {
	CustomerID string `json:"customerId"`
	OrderID    string `json:"orderId"`
	StoreID    string `json:"storeId"`
}

// Validate ensures the order names a customer. The store is optional.
func (o Order) Validate() error {
	if strings.TrimSpace(o.CustomerID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidOrder, ErrMissingCustomerID)
	}
	return nil
}

// Detail renders the order as an event detail.
func (o Order) Detail() events.Detail {
	return events.Detail{
		"customerId": o.CustomerID,
		"orderId":    o.OrderID,
		"storeId":    o.StoreID,
	}
}

// Event wraps the order in an event of the given detail type.
func (o Order) Event(detailType string) events.Event {
	return events.New(EventSource, detailType, o.Detail())
}
