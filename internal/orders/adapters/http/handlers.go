package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dejobratic/orderbus/internal/orders/app"
	"github.com/dejobratic/orderbus/internal/orders/app/queries"
	"github.com/dejobratic/orderbus/internal/orders/domain"
	"github.com/dejobratic/orderbus/internal/orders/ports"
	"golang.org/x/sync/singleflight"
)

const idempotencyHeader = "Idempotency-Key"

// Handler exposes HTTP endpoints for order operations.
type Handler struct {
	service *app.Service
	// flights collapses concurrent creates that share an idempotency key.
	flights singleflight.Group
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

// Register binds the order handlers to the provided ServeMux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/orders", h.createOrder)
	mux.HandleFunc("GET /order/create/{customerId}", h.createOrderFromPath)
	mux.HandleFunc("GET /order/create/{customerId}/{storeId}", h.createOrderFromPath)
	mux.HandleFunc("GET /v1/customers/{customerId}/events", h.customerHistory)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idemKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))

	var payload app.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if idemKey == "" {
		stored, err := h.create(ctx, payload)
		if err != nil {
			writeCreateError(w, err)
			return
		}
		respond(w, stored, false)
		return
	}

	// Only the caller whose closure runs performs the create; everyone else
	// in the same flight, or arriving after it, gets the stored response.
	executed := false
	v, err, _ := h.flights.Do(idemKey, func() (any, error) {
		stored, err := h.service.GetIdempotentResponse(ctx, idemKey)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			return stored, nil
		}

		executed = true
		created, err := h.create(ctx, payload)
		if err != nil {
			return nil, err
		}
		if err := h.service.SaveIdempotentResponse(ctx, idemKey, *created); err != nil {
			return nil, err
		}
		return created, nil
	})
	if err != nil {
		writeCreateError(w, err)
		return
	}

	respond(w, v.(*ports.StoredResponse), !executed)
}

func (h *Handler) create(ctx context.Context, payload app.CreateOrderInput) (*ports.StoredResponse, error) {
	order, err := h.service.CreateOrder(ctx, payload)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{"order": order})
	if err != nil {
		return nil, err
	}

	return &ports.StoredResponse{
		StatusCode: http.StatusAccepted,
		Body:       body,
		OrderID:    order.OrderID,
	}, nil
}

// createOrderFromPath serves the path form /order/create/{customerId}/{storeId}.
func (h *Handler) createOrderFromPath(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.CreateOrder(r.Context(), app.CreateOrderInput{
		CustomerID: r.PathValue("customerId"),
		StoreID:    r.PathValue("storeId"),
	})
	if err != nil {
		writeCreateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) customerHistory(w http.ResponseWriter, r *http.Request) {
	from, err := parseTime(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseTime(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.service.CustomerHistory(r.Context(), r.PathValue("customerId"), from, to)
	if err != nil {
		if errors.Is(err, queries.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

func parseTime(r *http.Request, param string) (time.Time, error) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp", param)
	}
	return t, nil
}

func writeCreateError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidOrder) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func respond(w http.ResponseWriter, stored *ports.StoredResponse, replayed bool) {
	w.Header().Set("Content-Type", "application/json")
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	w.WriteHeader(stored.StatusCode)
	_, _ = w.Write(stored.Body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
