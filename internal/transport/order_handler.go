package transport

import (
	"fmt"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderHandler handles HTTP requests for orders
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger.Named("order-handler"),
	}
}

// RegisterRoutes registers all order routes. Status updates additionally
// require the admin role.
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.ListOrders)
		r.Post("/", h.PlaceOrder)
		r.Get("/{id}", h.GetOrder)

		r.With(middleware.RequireAdmin(h.logger)).Patch("/{id}/update_status", h.UpdateStatus)
	})
}

// ListOrders returns the caller's orders, or every order for admins
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	orders, err := h.orderService.ListOrders(r.Context(), userID, middleware.IsAdmin(r.Context()))
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, newOrderSummaries(orders))
}

// PlaceOrder checks out the caller's cart
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req PlaceOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Place order validation failed", zap.Error(err))
		respondWithDecodeError(w, err)
		return
	}

	order, err := h.orderService.PlaceOrder(r.Context(), userID, req.ShippingAddress, req.PhoneNumber)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, OrderResponse{
		Message: "Order placed successfully",
		Order:   newOrderView(order),
	})
}

// GetOrder returns one order owned by the caller; admins may read any order
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, h.logger, repository.ErrOrderNotFound)
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), userID, orderID, middleware.IsAdmin(r.Context()))
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, newOrderView(order))
}

// UpdateStatus sets an order's status and notifies its owner
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, h.logger, repository.ErrOrderNotFound)
		return
	}

	var req UpdateStatusRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondWithDecodeError(w, err)
		return
	}

	order, previous, err := h.orderService.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, OrderResponse{
		Message: fmt.Sprintf("Order status updated from %s to %s", previous, order.Status),
		Order:   newOrderView(order),
	})
}
