package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartHandler handles HTTP requests for the caller's cart
type CartHandler struct {
	cartService service.CartService
	logger      *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(cartService service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		logger:      logger.Named("cart-handler"),
	}
}

// RegisterRoutes registers all cart routes. Every route requires authentication.
func (h *CartHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.GetCart)
		r.Post("/add_item", h.AddItem)
		r.Put("/update_item", h.UpdateItem)
		r.Delete("/remove_item", h.RemoveItem)
		r.Delete("/clear", h.Clear)
	})
}

// GetCart returns the caller's cart, creating it on first access
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	cart, err := h.cartService.GetCart(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, newCartView(cart))
}

// AddItem adds a product to the cart or increases an existing line
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req AddItemRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Add item validation failed", zap.Error(err))
		respondWithDecodeError(w, err)
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.cartService.AddItem(r.Context(), userID, uuid.MustParse(req.ProductID), quantity)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, CartResponse{
		Message: "Item added to cart",
		Cart:    newCartView(cart),
	})
}

// UpdateItem sets a line's quantity, removing the line when it drops to zero
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req UpdateItemRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Update item validation failed", zap.Error(err))
		respondWithDecodeError(w, err)
		return
	}

	cart, removed, err := h.cartService.UpdateItem(r.Context(), userID, uuid.MustParse(req.ItemID), *req.Quantity)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	message := "Cart updated"
	if removed {
		message = "Item removed from cart"
	}

	middleware.RespondWithJSON(w, http.StatusOK, CartResponse{
		Message: message,
		Cart:    newCartView(cart),
	})
}

// RemoveItem deletes the line named by the item_id query parameter
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	itemID, err := uuid.Parse(r.URL.Query().Get("item_id"))
	if err != nil {
		middleware.RespondWithValidationErrors(w, []middleware.ValidationError{
			{Field: "item_id", Message: "Must be a valid UUID"},
		})
		return
	}

	cart, err := h.cartService.RemoveItem(r.Context(), userID, itemID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, CartResponse{
		Message: "Item removed from cart",
		Cart:    newCartView(cart),
	})
}

// Clear removes every line from the cart
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.cartService.Clear(r.Context(), userID); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, MessageResponse{Message: "Cart cleared"})
}

// requireUser reads the authenticated user id, answering 401 when absent
func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "authentication required")
		return uuid.Nil, false
	}
	return userID, true
}
