package transport

import (
	"time"

	"storefront/internal/domain"

	"github.com/shopspring/decimal"
)

// AddItemRequest represents the add-to-cart payload. Quantity defaults to 1.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  *int   `json:"quantity" validate:"omitempty,gte=1"`
}

// UpdateItemRequest represents the cart line update payload. A quantity of
// zero or less removes the line.
type UpdateItemRequest struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	Quantity *int   `json:"quantity" validate:"required"`
}

// PlaceOrderRequest represents the checkout payload
type PlaceOrderRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required"`
	PhoneNumber     string `json:"phone_number" validate:"required,max=15"`
}

// UpdateStatusRequest represents the admin status change payload
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// MessageResponse is returned by operations with nothing else to report
type MessageResponse struct {
	Message string `json:"message"`
}

// CartResponse wraps a cart with a human-readable message
type CartResponse struct {
	Message string   `json:"message"`
	Cart    CartView `json:"cart"`
}

// OrderResponse wraps an order with a human-readable message
type OrderResponse struct {
	Message string    `json:"message"`
	Order   OrderView `json:"order"`
}

// ProductView is the catalog slice embedded in cart lines
type ProductView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

// CartItemView is one cart line priced at the current product price
type CartItemView struct {
	ID       string      `json:"id"`
	Product  ProductView `json:"product"`
	Quantity int         `json:"quantity"`
	Subtotal string      `json:"subtotal"`
	AddedAt  time.Time   `json:"added_at"`
}

// CartView is the cart as returned to clients
type CartView struct {
	ID        string         `json:"id"`
	Items     []CartItemView `json:"cart_items"`
	Total     string         `json:"total"`
	ItemCount int            `json:"item_count"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// OrderItemView is one order line at its frozen price
type OrderItemView struct {
	ID          string `json:"id"`
	Product     string `json:"product"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	Subtotal    string `json:"subtotal"`
}

// OrderView is the full order representation
type OrderView struct {
	ID              string          `json:"id"`
	UserName        string          `json:"user_name"`
	Status          string          `json:"status"`
	TotalPrice      string          `json:"total_price"`
	ShippingAddress string          `json:"shipping_address"`
	PhoneNumber     string          `json:"phone_number"`
	Items           []OrderItemView `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderSummary is the list representation of an order
type OrderSummary struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	TotalPrice string    `json:"total_price"`
	ItemsCount int       `json:"items_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func newCartView(cart *domain.Cart) CartView {
	view := CartView{
		ID:        cart.ID.String(),
		Items:     make([]CartItemView, 0, len(cart.Items)),
		Total:     money(cart.Total()),
		ItemCount: cart.ItemCount(),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}

	for _, item := range cart.Items {
		view.Items = append(view.Items, CartItemView{
			ID: item.ID.String(),
			Product: ProductView{
				ID:    item.Product.ID.String(),
				Name:  item.Product.Name,
				Price: money(item.Product.Price),
				Stock: item.Product.Stock,
			},
			Quantity: item.Quantity,
			Subtotal: money(item.Subtotal()),
			AddedAt:  item.AddedAt,
		})
	}

	return view
}

func newOrderView(order *domain.Order) OrderView {
	view := OrderView{
		ID:              order.ID.String(),
		UserName:        order.UserName,
		Status:          string(order.Status),
		TotalPrice:      money(order.TotalPrice),
		ShippingAddress: order.ShippingAddress,
		PhoneNumber:     order.PhoneNumber,
		Items:           make([]OrderItemView, 0, len(order.Items)),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}

	for _, item := range order.Items {
		view.Items = append(view.Items, OrderItemView{
			ID:          item.ID.String(),
			Product:     item.ProductID.String(),
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       money(item.Price),
			Subtotal:    money(item.Subtotal()),
		})
	}

	return view
}

func newOrderSummaries(orders []*domain.Order) []OrderSummary {
	summaries := make([]OrderSummary, 0, len(orders))
	for _, order := range orders {
		summaries = append(summaries, OrderSummary{
			ID:         order.ID.String(),
			Status:     string(order.Status),
			TotalPrice: money(order.TotalPrice),
			ItemsCount: len(order.Items),
			CreatedAt:  order.CreatedAt,
		})
	}
	return summaries
}
