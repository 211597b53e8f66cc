package domain

import "github.com/google/uuid"

// Notification event types sent over a user's live channels
const (
	EventConnectionEstablished = "connection_established"
	EventOrderUpdate           = "order_update"
)

// OrderEvent is the payload written to a notification channel
type OrderEvent struct {
	Type    string      `json:"type"`
	OrderID *uuid.UUID  `json:"order_id,omitempty"`
	Status  OrderStatus `json:"status,omitempty"`
	Message string      `json:"message"`
}

// NewOrderUpdate builds the event published on every order status change
func NewOrderUpdate(order *Order) OrderEvent {
	id := order.ID
	return OrderEvent{
		Type:    EventOrderUpdate,
		OrderID: &id,
		Status:  order.Status,
		Message: order.StatusMessage(),
	}
}

// NewConnectionEstablished builds the one-time acknowledgement sent to a new channel
func NewConnectionEstablished() OrderEvent {
	return OrderEvent{
		Type:    EventConnectionEstablished,
		Message: "Connected to order notifications",
	}
}
