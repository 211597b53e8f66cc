package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MaxPhoneNumberLength matches the orders.phone_number column
const MaxPhoneNumberLength = 15

// EventPublisher delivers order events to a user's live notification channels.
// Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event domain.OrderEvent) error
}

// OrderService converts carts into orders and manages order status
type OrderService interface {
	// PlaceOrder checks out the user's cart as one atomic unit: order,
	// items, stock decrements and cart clear are all committed or none are.
	PlaceOrder(ctx context.Context, userID uuid.UUID, shippingAddress, phoneNumber string) (*domain.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, isAdmin bool) ([]*domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID, isAdmin bool) (*domain.Order, error)

	// UpdateStatus sets any of the known statuses regardless of the current
	// one. Callers must already have checked administrative capability.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (order *domain.Order, previous domain.OrderStatus, err error)
}

type orderService struct {
	store     repository.Store
	publisher EventPublisher
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewOrderService creates a new instance of OrderService. publisher may be
// nil, in which case no notifications are sent.
func NewOrderService(store repository.Store, publisher EventPublisher, logger *zap.Logger) OrderService {
	return &orderService{
		store:     store,
		publisher: publisher,
		logger:    logger.Named("orders"),
		tracer:    otel.Tracer("storefront/internal/service"),
	}
}

func (s *orderService) PlaceOrder(ctx context.Context, userID uuid.UUID, shippingAddress, phoneNumber string) (order *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.PlaceOrder",
		trace.WithAttributes(attribute.String("user.id", userID.String())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := domain.ValidateShippingAddress(shippingAddress); err != nil {
		return nil, err
	}
	if err := validatePhoneNumber(phoneNumber); err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		placed, err := s.checkout(ctx, tx, userID, shippingAddress, phoneNumber)
		if err != nil {
			return err
		}
		order = placed
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrOutOfStock) || errors.Is(err, domain.ErrEmptyCart) {
			s.logger.Info("Checkout rejected", zap.String("user_id", userID.String()), zap.Error(err))
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", order.ID.String()),
		attribute.String("order.total", order.TotalPrice.StringFixed(2)),
	)

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("total_price", order.TotalPrice.StringFixed(2)),
		zap.Int("items", len(order.Items)),
	)

	s.notify(ctx, order)

	return order, nil
}

// validatePhoneNumber counts characters, not bytes, to agree with the
// request validator
func validatePhoneNumber(phone string) error {
	if strings.TrimSpace(phone) == "" {
		return domain.NewValidationError("phone_number", "This field may not be blank.")
	}
	if utf8.RuneCountInString(phone) > MaxPhoneNumberLength {
		return domain.NewValidationError("phone_number", "Ensure this field has no more than 15 characters")
	}
	return nil
}

// checkout runs inside the transaction. Any returned error discards every
// staged change.
func (s *orderService) checkout(ctx context.Context, tx repository.Store, userID uuid.UUID, shippingAddress, phoneNumber string) (*domain.Order, error) {
	cart, err := tx.Carts().Lock(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			return nil, domain.ErrEmptyCart
		}
		return nil, err
	}

	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	// Ascending product order keeps concurrent checkouts from deadlocking
	lines := append([]domain.CartItem(nil), cart.Items...)
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ProductID.String() < lines[j].ProductID.String()
	})

	// Re-validate against fresh stock; the cart line may be stale
	for _, line := range lines {
		product, err := tx.Products().FindByID(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.CanSupply(line.Quantity) {
			return nil, domain.OutOfStock(product.ID, product.Name, product.Stock, line.Quantity)
		}
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		ShippingAddress: shippingAddress,
		PhoneNumber:     phoneNumber,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := tx.Orders().Create(ctx, order); err != nil {
		return nil, err
	}

	for _, line := range lines {
		price, ok, err := tx.Products().DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Lost a race with a concurrent checkout since the re-check
			available := 0
			if product, err := tx.Products().FindByID(ctx, line.ProductID); err == nil {
				available = product.Stock
			}
			return nil, domain.OutOfStock(line.ProductID, line.Product.Name, available, line.Quantity)
		}

		item := domain.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductName: line.Product.Name,
			Quantity:    line.Quantity,
			Price:       price,
		}
		if err := tx.Orders().AddItem(ctx, &item); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	total := order.CalculateTotal()
	if err := tx.Orders().SetTotal(ctx, order.ID, total); err != nil {
		return nil, err
	}

	if _, err := tx.Carts().Clear(ctx, cart.ID); err != nil {
		return nil, err
	}

	return tx.Orders().FindByID(ctx, order.ID)
}

func (s *orderService) ListOrders(ctx context.Context, userID uuid.UUID, isAdmin bool) ([]*domain.Order, error) {
	var filter *uuid.UUID
	if !isAdmin {
		filter = &userID
	}

	orders, err := s.store.Orders().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, nil
}

// GetOrder hides other users' orders behind NotFound
func (s *orderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID, isAdmin bool) (*domain.Order, error) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !isAdmin && !order.OwnedBy(userID) {
		return nil, repository.ErrOrderNotFound
	}

	return order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (order *domain.Order, previous domain.OrderStatus, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateStatus",
		trace.WithAttributes(
			attribute.String("order.id", orderID.String()),
			attribute.String("order.status", status),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	newStatus, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, "", err
	}

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		// Concurrent status changes serialize here so previous is accurate
		current, err := tx.Orders().Lock(ctx, orderID)
		if err != nil {
			return err
		}
		previous = current.Status

		updatedAt, err := tx.Orders().UpdateStatus(ctx, orderID, newStatus)
		if err != nil {
			return err
		}

		current.Status = newStatus
		current.UpdatedAt = updatedAt
		order = current
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(newStatus)),
	)

	s.notify(ctx, order)

	return order, previous, nil
}

// notify hands the event to the publisher after commit. Failures are logged
// and never reach the caller.
func (s *orderService) notify(ctx context.Context, order *domain.Order) {
	if s.publisher == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.publisher.Publish(ctx, order.UserID, domain.NewOrderUpdate(order)); err != nil {
		s.logger.Warn("Failed to publish order notification",
			zap.String("order_id", order.ID.String()),
			zap.String("user_id", order.UserID.String()),
			zap.Error(err),
		)
	}
}
