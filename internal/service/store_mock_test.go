package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory repository.Store. Transactions are serialized
// by one mutex and work on a copy that replaces the shared state only when
// fn succeeds, which is enough to observe atomicity and rollback.
type memStore struct {
	mu   *sync.Mutex
	root *memStore
	data *memData
	inTx bool
}

type memData struct {
	seq        int
	users      map[uuid.UUID]string
	products   map[uuid.UUID]domain.Product
	carts      map[uuid.UUID]memCart // keyed by user
	cartItems  map[uuid.UUID]memCartItem
	orders     map[uuid.UUID]domain.Order
	orderItems []domain.OrderItem
}

type memCart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

type memCartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	AddedAt   time.Time
	seq       int
}

func newMemStore() *memStore {
	s := &memStore{
		mu: &sync.Mutex{},
		data: &memData{
			users:     make(map[uuid.UUID]string),
			products:  make(map[uuid.UUID]domain.Product),
			carts:     make(map[uuid.UUID]memCart),
			cartItems: make(map[uuid.UUID]memCartItem),
			orders:    make(map[uuid.UUID]domain.Order),
		},
	}
	s.root = s
	return s
}

func (d *memData) clone() *memData {
	c := &memData{
		seq:        d.seq,
		users:      make(map[uuid.UUID]string, len(d.users)),
		products:   make(map[uuid.UUID]domain.Product, len(d.products)),
		carts:      make(map[uuid.UUID]memCart, len(d.carts)),
		cartItems:  make(map[uuid.UUID]memCartItem, len(d.cartItems)),
		orders:     make(map[uuid.UUID]domain.Order, len(d.orders)),
		orderItems: append([]domain.OrderItem(nil), d.orderItems...),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.carts {
		c.carts[k] = v
	}
	for k, v := range d.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	return c
}

// do runs fn against the current state, taking the store lock outside a
// transaction
func (s *memStore) do(fn func(d *memData) error) error {
	if s.inTx {
		return fn(s.data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.root.data)
}

func (s *memStore) Products() repository.ProductRepository { return &memProducts{s} }
func (s *memStore) Carts() repository.CartRepository       { return &memCarts{s} }
func (s *memStore) Orders() repository.OrderRepository     { return &memOrders{s} }

func (s *memStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memStore{mu: s.mu, root: s.root, data: s.root.data.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}

	s.root.data = tx.data
	return nil
}

// test helpers

func (s *memStore) addUser(name string) uuid.UUID {
	id := uuid.New()
	_ = s.do(func(d *memData) error {
		d.users[id] = name
		return nil
	})
	return id
}

func (s *memStore) addProduct(name, price string, stock int) domain.Product {
	now := time.Now().UTC()
	p := domain.Product{
		ID:        uuid.New(),
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_ = s.do(func(d *memData) error {
		d.products[p.ID] = p
		return nil
	})
	return p
}

func (s *memStore) setStock(id uuid.UUID, stock int) {
	_ = s.do(func(d *memData) error {
		p := d.products[id]
		p.Stock = stock
		d.products[id] = p
		return nil
	})
}

func (s *memStore) stock(id uuid.UUID) int {
	var stock int
	_ = s.do(func(d *memData) error {
		stock = d.products[id].Stock
		return nil
	})
	return stock
}

func (s *memStore) orderCount() int {
	var n int
	_ = s.do(func(d *memData) error {
		n = len(d.orders)
		return nil
	})
	return n
}

type memProducts struct{ s *memStore }

func (r *memProducts) Create(ctx context.Context, product *domain.Product) error {
	return r.s.do(func(d *memData) error {
		d.products[product.ID] = *product
		return nil
	})
}

func (r *memProducts) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var product *domain.Product
	err := r.s.do(func(d *memData) error {
		p, ok := d.products[id]
		if !ok {
			return repository.ErrProductNotFound
		}
		product = &p
		return nil
	})
	return product, err
}

func (r *memProducts) UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error {
	return r.s.do(func(d *memData) error {
		p, ok := d.products[id]
		if !ok {
			return repository.ErrProductNotFound
		}
		p.Price = price
		d.products[id] = p
		return nil
	})
}

func (r *memProducts) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (decimal.Decimal, bool, error) {
	var (
		price decimal.Decimal
		ok    bool
	)
	err := r.s.do(func(d *memData) error {
		p, exists := d.products[id]
		if !exists || p.Stock < quantity {
			return nil
		}
		p.Stock -= quantity
		d.products[id] = p
		price, ok = p.Price, true
		return nil
	})
	return price, ok, err
}

type memCarts struct{ s *memStore }

func (r *memCarts) GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	var cart *domain.Cart
	err := r.s.do(func(d *memData) error {
		if _, ok := d.carts[userID]; !ok {
			now := time.Now().UTC()
			d.carts[userID] = memCart{ID: uuid.New(), UserID: userID, CreatedAt: now, UpdatedAt: now}
		}
		cart = d.cart(userID)
		return nil
	})
	return cart, err
}

func (r *memCarts) FindByUser(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	var cart *domain.Cart
	err := r.s.do(func(d *memData) error {
		cart = d.cart(userID)
		if cart == nil {
			return repository.ErrCartNotFound
		}
		return nil
	})
	return cart, err
}

func (r *memCarts) Lock(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return r.FindByUser(ctx, userID)
}

func (r *memCarts) UpsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int) error {
	return r.s.do(func(d *memData) error {
		for id, item := range d.cartItems {
			if item.CartID == cartID && item.ProductID == productID {
				item.Quantity = quantity
				d.cartItems[id] = item
				return nil
			}
		}
		d.seq++
		id := uuid.New()
		d.cartItems[id] = memCartItem{
			ID:        id,
			CartID:    cartID,
			ProductID: productID,
			Quantity:  quantity,
			AddedAt:   time.Now().UTC(),
			seq:       d.seq,
		}
		return nil
	})
}

func (r *memCarts) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) error {
	return r.s.do(func(d *memData) error {
		item, ok := d.cartItems[itemID]
		if !ok || item.CartID != cartID {
			return repository.ErrCartItemNotFound
		}
		item.Quantity = quantity
		d.cartItems[itemID] = item
		return nil
	})
}

func (r *memCarts) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	return r.s.do(func(d *memData) error {
		item, ok := d.cartItems[itemID]
		if !ok || item.CartID != cartID {
			return repository.ErrCartItemNotFound
		}
		delete(d.cartItems, itemID)
		return nil
	})
}

func (r *memCarts) Clear(ctx context.Context, cartID uuid.UUID) (int64, error) {
	var removed int64
	err := r.s.do(func(d *memData) error {
		for id, item := range d.cartItems {
			if item.CartID == cartID {
				delete(d.cartItems, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func (d *memData) cart(userID uuid.UUID) *domain.Cart {
	row, ok := d.carts[userID]
	if !ok {
		return nil
	}

	lines := []memCartItem{}
	for _, item := range d.cartItems {
		if item.CartID == row.ID {
			lines = append(lines, item)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].seq < lines[j].seq })

	cart := &domain.Cart{
		ID:        row.ID,
		UserID:    row.UserID,
		Items:     []domain.CartItem{},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	for _, line := range lines {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        line.ID,
			CartID:    line.CartID,
			ProductID: line.ProductID,
			Product:   d.products[line.ProductID],
			Quantity:  line.Quantity,
			AddedAt:   line.AddedAt,
		})
	}
	return cart
}

type memOrders struct{ s *memStore }

func (r *memOrders) Create(ctx context.Context, order *domain.Order) error {
	return r.s.do(func(d *memData) error {
		row := *order
		row.Items = nil
		d.orders[order.ID] = row
		return nil
	})
}

func (r *memOrders) AddItem(ctx context.Context, item *domain.OrderItem) error {
	return r.s.do(func(d *memData) error {
		if _, ok := d.orders[item.OrderID]; !ok {
			return repository.ErrOrderNotFound
		}
		d.orderItems = append(d.orderItems, *item)
		return nil
	})
}

func (r *memOrders) SetTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error {
	return r.s.do(func(d *memData) error {
		o, ok := d.orders[orderID]
		if !ok {
			return repository.ErrOrderNotFound
		}
		o.TotalPrice = total
		d.orders[orderID] = o
		return nil
	})
}

func (r *memOrders) UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) (time.Time, error) {
	now := time.Now().UTC()
	err := r.s.do(func(d *memData) error {
		o, ok := d.orders[orderID]
		if !ok {
			return repository.ErrOrderNotFound
		}
		o.Status = status
		o.UpdatedAt = now
		d.orders[orderID] = o
		return nil
	})
	return now, err
}

func (r *memOrders) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var order *domain.Order
	err := r.s.do(func(d *memData) error {
		if _, ok := d.orders[id]; !ok {
			return repository.ErrOrderNotFound
		}
		order = d.order(id)
		return nil
	})
	return order, err
}

// Lock needs no extra locking: transactions are already serialized
func (r *memOrders) Lock(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *memOrders) List(ctx context.Context, userID *uuid.UUID) ([]*domain.Order, error) {
	orders := []*domain.Order{}
	err := r.s.do(func(d *memData) error {
		for id, o := range d.orders {
			if userID != nil && o.UserID != *userID {
				continue
			}
			orders = append(orders, d.order(id))
		}
		return nil
	})
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, err
}

func (d *memData) order(id uuid.UUID) *domain.Order {
	o := d.orders[id]
	o.UserName = d.users[o.UserID]
	o.Items = []domain.OrderItem{}
	for _, item := range d.orderItems {
		if item.OrderID == id {
			item.ProductName = d.products[item.ProductID].Name
			o.Items = append(o.Items, item)
		}
	}
	return &o
}

// recordingPublisher captures published events and can be told to fail
type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	events map[uuid.UUID][]domain.OrderEvent
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(map[uuid.UUID][]domain.OrderEvent)}
}

func (p *recordingPublisher) Publish(ctx context.Context, userID uuid.UUID, event domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events[userID] = append(p.events[userID], event)
	return nil
}

func (p *recordingPublisher) eventsFor(userID uuid.UUID) []domain.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OrderEvent(nil), p.events[userID]...)
}
