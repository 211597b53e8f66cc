package notification

import (
	"context"
	"errors"
	"sync"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("notification hub closed")

// DefaultSendBuffer is used when NewHub is given a non-positive buffer size
const DefaultSendBuffer = 16

// Channel is one live delivery endpoint, normally backed by a single
// websocket connection. Events are read from Events until it is closed.
type Channel struct {
	id     uuid.UUID
	userID uuid.UUID
	send   chan domain.OrderEvent

	// guarded by Hub.mu
	registered bool
}

func (c *Channel) ID() uuid.UUID     { return c.id }
func (c *Channel) UserID() uuid.UUID { return c.userID }

// Events yields the events delivered to this channel. It is closed on
// Unsubscribe or when the hub shuts down.
func (c *Channel) Events() <-chan domain.OrderEvent {
	return c.send
}

// Hub maps each user to the set of channels they currently have open.
//
// Sends happen under the read lock and channels are closed only under the
// write lock, so Deliver never writes to a closed channel. Delivery never
// blocks: a channel whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]map[*Channel]struct{}
	closed bool

	buffer int
	logger *zap.Logger
}

// NewHub creates an empty hub. buffer is the per-channel queue length.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Hub{
		groups: make(map[uuid.UUID]map[*Channel]struct{}),
		buffer: buffer,
		logger: logger.Named("notifications"),
	}
}

// Subscribe opens a channel for userID and queues the connection
// acknowledgement on it. The zero uuid is treated as an anonymous identity
// and rejected with domain.ErrUnauthenticated.
func (h *Hub) Subscribe(userID uuid.UUID) (*Channel, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUnauthenticated
	}

	ch := &Channel{
		id:     uuid.New(),
		userID: userID,
		send:   make(chan domain.OrderEvent, h.buffer),
	}

	// Only this channel gets the ack; it is queued before the channel is
	// visible to Deliver so it is always the first event.
	ch.send <- domain.NewConnectionEstablished()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	group, ok := h.groups[userID]
	if !ok {
		group = make(map[*Channel]struct{})
		h.groups[userID] = group
	}
	group[ch] = struct{}{}
	ch.registered = true

	h.logger.Debug("Channel subscribed",
		zap.String("user_id", userID.String()),
		zap.String("channel_id", ch.id.String()),
		zap.Int("user_channels", len(group)),
	)

	return ch, nil
}

// Unsubscribe removes ch and closes its event stream. It is a no-op for a
// nil channel or one that is not registered.
func (h *Hub) Unsubscribe(ch *Channel) {
	if ch == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !ch.registered {
		return
	}

	if group, ok := h.groups[ch.userID]; ok {
		delete(group, ch)
		if len(group) == 0 {
			delete(h.groups, ch.userID)
		}
	}

	ch.registered = false
	close(ch.send)

	h.logger.Debug("Channel unsubscribed",
		zap.String("user_id", ch.userID.String()),
		zap.String("channel_id", ch.id.String()),
	)
}

// Publish delivers event to userID's local channels. It never fails; the
// error return lets the hub stand in wherever a broker is expected.
func (h *Hub) Publish(ctx context.Context, userID uuid.UUID, event domain.OrderEvent) error {
	h.Deliver(userID, event)
	return nil
}

// Deliver sends event to every channel registered for userID and returns how
// many accepted it. Events for users with no open channels are dropped.
func (h *Hub) Deliver(userID uuid.UUID, event domain.OrderEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.groups[userID] {
		select {
		case ch.send <- event:
			delivered++
		default:
			h.logger.Warn("Dropping notification for slow channel",
				zap.String("user_id", userID.String()),
				zap.String("channel_id", ch.id.String()),
				zap.String("type", event.Type),
			)
		}
	}

	return delivered
}

// Connections returns the number of open channels for userID
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[userID])
}

// Close unregisters and closes every channel. Later subscriptions fail with
// ErrHubClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for userID, group := range h.groups {
		for ch := range group {
			ch.registered = false
			close(ch.send)
		}
		delete(h.groups, userID)
	}

	return nil
}
