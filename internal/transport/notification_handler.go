package transport

import (
	"errors"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/notification"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxClientMessageSize = 512

// NotificationHandler upgrades authenticated requests to websocket
// connections and streams the caller's order events over them
type NotificationHandler struct {
	hub          *notification.Hub
	jwtSecret    string
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler. An empty
// allowedOrigins list accepts any origin.
func NewNotificationHandler(hub *notification.Hub, jwtSecret string, cfg config.NotificationConfig, allowedOrigins []string, logger *zap.Logger) *NotificationHandler {
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return &NotificationHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		logger:       logger.Named("notification-handler"),
	}
}

// RegisterRoutes registers the notification channel under both of its paths.
// Authentication happens after the upgrade so rejected clients get a close
// frame rather than an HTTP error body.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/notifications", h.Connect)
	r.Get("/ws/orders/notifications/", h.Connect)
}

// Connect serves one notification channel for the lifetime of the connection
func (h *NotificationHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID := h.authenticate(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch, err := h.hub.Subscribe(userID)
	if err != nil {
		h.logger.Debug("Notification channel rejected", zap.Error(err))
		if errors.Is(err, notification.ErrHubClosed) {
			h.closeWith(conn, websocket.CloseGoingAway)
			return
		}
		h.closeWith(conn, websocket.ClosePolicyViolation)
		return
	}
	defer h.hub.Unsubscribe(ch)

	h.logger.Info("Notification channel opened",
		zap.String("user_id", userID.String()),
		zap.String("channel_id", ch.ID().String()),
	)

	done := make(chan struct{})
	go h.readLoop(conn, done)

	h.writeLoop(conn, ch, done)

	h.logger.Info("Notification channel closed",
		zap.String("user_id", userID.String()),
		zap.String("channel_id", ch.ID().String()),
	)
}

// authenticate returns uuid.Nil when the request carries no valid token
func (h *NotificationHandler) authenticate(r *http.Request) uuid.UUID {
	token, err := middleware.BearerToken(r)
	if err != nil {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return uuid.Nil
	}

	identity, err := middleware.ParseToken(h.jwtSecret, token)
	if err != nil {
		h.logger.Debug("Notification token rejected", zap.Error(err))
		return uuid.Nil
	}

	return identity.UserID
}

// readLoop discards client messages and keeps the read deadline moving on
// pongs. It closes done when the connection fails.
func (h *NotificationHandler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	pongWait := 2 * h.pingInterval
	conn.SetReadLimit(maxClientMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Notification channel read failed", zap.Error(err))
			}
			return
		}
	}
}

// writeLoop is the only writer on conn
func (h *NotificationHandler) writeLoop(conn *websocket.Conn, ch *notification.Channel, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case event, ok := <-ch.Events():
			if !ok {
				h.closeWith(conn, websocket.CloseGoingAway)
				return
			}

			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("Notification write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *NotificationHandler) closeWith(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
