package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/notification"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     database.Service
	redis  *redis.Client
	hub    *notification.Hub
	broker *notification.RedisBroker
}

// NewServer wires repositories, services and handlers into one router.
// redisClient may be nil when neither rate limiting nor the redis
// notification backend is enabled.
func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, redisClient *redis.Client) *Server {
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.IsDevelopment()))
	router.Use(custommiddleware.LoggingMiddleware(logger.Named("http")))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := db.Health()
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, health)
	})

	// Notification fan-out: local hub, optionally relayed through redis
	hub := notification.NewHub(cfg.Notifications.SendBuffer, logger)
	var (
		publisher service.EventPublisher = hub
		broker    *notification.RedisBroker
	)
	if cfg.Notifications.Backend == config.NotificationBackendRedis && redisClient != nil {
		broker = notification.NewRedisBroker(redisClient, cfg.Notifications.Channel, hub, logger)
		publisher = broker
	}

	store := repository.NewStore(db.DB())

	cartService := service.NewCartService(store, logger)
	orderService := service.NewOrderService(store, publisher, logger)

	cartHandler := transport.NewCartHandler(cartService, logger)
	orderHandler := transport.NewOrderHandler(orderService, logger)
	notificationHandler := transport.NewNotificationHandler(hub, cfg.JWT.Secret, cfg.Notifications, cfg.CORS.AllowedOrigins, logger)

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger.Named("auth"))
	if cfg.RateLimit.Enabled && redisClient != nil {
		rateLimit := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "storefront:ratelimit",
			Methods:           custommiddleware.MutatingMethods,
		}, logger.Named("ratelimit"))
		authenticate := authMiddleware
		authMiddleware = func(next http.Handler) http.Handler {
			return authenticate(rateLimit(next))
		}
	}

	cartHandler.RegisterRoutes(router, authMiddleware)
	orderHandler.RegisterRoutes(router, authMiddleware)
	notificationHandler.RegisterRoutes(router)

	handler := otelhttp.NewHandler(router, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	server := &Server{
		Server: &http.Server{
			Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:     handler,
			IdleTimeout: time.Minute,
			ReadTimeout: 10 * time.Second,
			// Websocket connections outlive any write timeout; the
			// notification handler sets per-message deadlines instead.
			WriteTimeout: 0,
		},
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
		hub:    hub,
		broker: broker,
	}

	return server
}

// RunBroker relays notifications through redis until ctx is done. It
// returns immediately when the in-memory backend is configured.
func (s *Server) RunBroker(ctx context.Context) error {
	if s.broker == nil {
		return nil
	}
	return s.broker.Run(ctx)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Ends every open notification channel
	if err := s.hub.Close(); err != nil {
		s.logger.Error("Failed to close notification hub", zap.Error(err))
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
