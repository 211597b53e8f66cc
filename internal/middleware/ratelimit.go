package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig bounds how often one shopper may change state. Reads are
// never counted unless their method is listed.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	KeyPrefix         string
	// Methods that consume budget; empty counts every request
	Methods []string
}

// MutatingMethods are the methods that change a cart or an order
var MutatingMethods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

func (c RateLimitConfig) counts(method string) bool {
	if len(c.Methods) == 0 {
		return true
	}
	for _, m := range c.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// RateLimitMiddleware keeps a fixed-window counter per shopper in redis.
// It runs after AuthMiddleware so the counter is keyed by user id; anonymous
// requests fall back to the remote address. A redis failure lets the
// request through.
func RateLimitMiddleware(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.counts(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			shopper := r.RemoteAddr
			if userID, ok := GetUserID(r.Context()); ok {
				shopper = userID.String()
			}
			key := config.KeyPrefix + ":" + shopper

			ctx := r.Context()
			var (
				incr *redis.IntCmd
				ttl  *redis.DurationCmd
			)
			_, err := redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				incr = pipe.Incr(ctx, key)
				ttl = pipe.TTL(ctx, key)
				return nil
			})
			if err != nil {
				logger.Error("Failed to count request",
					zap.String("key", key),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			count := incr.Val()
			remainingTTL := ttl.Val()
			// A counter without expiry would never reset
			if remainingTTL < 0 {
				if err := redisClient.Expire(ctx, key, config.Window).Err(); err != nil {
					logger.Warn("Failed to set rate limit window", zap.String("key", key), zap.Error(err))
				}
				remainingTTL = config.Window
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))

			if count > int64(config.RequestsPerWindow) {
				retryAfter := int((remainingTTL + time.Second - 1) / time.Second)

				logger.Warn("Rate limit exceeded",
					zap.String("shopper", shopper),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int64("count", count),
				)

				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(remainingTTL).Unix(), 10))
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				RespondWithError(w, http.StatusTooManyRequests, "Request was throttled.")
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(config.RequestsPerWindow-int(count)))
			next.ServeHTTP(w, r)
		})
	}
}
