package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/sakif/cocktail-club/internal/httperr"
)

const storePrefix = "cocktail_club_limiter"

// NewLimiterStore returns a Redis-backed store when redisURL is set, so
// limits hold across replicas, and an in-process store otherwise. The
// returned close function releases the Redis client.
//
// WHICH STORE?
// The memory store counts per process: two replicas behind a load balancer
// would each allow the full rate. Redis shares one counter per key between
// all of them. Both implement limiter.Store, so RateLimit does not care.
func NewLimiterStore(ctx context.Context, redisURL string, logger *slog.Logger) (limiter.Store, func() error, error) {
	if redisURL == "" {
		logger.Info("rate limiter using in-memory store")
		return memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          storePrefix,
			CleanUpInterval: time.Minute,
		}), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}

	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: storePrefix})
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("creating redis limiter store: %w", err)
	}
	logger.Info("rate limiter using redis store", slog.String("addr", opts.Addr))
	return store, client.Close, nil
}

// RateLimit limits requests per client IP at rate, given in limiter's
// "<limit>-<period>" format such as "10-M". name keeps separate limits apart
// when they share a store. Limited requests get 429 with Retry-After; a
// store failure lets the request through and logs the error.
//
// FAIL OPEN:
// If Redis is down we would rather serve a few extra requests than reject
// every login and signup until it comes back.
func RateLimit(name, rate string, store limiter.Store, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", rate, err)
	}
	l := limiter.New(store, r)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ip := l.GetIPKey(req)
			lctx, err := l.Get(req.Context(), name+":"+ip)
			if err != nil {
				logger.Error("rate limit check failed",
					slog.String("limit", name),
					slog.String("ip", ip),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, req)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

			if lctx.Reached {
				logger.Warn("rate limit exceeded",
					slog.String("limit", name),
					slog.String("ip", ip),
					slog.Int64("limitPerPeriod", lctx.Limit),
				)
				retry := max(lctx.Reset-time.Now().Unix(), 1)
				h.Set("Retry-After", strconv.FormatInt(retry, 10))
				httperr.Write(w, http.StatusTooManyRequests, httperr.Response{
					Error:   "rate_limited",
					Message: "too many requests, please try again later",
				})
				return
			}
			next.ServeHTTP(w, req)
		})
	}, nil
}
