package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"key-service/internal/auth"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRetryAfter    = "Retry-After"
	msgRateLimited      = "rate limit exceeded"
)

// RateLimiter implements token bucket rate limiting per identity
type RateLimiter struct {
	limiters sync.Map // key -> *rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a rate limiter allowing requestsPerSecond with the
// given burst for each caller.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:  rate.Limit(requestsPerSecond),
		burst: burst,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	limiter, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	return limiter.(*rate.Limiter)
}

// Allow checks if a request should be allowed for the given key
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Middleware limits by authenticated actor when one is known, else by
// client IP. Install it after authentication to key by actor.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limiter := rl.getLimiter(callerKey(c))
			limit := strconv.Itoa(rl.burst)

			if !limiter.Allow() {
				c.Response().Header().Set(headerRateLimit, limit)
				c.Response().Header().Set(headerRateRemaining, "0")
				c.Response().Header().Set(headerRetryAfter, "1")

				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": msgRateLimited,
				})
			}

			c.Response().Header().Set(headerRateLimit, limit)
			c.Response().Header().Set(headerRateRemaining, strconv.Itoa(int(limiter.Tokens())))

			return next(c)
		}
	}
}

func callerKey(c echo.Context) string {
	actorID, err := auth.GetActorID(c)
	if err != nil {
		return "ip:" + c.RealIP()
	}
	switch auth.GetAuthType(c) {
	case auth.AuthTypeStation:
		return "station:" + actorID.String()
	default:
		return "user:" + actorID.String()
	}
}
