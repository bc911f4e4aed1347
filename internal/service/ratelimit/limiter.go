package ratelimit

import (
	"strconv"
	"sync"

	xhttp "AgriCast/pkg/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key. The least recently seen keys
// are forgotten once maxKeys is reached.
type Limiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	buckets *lru.Cache[string, *rate.Limiter]
}

func New(rps float64, burst, maxKeys int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if maxKeys < 1 {
		maxKeys = 10000
	}
	buckets, _ := lru.New[string, *rate.Limiter](maxKeys)
	return &Limiter{rps: rate.Limit(rps), burst: burst, buckets: buckets}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets.Add(key, b)
	}
	return b
}

// Middleware rejects requests over the per-client budget with 429.
// Clients are keyed by echo's RealIP.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				appErr := xhttp.TooManyRequestsError("rate limit exceeded")
				if l.rps > 0 {
					wait := int(1/float64(l.rps)) + 1
					c.Response().Header().Set("Retry-After", strconv.Itoa(wait))
					appErr.WithParam("retry_after", wait)
				}
				return xhttp.AppErrorResponse(c, appErr)
			}
			return next(c)
		}
	}
}
