package middleware

import (
	"strconv"
	"sync"
	"time"

	"hrms/internal/apperror"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

var ErrTooManyRequests = apperror.New(apperror.KindTooManyRequests, "too many requests, please try again later")

// RateLimiter hands out one token bucket per client IP; idle buckets expire
type RateLimiter struct {
	mu       sync.Mutex
	limiters *gocache.Cache
	every    time.Duration
	burst    int
}

func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	return &RateLimiter{
		limiters: gocache.New(10*time.Minute, 10*time.Minute),
		every:    time.Minute / time.Duration(perMinute),
		burst:    perMinute,
	}
}

func (l *RateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.limiters.Get(key); ok {
		l.limiters.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Every(l.every), l.burst)
	l.limiters.SetDefault(key, lim)
	return lim
}

// Middleware rejects callers that exhausted their bucket with TooManyRequests
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.limiterFor(c.ClientIP()).Allow() {
			c.Header("Retry-After", strconv.Itoa(int(l.every.Seconds())+1))
			abort(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
