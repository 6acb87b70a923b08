package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/simplecaptcha/utils"
)

// idle limiters are dropped after this long
const limiterTTL = 5 * time.Minute

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
	limit    rate.Limit
	burst    int
}

// RateLimitMiddleware applies a per-IP token bucket refilling perMinute
// tokens a minute. Each call returns an independent set of buckets.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	l := &ipLimiters{
		limiters: map[string]*rateLimiter{},
		limit:    rate.Every(time.Minute / time.Duration(max(perMinute, 1))),
		burst:    max(perMinute/2, 1),
	}

	return func(ctx *gin.Context) {
		if !l.get(ctx.ClientIP()).Allow() {
			utils.Error(ctx, http.StatusTooManyRequests, utils.CodeRateLimited, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func (l *ipLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for k, rl := range l.limiters {
		if now.After(rl.expires) {
			delete(l.limiters, k)
		}
	}

	if rl, ok := l.limiters[key]; ok {
		rl.expires = now.Add(limiterTTL)
		return rl.limiter
	}
	rl := &rateLimiter{limiter: rate.NewLimiter(l.limit, l.burst), expires: now.Add(limiterTTL)}
	l.limiters[key] = rl
	return rl.limiter
}
