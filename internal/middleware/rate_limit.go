package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// SendLimiter throttles message sends per authenticated user.
type SendLimiter struct {
	mu       sync.Mutex
	limiters map[int]*userLimiter
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewSendLimiter(perSecond float64, burst int) *SendLimiter {
	return &SendLimiter{
		limiters: make(map[int]*userLimiter),
		rps:      rate.Limit(perSecond),
		burst:    burst,
		idleTTL:  10 * time.Minute,
	}
}

func (l *SendLimiter) allow(userID int, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now
	if len(l.limiters) > 1024 {
		for id, other := range l.limiters {
			if now.Sub(other.lastSeen) > l.idleTTL {
				delete(l.limiters, id)
			}
		}
	}
	return ul.limiter.AllowN(now, 1)
}

// Middleware rejects the request with 429 when the user is over budget. It
// must run after AuthMiddleware.
func (l *SendLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt(UserIDKey)
		if !l.allow(userID, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
