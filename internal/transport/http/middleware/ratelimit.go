package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	resp "tour-booking-api/internal/transport/http/response"
)

const msgTooMany = "Too many requests from this IP, please try again later!"

// 超过 bucketIdle 没有请求的 IP 桶会被清掉
const bucketIdle = 10 * time.Minute

func tooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, resp.Error(http.StatusTooManyRequests, msgTooMany))
}

// RateLimit 全局令牌桶限速
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	lim := rate.NewLimiter(rps, burst)
	return func(c *gin.Context) {
		if lim.Allow() {
			c.Next()
			return
		}
		tooMany(c)
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

type ipBuckets struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	m         map[string]*bucket
	lastSweep time.Time
}

func (b *ipBuckets) allow(ip string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Sub(b.lastSweep) > bucketIdle {
		for k, v := range b.m {
			if now.Sub(v.seen) > bucketIdle {
				delete(b.m, k)
			}
		}
		b.lastSweep = now
	}
	bk, ok := b.m[ip]
	if !ok {
		bk = &bucket{lim: rate.NewLimiter(b.rps, b.burst)}
		b.m[ip] = bk
	}
	bk.seen = now
	return bk.lim.AllowN(now, 1)
}

// RateLimitPerIP 每 IP 一个令牌桶
func RateLimitPerIP(rps rate.Limit, burst int) gin.HandlerFunc {
	b := &ipBuckets{rps: rps, burst: burst, m: map[string]*bucket{}, lastSweep: time.Now()}
	return func(c *gin.Context) {
		if b.allow(c.ClientIP(), time.Now()) {
			c.Next()
			return
		}
		tooMany(c)
	}
}
