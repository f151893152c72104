package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"golang.org/x/time/rate"
)

// limiterIdleTTL evicts limiters for clients that have gone quiet.
const limiterIdleTTL = 10 * time.Minute

// IPRateLimiter holds one token bucket per client IP.
type IPRateLimiter struct {
	limiters *gocache.Cache
	r        rate.Limit
	b        int
	// trustProxy takes the client address from X-Forwarded-For.
	trustProxy bool
}

func NewIPRateLimiter(r rate.Limit, b int, trustProxy bool) *IPRateLimiter {
	return &IPRateLimiter{
		limiters:   gocache.New(limiterIdleTTL, limiterIdleTTL),
		r:          r,
		b:          b,
		trustProxy: trustProxy,
	}
}

// GetLimiter returns the limiter for ip, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	if v, found := i.limiters.Get(ip); found {
		// Touch so active clients keep their bucket.
		i.limiters.SetDefault(ip, v)
		return v.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(i.r, i.b)
	// Add fails if another request raced us; use the winner's bucket.
	if err := i.limiters.Add(ip, limiter, gocache.DefaultExpiration); err != nil {
		if v, found := i.limiters.Get(ip); found {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// Middleware rejects requests over the client's budget with 429.
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.GetLimiter(i.clientIP(r)).Allow() {
			response.WriteJSONError(w, http.StatusTooManyRequests, "Too Many Requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (i *IPRateLimiter) clientIP(r *http.Request) string {
	if i.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
