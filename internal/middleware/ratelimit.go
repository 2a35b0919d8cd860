package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// RateLimit allows limit requests per client IP in each fixed window of
// length per. A non-positive limit disables the check.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	return rateLimit(limit, per, time.Now)
}

func rateLimit(limit int, per time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	var mu sync.Mutex
	buckets := make(map[string]*bucket)
	lastSweep := now()
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIPForRateLimit(r)
			mu.Lock()
			t := now()
			if t.Sub(lastSweep) > per {
				for key, b := range buckets {
					if t.After(b.until) {
						delete(buckets, key)
					}
				}
				lastSweep = t
			}
			b, ok := buckets[ip]
			if !ok || t.After(b.until) {
				b = &bucket{count: 0, until: t.Add(per)}
				buckets[ip] = b
			}
			if b.count >= limit {
				retry := int(b.until.Sub(t).Seconds()) + 1
				mu.Unlock()
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			b.count++
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
