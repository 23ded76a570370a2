package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ipRatePerSecond    = 5
	ipBurst            = 40
	partyRatePerSecond = 3
	partyBurst         = 20
	limiterIdleEvict   = 10 * time.Minute
)

// keyedLimiter keeps one token bucket per key, evicting buckets that have
// been idle long enough to be full again.
type keyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(r rate.Limit, burst int) *keyedLimiter {
	return &keyedLimiter{limiters: make(map[string]*limiterEntry), rate: r, burst: burst}
}

func (k *keyedLimiter) allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := time.Now()
	e, ok := k.limiters[key]
	if !ok {
		if len(k.limiters) > 4096 {
			for key, entry := range k.limiters {
				if now.Sub(entry.lastSeen) > limiterIdleEvict {
					delete(k.limiters, key)
				}
			}
		}
		e = &limiterEntry{lim: rate.NewLimiter(k.rate, k.burst)}
		k.limiters[key] = e
	}
	e.lastSeen = now
	return e.lim.Allow()
}

var (
	apiRateByIP    = newKeyedLimiter(ipRatePerSecond, ipBurst)
	apiRateByParty = newKeyedLimiter(partyRatePerSecond, partyBurst)
)

// RateLimitAPI limits /api/* requests per client IP and, when authenticated,
// per party id. Responds 429 on excess.
func RateLimitAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if x := r.Header.Get("X-Real-Ip"); x != "" {
			ip = x
		} else if x := r.Header.Get("X-Forwarded-For"); x != "" {
			ip = x
		}
		if !apiRateByIP.allow(ip) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if partyID := GetPartyID(r.Context()); partyID != "" {
			if !apiRateByParty.allow("p:" + partyID) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
