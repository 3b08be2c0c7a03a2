package middle

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/monopay/infra/response"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds the two limiter tiers
type RateLimitConfig struct {
	PerMinute      int
	StrictPerSec   float64
	StrictBurst    int
	StrictPrefixes []string
	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers are believed
	TrustedProxies []string
}

// RateLimiter keeps one token bucket per client and tier
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	cfg      RateLimitConfig
	trusted  []*net.IPNet
	idleTTL  time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 100
	}
	if cfg.StrictPerSec <= 0 {
		cfg.StrictPerSec = 5
	}
	if cfg.StrictBurst <= 0 {
		cfg.StrictBurst = 20
	}

	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		cfg:      cfg,
		trusted:  parseTrustedProxies(cfg.TrustedProxies),
		idleTTL:  3 * time.Minute,
		stop:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if the request from clientIP to path is allowed
func (rl *RateLimiter) Allow(clientIP, path string) bool {
	strict := rl.isStrict(path)
	key := clientIP
	if strict {
		key = "strict|" + clientIP
	}

	rl.mu.Lock()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rl.newLimiter(strict)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

func (rl *RateLimiter) newLimiter(strict bool) *rate.Limiter {
	if strict {
		return rate.NewLimiter(rate.Limit(rl.cfg.StrictPerSec), rl.cfg.StrictBurst)
	}
	perSec := rate.Limit(float64(rl.cfg.PerMinute) / 60)
	return rate.NewLimiter(perSec, rl.cfg.PerMinute)
}

func (rl *RateLimiter) isStrict(path string) bool {
	for _, prefix := range rl.cfg.StrictPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, v := range rl.visitors {
				if now.Sub(v.lastSeen) > rl.idleTTL {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RateLimitMiddleware creates a rate limiting middleware
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(rl.ClientIP(r), r.URL.Path) {
				w.Header().Set("Retry-After", "1")
				response.Error(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the address a request is limited by. Forwarding headers
// count only when the direct peer is a trusted proxy.
func (rl *RateLimiter) ClientIP(r *http.Request) string {
	remote := remoteIP(r.RemoteAddr)
	if !rl.isTrustedProxy(remote) {
		return remote
	}
	if forwarded := forwardedIP(r); forwarded != "" {
		return forwarded
	}
	return remote
}

func (rl *RateLimiter) isTrustedProxy(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range rl.trusted {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

func parseTrustedProxies(entries []string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil {
				bits := 128
				if ip.To4() != nil {
					bits = 32
				}
				entry = fmt.Sprintf("%s/%d", entry, bits)
			}
		}
		if _, network, err := net.ParseCIDR(entry); err == nil {
			networks = append(networks, network)
		}
	}
	return networks
}

// GetClientIP extracts the client IP for logging, preferring forwarding headers
func GetClientIP(r *http.Request) string {
	if forwarded := forwardedIP(r); forwarded != "" {
		return forwarded
	}
	return remoteIP(r.RemoteAddr)
}

func forwardedIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// first hop is the original client
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}

func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = strings.Trim(remoteAddr, "[]")
	}
	if host == "::1" {
		return "127.0.0.1"
	}
	return host
}
