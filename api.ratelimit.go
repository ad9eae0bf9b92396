package main

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client ip.
type IPRateLimiter struct {
	mu       sync.Mutex
	clock    Clocker
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	proxies  []netip.Prefix
}

// NewIPRateLimiter expects trusted proxies already checked by ParseTrustedProxies.
func NewIPRateLimiter(config RateLimitConfig, clock Clocker) *IPRateLimiter {
	proxies, _ := ParseTrustedProxies(config.TrustedProxies)
	return &IPRateLimiter{
		clock:    clock,
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(config.RequestsPerSecond),
		burst:    config.Burst,
		ttl:      config.IdleTTL,
		proxies:  proxies,
	}
}

// ParseTrustedProxies accepts single addresses and CIDR ranges.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(value); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", value)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

// ClientIP returns the address the bucket of a request is keyed on. It is the
// connection peer unless that peer is a trusted proxy, in which case the
// X-Forwarded-For chain is walked from the right up to the first untrusted hop.
func (l *IPRateLimiter) ClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !l.trusted(peer) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if _, err := netip.ParseAddr(hop); err != nil {
			break
		}
		if !l.trusted(hop) {
			return hop
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		if _, err := netip.ParseAddr(ip); err == nil {
			return ip
		}
	}
	return peer
}

func (l *IPRateLimiter) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range l.proxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Allow consumes one token of the ip bucket.
func (l *IPRateLimiter) Allow(ip string) bool {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	v, found := l.visitors[ip]
	if !found {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Sweep drops the buckets of clients not seen for longer than the idle ttl.
func (l *IPRateLimiter) Sweep() int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
