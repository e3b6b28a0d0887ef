package fleet

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// Per-host-group pacing of request starts. Generous enough that a fleet
// sync is not slowed noticeably; tight enough that co-hosted sites are not
// hit in parallel bursts.
const (
	hostRequestsPerSecond = 20
	hostBurst             = 5
)

// hostLimiter paces request starts within one host group so that co-hosted
// sites (shared hosting, multisite installs) are not hammered in bursts.
// Pacing only delays when a request begins; it never serializes one site
// behind another's in-flight latency, so a slow or dead site cannot inflate
// its neighbors' results.
type hostLimiter struct {
	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

func newHostLimiter() *hostLimiter {
	return &hostLimiter{hosts: make(map[string]*rate.Limiter)}
}

// wait blocks until the host group's next start slot is due or ctx ends.
func (l *hostLimiter) wait(ctx context.Context, baseURL string) {
	_ = l.limiter(hostKey(baseURL)).Wait(ctx)
}

func (l *hostLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.hosts[key]
	if !ok {
		lim = rate.NewLimiter(hostRequestsPerSecond, hostBurst)
		l.hosts[key] = lim
	}
	return lim
}

// hostKey groups URLs by registrable domain (eTLD+1) so that
// blog.example.com and shop.example.com share one budget. Hosts without a
// registrable domain (IPs, localhost) keep their port, so distinct sites
// on one address stay distinct.
func hostKey(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(baseURL)
	}
	if registrable, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(u.Hostname())); err == nil {
		return registrable
	}
	return strings.ToLower(u.Host)
}
