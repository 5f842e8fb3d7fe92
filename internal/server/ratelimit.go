package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/folio-go/internal/logging"
)

// Per-client chat limits used when Config leaves them zero. Every chat
// request costs an embedding call and a model call.
const (
	defaultRateLimit = 5
	defaultRateBurst = 10
)

const (
	// visitorTTL is how long an idle client's bucket is kept.
	visitorTTL = 5 * time.Minute
	// sweepInterval is how often idle buckets are evicted.
	sweepInterval = time.Minute
)

// visitor is one client's token bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-client-IP token bucket on the routes it wraps.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	log      *slog.Logger
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// newRateLimiter constructs a rateLimiter allowing rps sustained requests
// and burst instantaneous requests per client, and starts the sweeper. The
// returned stop function ends the sweeper.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		log:      log,
		now:      time.Now,
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				rl.evict()
			}
		}
	}()

	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// reserve takes a token for ip. It returns zero when the request may proceed,
// or how long the client should wait otherwise.
func (rl *rateLimiter) reserve(ip string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return time.Duration(math.MaxInt64)
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return d
	}
	return 0
}

// evict drops buckets idle for longer than visitorTTL.
func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-visitorTTL)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// middleware rejects over-limit requests with 429, a Retry-After header in
// whole seconds, and a JSON detail body.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		wait := rl.reserve(ip)
		if wait == 0 {
			next.ServeHTTP(w, r)
			return
		}

		log := logging.FromContext(r.Context())
		log.Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
			slog.Duration("retry_after", wait),
		)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		writeDetail(w, log, http.StatusTooManyRequests, "Too many requests")
	})
}

// retryAfterSeconds rounds wait up to whole seconds, clamped to [1, 3600].
func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	return min(max(secs, 1), 3600)
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is not trusted; deployments behind a proxy should rate
// limit at the proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
