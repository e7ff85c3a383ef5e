package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/upb/oci-onboarding/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// IPRateLimiter limits requests per client IP with a token bucket each.
// Buckets that have refilled are evicted by the sweeper.
type IPRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	logger   *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewIPRateLimiter allows perMinute requests per IP with the given burst.
// A non-positive perMinute allows everything.
func NewIPRateLimiter(perMinute float64, burst int, logger *zap.Logger) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Duration(float64(time.Minute) / perMinute))
	}
	return &IPRateLimiter{
		rate:   limit,
		burst:  burst,
		logger: logger,
	}
}

func (l *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(ip); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := l.limiters.LoadOrStore(ip, rate.NewLimiter(l.rate, l.burst))
	return limiter.(*rate.Limiter)
}

// Allow reports whether a request from ip may proceed
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.getLimiter(ip).Allow()
}

// Sweep drops every limiter whose bucket is full again. A full bucket is
// indistinguishable from a new one, so eviction never grants extra requests.
func (l *IPRateLimiter) Sweep() int {
	now := time.Now()
	evicted := 0
	l.limiters.Range(func(key, value any) bool {
		limiter := value.(*rate.Limiter)
		if limiter.TokensAt(now) >= float64(limiter.Burst()) && l.limiters.CompareAndDelete(key, limiter) {
			evicted++
		}
		return true
	})
	return evicted
}

// Len returns the number of tracked client IPs
func (l *IPRateLimiter) Len() int {
	n := 0
	l.limiters.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// StartSweeper runs Sweep every interval until Stop. A non-positive
// interval or a second call does nothing.
func (l *IPRateLimiter) StartSweeper(interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if interval <= 0 || l.stop != nil {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					l.logger.Debug("evicted idle rate limiters", zap.Int("count", n))
				}
			case <-stop:
				return
			}
		}
	}(l.stop, l.done)
}

// Stop halts the sweeper and waits for it to exit
func (l *IPRateLimiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stop == nil {
		return
	}
	close(l.stop)
	<-l.done
	l.stop, l.done = nil, nil
}

// RateLimit responds 429 once a client IP exhausts its bucket
func (l *IPRateLimiter) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.Allow(ip) {
			l.logger.Warn("rate limit exceeded",
				zap.String("ip", ip),
				zap.String("path", r.URL.Path),
				zap.String("request_id", GetRequestIDFromContext(r.Context())))
			_ = utils.WriteTooManyRequests(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr, which chi's RealIP has already
// replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
