package httpx

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/tokend/pkg/slogx"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// Disabled reports whether the profile turns limiting off.
func (c RateLimitConfig) Disabled() bool {
	return c.RequestsPerWindow <= 0 || c.Window <= 0
}

// refill is how long an idle bucket takes to fill back up. A limiter idle for
// that long is indistinguishable from a fresh one, so it can be dropped.
func (c RateLimitConfig) refill() time.Duration {
	burst := max(c.Burst, 1)
	return time.Duration(float64(c.Window) * float64(burst) / float64(c.RequestsPerWindow))
}

// Default profiles. The app overrides them from its config.
var (
	// StrictLimit for credential-bearing endpoints (token, authorize).
	StrictLimit = RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	// LenientLimit for authenticated reads.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}

	// PublicLimit for discovery documents and health checks.
	PublicLimit = RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
)

// KeyExtractor returns the bucket key for a request. An empty key skips
// limiting for that request.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// FormFieldKeyExtractor keys on a form or query parameter such as client_id.
func FormFieldKeyExtractor(fieldName string) KeyExtractor {
	return func(r *http.Request) string {
		if err := r.ParseForm(); err != nil {
			return ""
		}
		return r.FormValue(fieldName)
	}
}

// ClientIDKeyExtractor keys on the OAuth2 client, taken from HTTP Basic
// credentials when present and from the client_id field otherwise.
func ClientIDKeyExtractor(r *http.Request) string {
	if id, _, ok := r.BasicAuth(); ok {
		if unescaped, err := url.QueryUnescape(id); err == nil {
			return unescaped
		}
		return id
	}
	return FormFieldKeyExtractor("client_id")(r)
}

// CompositeKeyExtractor joins the non-empty keys of several extractors.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// limiterStore keeps one token bucket per key. Idle buckets expire out of
// the cache once they would have refilled.
type limiterStore struct {
	buckets *cache.Cache
	limit   rate.Limit
	burst   int
	ttl     time.Duration
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	ttl := cfg.refill()
	return &limiterStore{
		buckets: cache.New(ttl, max(ttl, time.Minute)),
		limit:   rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:   max(cfg.Burst, 1),
		ttl:     ttl,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	if v, ok := s.buckets.Get(key); ok {
		l := v.(*rate.Limiter)
		s.buckets.Set(key, l, s.ttl)
		return l
	}

	l := rate.NewLimiter(s.limit, s.burst)
	if err := s.buckets.Add(key, l, s.ttl); err != nil {
		// Lost the race with another request for the same key.
		if v, ok := s.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

// RateLimitMiddleware limits requests per key using the given profile.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	if config.Disabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	store := newLimiterStore(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyExtractor(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			limiter := store.get(key)
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			reservation := limiter.Reserve()
			retryAfter := max(int(reservation.Delay().Seconds()), 1)
			reservation.Cancel()

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", config.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"key", key,
				"endpoint", r.URL.Path,
				"retry_after", retryAfter,
			)

			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": "Too many requests. Please try again later.",
			})
		})
	}
}

// RateLimitByIP creates a rate limiter that limits by IP address only.
func RateLimitByIP(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, IPKeyExtractor)
}

// RateLimitByIPAndFormField limits by IP plus a form field, e.g. client_id
// on the token endpoint or username on the authorize form.
func RateLimitByIPAndFormField(config RateLimitConfig, fieldName string) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(":",
		IPKeyExtractor,
		FormFieldKeyExtractor(fieldName),
	))
}

// RateLimitByIPAndClient limits by IP plus the OAuth2 client however it
// authenticates.
func RateLimitByIPAndClient(config RateLimitConfig) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(":",
		IPKeyExtractor,
		ClientIDKeyExtractor,
	))
}
