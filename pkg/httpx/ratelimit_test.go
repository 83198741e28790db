package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokend/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = addr
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(requestFrom("192.168.1.1:12345")))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := requestFrom("192.168.1.1:12345")
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := requestFrom("192.168.1.1:12345")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req))
	})
}

func TestFormFieldKeyExtractor(t *testing.T) {
	form := url.Values{"client_id": {"default-client"}}
	req := httptest.NewRequest(http.MethodPost, "/connect/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	require.Equal(t, "default-client", httpx.FormFieldKeyExtractor("client_id")(req))
	require.Empty(t, httpx.FormFieldKeyExtractor("username")(req))
}

func TestClientIDKeyExtractor(t *testing.T) {
	basic := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("client_id=ignored"))
	basic.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	basic.SetBasicAuth(url.QueryEscape("my client"), "secret")
	require.Equal(t, "my client", httpx.ClientIDKeyExtractor(basic))

	form := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("client_id=swagger-client"))
	form.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.Equal(t, "swagger-client", httpx.ClientIDKeyExtractor(form))

	require.Empty(t, httpx.ClientIDKeyExtractor(httptest.NewRequest(http.MethodPost, "/", nil)))
}

func TestCompositeKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?client_id=c1", nil)
	req.RemoteAddr = "10.0.0.1:1"
	ex := httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.FormFieldKeyExtractor("client_id"))
	require.Equal(t, "10.0.0.1:c1", ex(req))
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("blocks requests over limit", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3})(okHandler)

		for i := range 3 {
			require.Equal(t, http.StatusOK, serve(h, requestFrom("192.168.1.1:1")).Code, "request %d", i+1)
		}

		rec := serve(h, requestFrom("192.168.1.1:1"))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1})(okHandler)

		require.Equal(t, http.StatusOK, serve(h, requestFrom("192.168.1.1:1")).Code)
		require.Equal(t, http.StatusTooManyRequests, serve(h, requestFrom("192.168.1.1:1")).Code)
		require.Equal(t, http.StatusOK, serve(h, requestFrom("192.168.1.2:1")).Code)
	})

	t.Run("empty key skips limiting", func(t *testing.T) {
		empty := func(*http.Request) string { return "" }
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}, empty)(okHandler)
		for range 3 {
			require.Equal(t, http.StatusOK, serve(h, requestFrom("192.168.1.1:1")).Code)
		}
	})

	t.Run("zero profile disables limiting", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.RateLimitConfig{})(okHandler)
		for range 50 {
			require.Equal(t, http.StatusOK, serve(h, requestFrom("192.168.1.1:1")).Code)
		}
	})

	t.Run("limits per client on the same IP", func(t *testing.T) {
		h := httpx.RateLimitByIPAndFormField(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}, "client_id")(okHandler)

		a := httptest.NewRequest(http.MethodGet, "/?client_id=a", nil)
		b := httptest.NewRequest(http.MethodGet, "/?client_id=b", nil)
		require.Equal(t, http.StatusOK, serve(h, a).Code)
		require.Equal(t, http.StatusOK, serve(h, b).Code)
		a2 := httptest.NewRequest(http.MethodGet, "/?client_id=a", nil)
		require.Equal(t, http.StatusTooManyRequests, serve(h, a2).Code)
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	serve(httpx.Chain(okHandler, mw("outer"), mw("inner")), requestFrom("1.1.1.1:1"))
	require.Equal(t, []string{"outer", "inner"}, order)
}
