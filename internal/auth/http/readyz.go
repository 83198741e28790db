package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/pkg/authsdk"
	"github.com/aussiebroadwan/tokend/pkg/httpx"
	"github.com/aussiebroadwan/tokend/pkg/jwtx"
)

// Pinger is an optional dependency checked by /readyz, such as the Redis
// code store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyzHandler reports 503 until the database answers and signing keys
// are loaded.
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	keys *jwtx.KeySet,
	redis Pinger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{
			Database: "ok",
			Signer:   "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		// Check database connectivity
		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		// Check if JWT signer/verifier has keys loaded
		if !keys.IsReady() {
			checks.Signer = "error: no keys loaded"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if redis != nil {
			checks.Redis = "ok"
			if err := redis.Ping(r.Context()); err != nil {
				checks.Redis = "error: " + err.Error()
				overallStatus = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		response := authsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		httpx.WriteJSON(w, statusCode, response)
	}
}
