package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tokend/internal/auth/service"
	"github.com/aussiebroadwan/tokend/pkg/authsdk"
	"github.com/aussiebroadwan/tokend/pkg/httpx"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// UserInfoHandler serves GET /connect/userinfo. It runs behind
// AuthnMiddleware and RequireScopes("openid").
type UserInfoHandler struct {
	UserInfo *service.UserInfoService
}

func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := httpx.ClaimsFromContext(ctx)
	if claims == nil || claims.Subject == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	info, err := h.UserInfo.UserInfo(ctx, claims.Subject, claims.Scopes())
	if err != nil {
		if errors.Is(err, service.ErrInvalidGrant) {
			// Tokens issued to clients have no user behind them.
			authsdk.ErrInvalidToken.WriteError(w)
			return
		}
		slogx.FromContext(ctx).Error("failed to load user info", "sub", claims.Subject, "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, info)
}
