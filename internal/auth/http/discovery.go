package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/service"
	"github.com/aussiebroadwan/tokend/pkg/authsdk"
	"github.com/aussiebroadwan/tokend/pkg/httpx"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

// DiscoveryHandler serves the OpenID provider metadata. The scope list is
// read from the registry on every request so newly seeded scopes show up.
func DiscoveryHandler(issuer, alg string, scopes *service.ScopeService) http.HandlerFunc {
	base := strings.TrimSuffix(issuer, "/")

	grantTypes := make([]string, 0, len(domain.SupportedGrantTypes))
	for _, g := range domain.SupportedGrantTypes {
		grantTypes = append(grantTypes, g.String())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		registered, err := scopes.List(r.Context())
		if err != nil {
			slogx.FromContext(r.Context()).Error("failed to list scopes", "error", err)
			authsdk.ErrServerError.WriteError(w)
			return
		}
		names := make([]string, 0, len(registered))
		for _, s := range registered {
			names = append(names, s.Name)
		}

		httpx.WriteJSON(w, http.StatusOK, authsdk.DiscoveryDocument{
			Issuer:                            issuer,
			AuthorizationEndpoint:             base + "/connect/authorize",
			TokenEndpoint:                     base + "/connect/token",
			RevocationEndpoint:                base + "/connect/revoke",
			UserinfoEndpoint:                  base + "/connect/userinfo",
			JWKSURI:                           base + "/.well-known/jwks.json",
			GrantTypesSupported:               grantTypes,
			ResponseTypesSupported:            []string{"code"},
			ScopesSupported:                   names,
			TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
			CodeChallengeMethodsSupported:     []string{domain.PKCEMethodS256, domain.PKCEMethodPlain},
			IDTokenSigningAlgValuesSupported:  []string{alg},
			SubjectTypesSupported:             []string{"public"},
			ClaimsSupported:                   []string{"sub", domain.ClaimName, domain.ClaimEmail, domain.ClaimRole},
		})
	}
}
