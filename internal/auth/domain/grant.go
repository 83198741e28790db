package domain

// GrantType is the OAuth2 flow a token request declares.
type GrantType string

const (
	GrantPassword          GrantType = "password"
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantClientCredentials GrantType = "client_credentials"
)

// SupportedGrantTypes is the token endpoint allow-list, in the order they
// are advertised in discovery.
var SupportedGrantTypes = []GrantType{
	GrantAuthorizationCode,
	GrantRefreshToken,
	GrantPassword,
	GrantClientCredentials,
}

// ParseGrantType checks s against the allow-list.
func ParseGrantType(s string) (GrantType, bool) {
	for _, g := range SupportedGrantTypes {
		if string(g) == s {
			return g, true
		}
	}
	return "", false
}

func (g GrantType) String() string { return string(g) }

// TokenRequest is the token endpoint input for every grant. Which fields
// matter depends on GrantType; the rest are ignored.
type TokenRequest struct {
	GrantType string

	// Client authentication, from HTTP Basic or the form body.
	ClientID     string
	ClientSecret string

	// password
	Username string
	Password string

	// authorization_code
	Code         string
	RedirectURI  string
	CodeVerifier string

	// refresh_token
	RefreshToken string

	// Requested scopes. Empty means none were asked for.
	Scopes []string
}

// TokenResult is what a grant handler hands back to the token endpoint.
type TokenResult struct {
	AccessToken   IssuedToken
	IdentityToken *IssuedToken
	RefreshToken  *IssuedToken
	Scopes        []string
}
