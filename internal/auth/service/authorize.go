package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/pkg/cryptox"
	"github.com/aussiebroadwan/tokend/pkg/idx"
	"github.com/aussiebroadwan/tokend/pkg/slogx"
)

const DefaultCodeTTL = 5 * time.Minute

// AuthorizeService issues authorization codes for the code grant.
type AuthorizeService struct {
	Clients ClientRegistry
	Scopes  ScopeRegistry
	Users   UserStore
	Store   store.Store
	CodeTTL time.Duration
	Now     func() time.Time
}

// AuthorizeRequest captures the inputs of one authorization request,
// including the resource owner's credentials.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	Username string
	Password string
}

// AuthorizeCodeResponse is what the HTTP layer turns into the redirect.
type AuthorizeCodeResponse struct {
	Code        string
	RedirectURI string
	State       string
}

// IssueAuthorizationCode validates the request, signs the user in and
// stores a hashed single-use code.
//
// PKCE is required for public clients and for clients marked RequiresPKCE.
// The method defaults to S256 when a challenge is sent without one.
// Granted scopes are the requested scopes the client is allowed.
func (s *AuthorizeService) IssueAuthorizationCode(ctx context.Context, req AuthorizeRequest) (*AuthorizeCodeResponse, error) {
	now := nowFrom(s.Now)

	responseType := strings.TrimSpace(req.ResponseType)
	if responseType == "" {
		return nil, fmt.Errorf("%w: response_type is required", ErrInvalidRequest)
	}
	if responseType != "code" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedResponseType, responseType)
	}
	if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.RedirectURI) == "" {
		return nil, fmt.Errorf("%w: client_id and redirect_uri are required", ErrInvalidRequest)
	}

	client, err := s.Clients.FindByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown client", ErrInvalidClient)
		}
		return nil, fmt.Errorf("lookup client: %w", err)
	}
	if !client.AllowsGrant(domain.GrantAuthorizationCode) {
		return nil, fmt.Errorf("%w: client may not use %s", ErrUnauthorizedClient, domain.GrantAuthorizationCode)
	}
	if !client.AllowsRedirectURI(req.RedirectURI) {
		return nil, fmt.Errorf("%w: redirect_uri is not registered", ErrInvalidRequest)
	}

	challenge, method, err := validatePKCE(req.CodeChallenge, req.CodeChallengeMethod, client)
	if err != nil {
		return nil, err
	}

	if err := s.Scopes.Validate(ctx, req.Scopes); err != nil {
		return nil, err
	}

	user, err := signIn(ctx, s.Users, req.Username, req.Password, now)
	if err != nil {
		return nil, err
	}

	scopes, err := grantScopes(req.Scopes, client.AllowedScopes)
	if err != nil {
		return nil, err
	}

	code, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, fmt.Errorf("generate authorization code: %w", err)
	}
	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}

	record := domain.AuthorizationCode{
		ID:                  idx.New().String(),
		CodeHash:            cryptox.FingerprintToken(code),
		ClientID:            client.ID,
		UserID:              user.ID,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	}
	if err := s.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, record); err != nil {
		return nil, fmt.Errorf("store authorization code: %w", err)
	}

	slogx.FromContext(ctx).Info("authorization code issued",
		"client_id", client.ID,
		"user_id", user.ID,
		"code_id", record.ID,
	)
	return &AuthorizeCodeResponse{
		Code:        code,
		RedirectURI: req.RedirectURI,
		State:       req.State,
	}, nil
}

func validatePKCE(challenge, method string, client domain.Client) (string, string, error) {
	trimmedChallenge := strings.TrimSpace(challenge)
	trimmedMethod := strings.TrimSpace(method)

	if trimmedChallenge == "" {
		if client.IsPublic() || client.RequiresPKCE {
			return "", "", fmt.Errorf("%w: code_challenge is required", ErrInvalidRequest)
		}
		// Confidential clients may omit PKCE; store empty values.
		return "", "", nil
	}

	var normalizedMethod string
	switch {
	case strings.EqualFold(trimmedMethod, domain.PKCEMethodS256):
		normalizedMethod = domain.PKCEMethodS256
	case strings.EqualFold(trimmedMethod, domain.PKCEMethodPlain):
		normalizedMethod = domain.PKCEMethodPlain
	case trimmedMethod == "":
		// Default to S256 when challenge provided but method omitted.
		normalizedMethod = domain.PKCEMethodS256
	default:
		return "", "", fmt.Errorf("%w: unsupported code_challenge_method %q", ErrInvalidRequest, trimmedMethod)
	}

	return trimmedChallenge, normalizedMethod, nil
}
