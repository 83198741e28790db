// Package authsdk is a small Go client for the tokend token server, and the
// home of the OAuth2 error type both sides share.
package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/tokend/pkg/jwtx"
)

// SDKClient talks to a tokend server on behalf of one OAuth2 client.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	ClientID     string
	ClientSecret string // empty for public clients
}

// NewSDKClient creates a client with a 10 second HTTP timeout.
func NewSDKClient(baseURL, clientID, clientSecret string) *SDKClient {
	return &SDKClient{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
}

// PasswordGrant exchanges resource-owner credentials for tokens.
func (c *SDKClient) PasswordGrant(ctx context.Context, username, password string, scopes ...string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	}
	setScope(data, scopes)
	return c.requestToken(ctx, data)
}

// AuthorizationCodeGrant redeems a code from /connect/authorize.
func (c *SDKClient) AuthorizationCodeGrant(ctx context.Context, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}
	return c.requestToken(ctx, data)
}

// RefreshGrant rotates a refresh token. The old token is dead afterwards.
func (c *SDKClient) RefreshGrant(ctx context.Context, refreshToken string, scopes ...string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	setScope(data, scopes)
	return c.requestToken(ctx, data)
}

// ClientCredentialsGrant gets an access token for the client itself. No
// refresh token is ever returned.
func (c *SDKClient) ClientCredentialsGrant(ctx context.Context, scopes ...string) (*TokenResponse, error) {
	data := url.Values{"grant_type": {"client_credentials"}}
	setScope(data, scopes)
	return c.requestToken(ctx, data)
}

// RevokeToken revokes a refresh token and everything rotated from it.
func (c *SDKClient) RevokeToken(ctx context.Context, token string) error {
	resp, err := c.postForm(ctx, "/connect/revoke", url.Values{"token": {token}})
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// UserInfo fetches the claims about the subject of accessToken.
func (c *SDKClient) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/connect/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	var info UserInfo
	if err := decodeJSON(resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Discovery fetches the OpenID provider metadata.
func (c *SDKClient) Discovery(ctx context.Context) (*DiscoveryDocument, error) {
	var doc DiscoveryDocument
	if err := c.getJSON(ctx, "/.well-known/openid-configuration", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// KeySet fetches the server's JWKS, ready to back a jwtx.Verifier.
func (c *SDKClient) KeySet(ctx context.Context) (*jwtx.KeySet, error) {
	var jwks jwtx.JWKS
	if err := c.getJSON(ctx, "/.well-known/jwks.json", &jwks); err != nil {
		return nil, err
	}
	ks := jwtx.NewKeySet()
	if err := ks.ResetFromJWKS(jwks); err != nil {
		return nil, err
	}
	return ks, nil
}

func setScope(data url.Values, scopes []string) {
	if len(scopes) > 0 {
		data.Set("scope", strings.Join(scopes, " "))
	}
}

func (c *SDKClient) requestToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	resp, err := c.postForm(ctx, "/connect/token", data)
	if err != nil {
		return nil, err
	}
	var tr TokenResponse
	if err := decodeJSON(resp, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// postForm sends an urlencoded body, authenticating the client with HTTP
// Basic when it has a secret and with a client_id field otherwise.
func (c *SDKClient) postForm(ctx context.Context, path string, data url.Values) (*http.Response, error) {
	if c.ClientSecret == "" {
		data.Set("client_id", c.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(c.ClientID), url.QueryEscape(c.ClientSecret))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func (c *SDKClient) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return decodeJSON(resp, target)
}

// decodeJSON decodes a 200 body into target, or returns the OAuth2Error the
// server sent. A nil target discards the body.
func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp, body)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
