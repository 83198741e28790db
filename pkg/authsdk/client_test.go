package authsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/tokend/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestOAuth2Error_IsMatchesOnCode(t *testing.T) {
	custom := authsdk.ErrInvalidGrant.WithDescription("authorization code expired")
	require.ErrorIs(t, custom, authsdk.ErrInvalidGrant)
	require.NotErrorIs(t, custom, authsdk.ErrInvalidClient)
	require.Equal(t, "invalid_grant: authorization code expired", custom.Error())

	wrapped := errors.Join(errors.New("context"), custom)
	require.ErrorIs(t, wrapped, authsdk.ErrInvalidGrant)
}

func TestOAuth2Error_WriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	authsdk.ErrInvalidClient.WriteError(rec)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	require.JSONEq(t, `{"error":"invalid_client","error_description":"client authentication failed"}`, rec.Body.String())
}

func TestSDKClient_TokenRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/connect/token", r.URL.Path)
		require.NoError(t, r.ParseForm())

		id, secret, ok := r.BasicAuth()
		if !ok || id != "default-api-client" || secret != "s3cret" {
			authsdk.ErrInvalidClient.WriteError(w)
			return
		}
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		require.Equal(t, "API", r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":1800,"scope":"API"}`))
	}))
	defer srv.Close()

	ctx := context.Background()

	tr, err := authsdk.NewSDKClient(srv.URL, "default-api-client", "s3cret").ClientCredentialsGrant(ctx, "API")
	require.NoError(t, err)
	require.Equal(t, "at", tr.AccessToken)
	require.Equal(t, 1800, tr.ExpiresIn)
	require.Empty(t, tr.RefreshToken)

	_, err = authsdk.NewSDKClient(srv.URL, "default-api-client", "wrong").ClientCredentialsGrant(ctx, "API")
	require.ErrorIs(t, err, authsdk.ErrInvalidClient)

	var oe *authsdk.OAuth2Error
	require.ErrorAs(t, err, &oe)
	require.Equal(t, http.StatusUnauthorized, oe.StatusCode)
}

func TestSDKClient_NonOAuthErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := authsdk.NewSDKClient(srv.URL, "c", "").Discovery(context.Background())
	require.ErrorIs(t, err, authsdk.ErrServerError)
}
