package google

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const clientSecrets = `{"installed":{"client_id":"cid","client_secret":"csecret","auth_uri":"https://accounts.test/auth","token_uri":"https://accounts.test/token","redirect_uris":["http://localhost"]}}`

func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func listen(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln, "http://" + ln.Addr().String() + CallbackPath
}

// follow plays the browser: it calls the redirect with the given query.
func follow(t *testing.T, redirect string, query url.Values) func(string) {
	return func(consent string) {
		u, err := url.Parse(consent)
		require.NoError(t, err)
		if query.Get("state") == "" {
			query.Set("state", u.Query().Get("state"))
		}
		resp, err := http.Get(redirect + "?" + query.Encode())
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
}

func TestOAuthConfig(t *testing.T) {
	cfg, err := OAuthConfig([]byte(clientSecrets), "http://localhost:8085/callback")
	require.NoError(t, err)
	assert.Equal(t, "cid", cfg.ClientID)
	assert.Equal(t, "http://localhost:8085/callback", cfg.RedirectURL)
	assert.Contains(t, cfg.Scopes[0], "spreadsheets")

	_, err = OAuthConfig([]byte(`{}`), "")
	assert.Error(t, err)
}

func TestAuthorizeExchangesCode(t *testing.T) {
	ts := tokenServer(t)
	ln, redirect := listen(t)
	cfg := &oauth2.Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.test/auth", TokenURL: ts.URL},
		RedirectURL:  redirect,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tok, err := Authorize(ctx, cfg, ln, follow(t, redirect, url.Values{"code": {"good-code"}}))
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
}

func TestAuthorizeDenied(t *testing.T) {
	ln, redirect := listen(t)
	cfg := &oauth2.Config{ClientID: "cid", RedirectURL: redirect, Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.test/auth"}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Authorize(ctx, cfg, ln, follow(t, redirect, url.Values{"error": {"access_denied"}}))
	assert.ErrorContains(t, err, "access_denied")
}

func TestAuthorizeIgnoresForeignState(t *testing.T) {
	ln, redirect := listen(t)
	cfg := &oauth2.Config{ClientID: "cid", RedirectURL: redirect, Endpoint: oauth2.Endpoint{AuthURL: "https://accounts.test/auth"}}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := Authorize(ctx, cfg, ln, follow(t, redirect, url.Values{"code": {"good-code"}, "state": {"forged"}}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, SaveToken(path, &oauth2.Token{AccessToken: "at", RefreshToken: "rt"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "rt", tok.RefreshToken)

	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	_, err = LoadToken(path)
	assert.Error(t, err)
}

func TestNewWithOAuthToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, SaveToken(path, &oauth2.Token{AccessToken: "at", RefreshToken: "rt"}))

	e, err := New(context.Background(), Config{SpreadsheetID: "sheet-1", OAuthClientJSON: clientSecrets, OAuthTokenFile: path})
	require.NoError(t, err)
	assert.Equal(t, "Transactions", e.sheetName)

	_, err = New(context.Background(), Config{SpreadsheetID: "sheet-1", OAuthClientJSON: clientSecrets})
	assert.ErrorContains(t, err, "credentials")
}
