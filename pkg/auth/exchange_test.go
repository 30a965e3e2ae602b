package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Exchanger) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ex := NewExchanger(Endpoints{
		Authorize: srv.URL + "/authorize",
		Token:     srv.URL + "/token",
	}, 5*time.Second)
	return srv, ex
}

// TestExchangeCode sends the code and verifier form-encoded and parses the
// token record
func TestExchangeCode(t *testing.T) {
	start := time.Now()
	_, ex := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "AUTHCODE123", r.PostForm.Get("code"))
		assert.Equal(t, "verifier-1", r.PostForm.Get("code_verifier"))
		assert.Equal(t, ClientID, r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok1","refresh_token":"ref1","expires_in":3600,"token_type":"Bearer"}`))
	})

	tok, err := ex.ExchangeCode(context.Background(), "AUTHCODE123", "verifier-1")

	require.NoError(t, err)
	assert.Equal(t, "tok1", tok.AccessToken)
	assert.Equal(t, "ref1", tok.RefreshToken)
	assert.WithinDuration(t, start.Add(3600*time.Second), tok.Expiry, 5*time.Second)
}

// TestRefresh sends grant_type refresh_token
func TestRefresh(t *testing.T) {
	_, ex := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "ref1", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok2","refresh_token":"ref2","expires_in":3600,"token_type":"Bearer"}`))
	})

	tok, err := ex.Refresh(context.Background(), "ref1")

	require.NoError(t, err)
	assert.Equal(t, "tok2", tok.AccessToken)
	assert.Equal(t, "ref2", tok.RefreshToken)
}

// TestRefresh_KeepsPreviousRefreshToken: a response omitting refresh_token
// means the token was not rotated
func TestRefresh_KeepsPreviousRefreshToken(t *testing.T) {
	_, ex := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok2","expires_in":3600,"token_type":"Bearer"}`))
	})

	tok, err := ex.Refresh(context.Background(), "ref1")

	require.NoError(t, err)
	assert.Equal(t, "tok2", tok.AccessToken)
	assert.Equal(t, "ref1", tok.RefreshToken)
}

// TestExchangeCode_NonOKStatus wraps into TokenExchangeError with the status
func TestExchangeCode_NonOKStatus(t *testing.T) {
	_, ex := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	_, err := ex.ExchangeCode(context.Background(), "stale-code", "verifier-1")

	var exchErr *TokenExchangeError
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, http.StatusBadRequest, exchErr.StatusCode)
	assert.Contains(t, exchErr.Body, "invalid_grant")
}

// TestExchangeCode_MalformedBody: a 2xx response that cannot be parsed is
// still a token exchange failure
func TestExchangeCode_MalformedBody(t *testing.T) {
	_, ex := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`this is not json`))
	})

	_, err := ex.ExchangeCode(context.Background(), "code", "verifier")

	var exchErr *TokenExchangeError
	assert.ErrorAs(t, err, &exchErr)
}
