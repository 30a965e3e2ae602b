package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEndToEnd_LoginAndExchange wires the real choreography, exchanger and
// token cache against a canned identity provider and verifies the full path:
// authorize -> credentials -> confirm -> exchange -> cached token.
func TestEndToEnd_LoginAndExchange(t *testing.T) {
	var tokenRequests int

	fixture := &loginFixture{
		authorizeBody: defaultAuthorizeBody(),
		selfAsserted: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"200"}`))
		},
		confirmed: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", "https://partners-login.example/redirect?state=s&code=AUTHCODE123&sp=1")
			w.WriteHeader(http.StatusFound)
		},
	}
	srv := fixture.server(t)

	mux := srv.Config.Handler.(*http.ServeMux)
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "AUTHCODE123", r.PostForm.Get("code"))
		assert.NotEmpty(t, r.PostForm.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok1","refresh_token":"ref1","expires_in":3600,"token_type":"Bearer"}`))
	})

	endpoints := fixtureEndpoints(srv)
	log := testLogger(t)
	choreography := NewChoreography(endpoints, 5*time.Second, log)
	exchanger := NewExchanger(endpoints, 5*time.Second)
	creds := Credentials{Email: "user@example.com", Password: "hunter2"}
	cache := NewTokenCache(creds, choreography, exchanger, nil, log)

	start := time.Now()
	tok, err := cache.GetAccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
	assert.Equal(t, 1, fixture.authorizeRequests)
	assert.Equal(t, 1, tokenRequests)
	assert.WithinDuration(t, start.Add(3600*time.Second), cache.Expiry(), 5*time.Second)

	// A second call within the validity window is a pure cache hit.
	tok2, err := cache.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok2)
	assert.Equal(t, 1, fixture.authorizeRequests)
	assert.Equal(t, 1, tokenRequests)
}
