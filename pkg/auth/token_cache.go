package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"homecontrol-bridge/pkg/logger"
	"homecontrol-bridge/pkg/metrics"
)

// expiryMargin is the safety window before nominal expiry within which a
// token is already treated as expired, so in-flight requests never present
// a token that lapses mid-request.
const expiryMargin = 60 * time.Second

// loginRunner runs one full interactive-login simulation and yields an
// authorization code plus the PKCE verifier it is bound to.
type loginRunner interface {
	Run(ctx context.Context, creds Credentials) (code, verifier string, err error)
}

// tokenExchanger converts an authorization code or a refresh token into a
// token record.
type tokenExchanger interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenCache owns the process-wide bearer token and decides, per request,
// whether to reuse it, refresh it, or run the full login choreography.
//
// The token record is replaced atomically under the lock; a reader never
// observes a half-updated token/expiry pair. Concurrent callers that find
// the token expired are collapsed onto a single in-flight authentication
// attempt: duplicate logins against the identity provider risk rate
// limiting and session thrashing.
type TokenCache struct {
	mu    sync.RWMutex
	token *oauth2.Token

	creds     Credentials
	login     loginRunner
	exchanger tokenExchanger
	flight    singleflight.Group
	bm        *metrics.BridgeMetrics
	log       *logger.Logger

	// now is swapped out by tests to drive the expiry clock.
	now func() time.Time
}

// NewTokenCache creates a token cache. bm may be nil when the bridge runs
// without metrics (one-shot command mode).
func NewTokenCache(creds Credentials, login loginRunner, exchanger tokenExchanger, bm *metrics.BridgeMetrics, log *logger.Logger) *TokenCache {
	return &TokenCache{
		creds:     creds,
		login:     login,
		exchanger: exchanger,
		bm:        bm,
		log:       log,
		now:       time.Now,
	}
}

// HasCredentials reports whether account credentials are configured, i.e.
// whether a full re-authentication is possible at all.
func (tc *TokenCache) HasCredentials() bool {
	return tc.creds.Email != "" && tc.creds.Password != ""
}

// SetTokens installs a caller-supplied token, bypassing the choreography.
// It participates in the normal expiry check; lacking a refresh token it
// falls back to full re-authentication once expired.
func (tc *TokenCache) SetTokens(accessToken, refreshToken string, expiresIn time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.token = &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       tc.now().Add(expiresIn),
	}
}

// GetAccessToken returns a bearer token that is valid for at least the
// expiry margin, authenticating first if necessary. Safe for concurrent use;
// at most one authentication attempt is in flight at a time and all waiting
// callers receive its result.
func (tc *TokenCache) GetAccessToken(ctx context.Context) (string, error) {
	if tok := tc.validToken(); tok != nil {
		return tok.AccessToken, nil
	}

	v, err, _ := tc.flight.Do("authenticate", func() (interface{}, error) {
		// A caller queued behind a completed attempt reuses its token.
		if tok := tc.validToken(); tok != nil {
			return tok.AccessToken, nil
		}
		return tc.authenticate(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Expiry returns the current token's expiry time, or the zero time when no
// token is cached.
func (tc *TokenCache) Expiry() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	if tc.token == nil {
		return time.Time{}
	}
	return tc.token.Expiry
}

// validToken returns the cached token if it is still outside the expiry
// margin, nil otherwise.
func (tc *TokenCache) validToken() *oauth2.Token {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	if tc.token != nil && tc.now().Before(tc.token.Expiry.Add(-expiryMargin)) {
		return tc.token
	}
	return nil
}

// authenticate acquires a new token record: refresh first when a refresh
// token exists, falling through to the full login choreography when the
// refresh is rejected (revoked refresh tokens are expected, not fatal).
func (tc *TokenCache) authenticate(ctx context.Context) (string, error) {
	if tc.bm != nil {
		tc.bm.IncAuthAttempts()
	}

	tc.mu.RLock()
	var refreshToken string
	if tc.token != nil {
		refreshToken = tc.token.RefreshToken
	}
	tc.mu.RUnlock()

	if refreshToken != "" {
		tok, err := tc.exchanger.Refresh(ctx, refreshToken)
		if err == nil {
			tc.store(tok, refreshToken)
			tc.log.Debug("access token refreshed")
			return tok.AccessToken, nil
		}
		if tc.bm != nil {
			tc.bm.IncTokenRefreshFailures()
		}
		tc.log.Warn("token refresh failed, falling back to full login", "error", err.Error())
	}

	if !tc.HasCredentials() {
		if tc.bm != nil {
			tc.bm.IncAuthFailures()
		}
		return "", &NoCredentialsError{}
	}

	code, verifier, err := tc.login.Run(ctx, tc.creds)
	if err != nil {
		if tc.bm != nil {
			tc.bm.IncAuthFailures()
		}
		return "", err
	}

	tok, err := tc.exchanger.ExchangeCode(ctx, code, verifier)
	if err != nil {
		if tc.bm != nil {
			tc.bm.IncAuthFailures()
		}
		return "", err
	}

	tc.store(tok, "")
	if tc.bm != nil {
		tc.bm.RecordAuthenticationSuccess()
	}
	tc.log.Info("authenticated against identity provider")
	return tok.AccessToken, nil
}

// store atomically replaces the token record. previousRefresh guards against
// a partial refresh response dropping the refresh token.
func (tc *TokenCache) store(tok *oauth2.Token, previousRefresh string) {
	if tok.RefreshToken == "" && previousRefresh != "" {
		clone := *tok
		clone.RefreshToken = previousRefresh
		tok = &clone
	}
	tc.mu.Lock()
	tc.token = tok
	tc.mu.Unlock()
}
