package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeLogin counts choreography runs and optionally delays to widen the
// concurrency window.
type fakeLogin struct {
	mu    sync.Mutex
	runs  int
	delay time.Duration
	err   error
}

func (f *fakeLogin) Run(ctx context.Context, creds Credentials) (string, string, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", "", f.err
	}
	return "code-1", "verifier-1", nil
}

func (f *fakeLogin) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// fakeExchanger answers exchanges and refreshes with canned tokens.
type fakeExchanger struct {
	mu            sync.Mutex
	exchanges     int
	refreshes     int
	lastRefresh   string
	refreshErr    error
	exchangeToken *oauth2.Token
	refreshToken  *oauth2.Token
}

func (f *fakeExchanger) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges++
	tok := *f.exchangeToken
	return &tok, nil
}

func (f *fakeExchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	f.lastRefresh = refreshToken
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	tok := *f.refreshToken
	return &tok, nil
}

func validFor(d time.Duration) *oauth2.Token {
	return &oauth2.Token{AccessToken: "tok1", RefreshToken: "ref1", Expiry: time.Now().Add(d)}
}

func newTestCache(t *testing.T, login *fakeLogin, ex *fakeExchanger) *TokenCache {
	t.Helper()
	creds := Credentials{Email: "user@example.com", Password: "hunter2"}
	return NewTokenCache(creds, login, ex, nil, testLogger(t))
}

// TestGetAccessToken_CacheHit: the second call within the validity window
// performs no network activity
func TestGetAccessToken_CacheHit(t *testing.T) {
	login := &fakeLogin{}
	ex := &fakeExchanger{exchangeToken: validFor(time.Hour)}
	tc := newTestCache(t, login, ex)

	tok1, err := tc.GetAccessToken(context.Background())
	require.NoError(t, err)
	tok2, err := tc.GetAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok1", tok1)
	assert.Equal(t, tok1, tok2)
	assert.Equal(t, 1, login.count())
	assert.Equal(t, 1, ex.exchanges)
}

// TestGetAccessToken_ExpiryMargin: a token expiring in 30s is inside the 60s
// safety margin and triggers re-authentication
func TestGetAccessToken_ExpiryMargin(t *testing.T) {
	login := &fakeLogin{}
	ex := &fakeExchanger{exchangeToken: validFor(time.Hour)}
	tc := newTestCache(t, login, ex)
	tc.SetTokens("stale", "", 30*time.Second)

	tok, err := tc.GetAccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
	assert.Equal(t, 1, login.count())
}

// TestGetAccessToken_OutsideMarginIsValid: 61s of validity is still a hit
func TestGetAccessToken_OutsideMarginIsValid(t *testing.T) {
	login := &fakeLogin{}
	ex := &fakeExchanger{exchangeToken: validFor(time.Hour)}
	tc := newTestCache(t, login, ex)
	tc.SetTokens("manual", "", 90*time.Second)

	tok, err := tc.GetAccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "manual", tok)
	assert.Equal(t, 0, login.count())
}

// TestGetAccessToken_ConcurrentCallersShareOneLogin: concurrent callers with
// no valid token trigger exactly one choreography and all observe its result
func TestGetAccessToken_ConcurrentCallersShareOneLogin(t *testing.T) {
	login := &fakeLogin{delay: 50 * time.Millisecond}
	ex := &fakeExchanger{exchangeToken: validFor(time.Hour)}
	tc := newTestCache(t, login, ex)

	const callers = 10
	results := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = tc.GetAccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, login.count())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok1", results[i])
	}
}

// TestGetAccessToken_RefreshPreferred: an expired token with a refresh token
// refreshes instead of re-running the choreography
func TestGetAccessToken_RefreshPreferred(t *testing.T) {
	login := &fakeLogin{}
	ex := &fakeExchanger{refreshToken: validFor(time.Hour)}
	tc := newTestCache(t, login, ex)
	tc.SetTokens("stale", "ref-old", time.Second)

	tok, err := tc.GetAccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
	assert.Equal(t, "ref-old", ex.lastRefresh)
	assert.Equal(t, 1, ex.refreshes)
	assert.Equal(t, 0, login.count())
}

// TestGetAccessToken_RefreshFailureFallsBackToLogin: a rejected refresh is
// expected and recovered locally, not surfaced
func TestGetAccessToken_RefreshFailureFallsBackToLogin(t *testing.T) {
	login := &fakeLogin{}
	ex := &fakeExchanger{
		refreshErr:    &TokenExchangeError{StatusCode: 400, Body: "invalid_grant"},
		exchangeToken: validFor(time.Hour),
	}
	tc := newTestCache(t, login, ex)
	tc.SetTokens("stale", "ref-revoked", time.Second)

	tok, err := tc.GetAccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
	assert.Equal(t, 1, ex.refreshes)
	assert.Equal(t, 1, login.count())
}

// TestGetAccessToken_PartialRefreshKeepsRefreshToken: a refresh response
// without a refresh token must not discard the old one
func TestGetAccessToken_PartialRefreshKeepsRefreshToken(t *testing.T) {
	login := &fakeLogin{}
	ex := &fakeExchanger{
		refreshToken: &oauth2.Token{AccessToken: "tok1", Expiry: time.Now().Add(time.Second)},
	}
	tc := newTestCache(t, login, ex)
	tc.SetTokens("stale", "ref-old", time.Second)

	// First refresh stores a token with no refresh token of its own and an
	// expiry already inside the margin, so the next call refreshes again.
	_, err := tc.GetAccessToken(context.Background())
	require.NoError(t, err)
	_, err = tc.GetAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, ex.refreshes)
	assert.Equal(t, "ref-old", ex.lastRefresh)
	assert.Equal(t, 0, login.count())
}

// TestGetAccessToken_NoCredentials: an expired manual token without
// configured credentials cannot re-authenticate
func TestGetAccessToken_NoCredentials(t *testing.T) {
	tc := NewTokenCache(Credentials{}, &fakeLogin{}, &fakeExchanger{}, nil, testLogger(t))
	tc.SetTokens("manual", "", time.Second)

	_, err := tc.GetAccessToken(context.Background())

	var noCreds *NoCredentialsError
	assert.ErrorAs(t, err, &noCreds)
}

// TestGetAccessToken_LoginFailurePropagates
func TestGetAccessToken_LoginFailurePropagates(t *testing.T) {
	wantErr := &InvalidCredentialsError{Message: "account locked"}
	login := &fakeLogin{err: wantErr}
	tc := newTestCache(t, login, &fakeExchanger{})

	_, err := tc.GetAccessToken(context.Background())

	var invalid *InvalidCredentialsError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "account locked", invalid.Message)
}

// TestHasCredentials
func TestHasCredentials(t *testing.T) {
	tc := newTestCache(t, &fakeLogin{}, &fakeExchanger{})
	assert.True(t, tc.HasCredentials())

	empty := NewTokenCache(Credentials{}, &fakeLogin{}, &fakeExchanger{}, nil, testLogger(t))
	assert.False(t, empty.HasCredentials())
}

// TestSetTokens_Expiry records now + lifetime
func TestSetTokens_Expiry(t *testing.T) {
	tc := newTestCache(t, &fakeLogin{}, &fakeExchanger{})
	start := time.Now()
	tc.SetTokens("manual", "", time.Hour)

	assert.WithinDuration(t, start.Add(time.Hour), tc.Expiry(), 2*time.Second)
}
