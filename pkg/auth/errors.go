package auth

import "fmt"

// NetworkError wraps a transport-level failure (connection, DNS, TLS).
// It is always surfaced to the caller; retry policy lives with the caller.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthConfigError indicates the login page no longer carries an expected
// marker (CSRF token, transaction id). This usually means the identity
// provider changed its page format rather than that credentials are wrong.
type AuthConfigError struct {
	Step    string
	Missing string
}

func (e *AuthConfigError) Error() string {
	return fmt.Sprintf("login page format error at %s: could not extract %s", e.Step, e.Missing)
}

// InvalidCredentialsError is an explicit rejection by the identity provider.
// Wrong password, unknown account and locked account are not distinguished;
// Message carries whatever the provider returned.
type InvalidCredentialsError struct {
	Message string
}

func (e *InvalidCredentialsError) Error() string {
	if e.Message == "" {
		return "identity provider rejected the credentials"
	}
	return fmt.Sprintf("identity provider rejected the credentials: %s", e.Message)
}

// LoginConfirmationError indicates the confirmation step completed without
// yielding an authorization code through any extraction strategy.
type LoginConfirmationError struct {
	Reason string
}

func (e *LoginConfirmationError) Error() string {
	return fmt.Sprintf("could not obtain authorization code: %s", e.Reason)
}

// TokenExchangeError indicates the token endpoint returned a non-2xx status
// or a body that could not be parsed.
type TokenExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// NoCredentialsError is returned when the cached token has expired, no
// refresh token is available, and no account credentials were configured.
type NoCredentialsError struct{}

func (e *NoCredentialsError) Error() string {
	return "token expired and no account credentials are configured for re-authentication"
}
