package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"homecontrol-bridge/pkg/logger"
)

// Fixed identity-provider surface. The tenant, policy and client id never
// vary; the URLs are overridable only so tests can point at fixtures.
const (
	ClientID    = "6ef41965-7e3f-4e41-a173-9c9e42a1e4a2"
	RedirectURI = "https://partners-login.eliotbylegrand.com/redirect"
	Scope       = "openid offline_access"

	loginBase  = "https://partners-login.eliotbylegrand.com"
	tenantPath = "eliotbylegrand.onmicrosoft.com"
	policyName = "B2C_1A_signup_signin"
)

// Endpoints describes the identity provider's HTTP surface for one policy.
type Endpoints struct {
	Authorize    string
	SelfAsserted string
	Confirmed    string
	Token        string
}

// DefaultEndpoints returns the production Home + Control login endpoints.
func DefaultEndpoints() Endpoints {
	base := loginBase + "/" + tenantPath
	return Endpoints{
		Authorize:    base + "/oauth2/v2.0/authorize",
		SelfAsserted: base + "/" + policyName + "/SelfAsserted",
		Confirmed:    base + "/" + policyName + "/api/CombinedSigninAndSignup/confirmed",
		Token:        base + "/oauth2/v2.0/token",
	}
}

// Credentials are the account email and password used for interactive login.
// They are held for the process lifetime and never persisted.
type Credentials struct {
	Email    string
	Password string
}

// The choreography is a strict linear state machine. Each step returns a
// dedicated state struct carrying exactly what that step established, and
// each step consumes its predecessor's struct. There is deliberately no way
// to resume a failed attempt: a failure at any step discards the attempt and
// the next attempt restarts from a fresh PKCE pair.

// authorized is the outcome of the authorize step: the anti-forgery token,
// the transaction id threading this attempt through the provider's flow,
// and the initial session cookies.
type authorized struct {
	pkce    PKCEPair
	csrf    string
	transID string
	jar     *cookieJar
}

// credentialed is the outcome of the credential submission step: the same
// session, with whatever cookies the provider added on acceptance.
type credentialed struct {
	authorized
}

// confirmed is the terminal state: a single-use authorization code plus the
// verifier that must accompany it to the token endpoint.
type confirmed struct {
	code     string
	verifier string
}

// Choreography drives the simulated interactive login against the identity
// provider and yields an authorization code.
type Choreography struct {
	endpoints Endpoints
	transport *transport
	log       *logger.Logger
}

// NewChoreography creates a login choreography against the given endpoints.
func NewChoreography(endpoints Endpoints, timeout time.Duration, log *logger.Logger) *Choreography {
	return &Choreography{
		endpoints: endpoints,
		transport: newTransport(timeout),
		log:       log,
	}
}

// Run executes one full login attempt and returns the authorization code
// together with the PKCE verifier it was bound to. Any failure is terminal
// for the attempt; callers retry by calling Run again.
func (c *Choreography) Run(ctx context.Context, creds Credentials) (code, verifier string, err error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return "", "", err
	}
	state, err := randomState()
	if err != nil {
		return "", "", err
	}

	a, err := c.authorize(ctx, pkce, state)
	if err != nil {
		return "", "", err
	}
	c.log.Debug("authorize step complete", "trans_id", a.transID)

	cr, err := c.submitCredentials(ctx, a, creds)
	if err != nil {
		return "", "", err
	}
	c.log.Debug("credentials accepted")

	cf, err := c.confirm(ctx, cr)
	if err != nil {
		return "", "", err
	}
	c.log.Debug("authorization code obtained")

	return cf.code, cf.verifier, nil
}

// authorize performs the anonymous GET against the authorize endpoint and
// scrapes the CSRF token and transaction id from the returned login page.
// prompt=login forces the credential form even when a stale provider session
// cookie exists; a silently-succeeded SSO session would skip the steps that
// establish the CSRF token.
func (c *Choreography) authorize(ctx context.Context, pkce PKCEPair, state string) (*authorized, error) {
	q := url.Values{}
	q.Set("client_id", ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", RedirectURI)
	q.Set("scope", Scope)
	q.Set("state", state)
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("prompt", "login")
	q.Set("p", policyName)

	tx, err := c.transport.do(ctx, "GET", c.endpoints.Authorize+"?"+q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}

	jar := newCookieJar()
	jar.merge(tx.setCookies)

	csrf := runExtractors(csrfExtractors, tx, jar)
	if csrf == "" {
		return nil, &AuthConfigError{Step: "authorize", Missing: "csrf token"}
	}
	transID := runExtractors(transIDExtractors, tx, jar)
	if transID == "" {
		return nil, &AuthConfigError{Step: "authorize", Missing: "transaction id"}
	}

	return &authorized{pkce: pkce, csrf: csrf, transID: transID, jar: jar}, nil
}

// selfAssertedResponse is the JSON shape of the credential submission
// response. A body with status other than "200", or any message at all, is
// treated as rejection. This mirrors the provider's observed behavior and is
// a heuristic, not a documented contract.
type selfAssertedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// submitCredentials POSTs email and password to the self-asserted endpoint
// within the session established by authorize.
func (c *Choreography) submitCredentials(ctx context.Context, a *authorized, creds Credentials) (*credentialed, error) {
	q := url.Values{}
	q.Set("tx", a.transID)
	q.Set("p", policyName)

	form := url.Values{}
	form.Set("request_type", "RESPONSE")
	form.Set("email", creds.Email)
	form.Set("password", creds.Password)

	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"X-CSRF-TOKEN": a.csrf,
		"Cookie":       a.jar.serialize(),
	}

	tx, err := c.transport.do(ctx, "POST", c.endpoints.SelfAsserted+"?"+q.Encode(), headers, form.Encode())
	if err != nil {
		return nil, err
	}

	if tx.statusCode != 200 {
		return nil, &InvalidCredentialsError{Message: fmt.Sprintf("self-asserted endpoint returned status %d", tx.statusCode)}
	}

	var body selfAssertedResponse
	if err := json.Unmarshal([]byte(tx.body), &body); err == nil {
		if (body.Status != "" && body.Status != "200") || body.Message != "" {
			c.log.Debug("self-asserted rejection", "status", body.Status, "body", tx.body)
			return nil, &InvalidCredentialsError{Message: body.Message}
		}
	}

	a.jar.merge(tx.setCookies)
	return &credentialed{authorized: *a}, nil
}

// confirm performs the confirmation GET and harvests the authorization code
// a browser would have been redirected with.
func (c *Choreography) confirm(ctx context.Context, cr *credentialed) (*confirmed, error) {
	q := url.Values{}
	q.Set("rememberMe", "false")
	q.Set("csrf_token", cr.csrf)
	q.Set("tx", cr.transID)
	q.Set("p", policyName)

	headers := map[string]string{
		"X-CSRF-TOKEN": cr.csrf,
		"Cookie":       cr.jar.serialize(),
	}

	tx, err := c.transport.do(ctx, "GET", c.endpoints.Confirmed+"?"+q.Encode(), headers, "")
	if err != nil {
		return nil, err
	}

	if confirmErrorPattern.MatchString(tx.body) {
		return nil, &LoginConfirmationError{Reason: "confirmation page reported an error"}
	}

	code := runExtractors(codeExtractors, tx, cr.jar)
	if code == "" {
		return nil, &LoginConfirmationError{Reason: "no authorization code in redirect location, body or redirect script"}
	}

	return &confirmed{code: code, verifier: cr.pkce.Verifier}, nil
}
