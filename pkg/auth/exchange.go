package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Exchanger converts authorization codes and refresh tokens into bearer
// token records at the provider's token endpoint.
type Exchanger struct {
	conf   *oauth2.Config
	client *http.Client
}

// NewExchanger creates an exchanger against the given endpoints.
func NewExchanger(endpoints Endpoints, timeout time.Duration) *Exchanger {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Exchanger{
		conf: &oauth2.Config{
			ClientID:    ClientID,
			RedirectURL: RedirectURI,
			Scopes:      []string{Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   endpoints.Authorize,
				TokenURL:  endpoints.Token,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: &http.Client{Timeout: timeout},
	}
}

// ExchangeCode redeems a single-use authorization code, proving possession
// of the PKCE verifier the code was bound to.
func (e *Exchanger) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	tok, err := e.conf.Exchange(e.httpCtx(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, wrapExchangeError(err)
	}
	return tok, nil
}

// Refresh trades a refresh token for a fresh token record. A response that
// omits refresh_token means the token was not rotated; the previous refresh
// token is carried forward rather than discarded.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := e.conf.TokenSource(e.httpCtx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, wrapExchangeError(err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// httpCtx injects the bounded-timeout client into the oauth2 machinery.
func (e *Exchanger) httpCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.client)
}

func wrapExchangeError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		return &TokenExchangeError{StatusCode: status, Body: string(rerr.Body), Err: err}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &NetworkError{URL: uerr.URL, Err: err}
	}
	return &TokenExchangeError{Err: err}
}
