package auth

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultRequestTimeout bounds every choreography request. The provider's
// behavior under hanging connections is unspecified, so the bound is
// deliberately generous.
const defaultRequestTimeout = 30 * time.Second

// transaction is the observable outcome of exactly one HTTP exchange.
type transaction struct {
	statusCode int
	body       string
	setCookies []string
	location   string
}

// transport issues single HTTP exchanges for the login choreography.
// Redirects are never followed: the choreography harvests the authorization
// code from the redirect response itself, and a followed redirect would
// consume the single-use code against an unreachable redirect URI.
type transport struct {
	client *http.Client
}

func newTransport(timeout time.Duration) *transport {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &transport{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// do performs one exchange and captures status, body, Set-Cookie values and
// the Location header. Transport failures wrap into *NetworkError and are
// never retried here.
func (t *transport) do(ctx context.Context, method, url string, headers map[string]string, body string) (*transaction, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	// Redirect responses legitimately carry no body.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	return &transaction{
		statusCode: resp.StatusCode,
		body:       string(data),
		setCookies: resp.Header.Values("Set-Cookie"),
		location:   resp.Header.Get("Location"),
	}, nil
}
