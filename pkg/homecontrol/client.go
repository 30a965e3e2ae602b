// Package homecontrol is the REST client for the Legrand Home + Control
// device API. Every request carries the fixed subscription key, a bearer
// token from the auth token cache, and the vendor mobile-app user agent.
package homecontrol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"homecontrol-bridge/pkg/auth"
	"homecontrol-bridge/pkg/logger"
)

const (
	// DefaultBaseURL is the production Home + Control API gateway.
	DefaultBaseURL = "https://api.developer.legrand.com/hc/api/v1.0"

	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	subscriptionKey       = "b5b60c7a5cd14a63988c7ad71baf0a9c"

	// The gateway rejects unknown clients; impersonate the vendor app.
	userAgent = "HomeControl/2.19.1 (iOS; 15.4.1)"
)

// Plant is a home as the remote API models it.
type Plant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

// Module is a controllable device inside a plant.
type Module struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Device   string `json:"device"`
	HwType   string `json:"hw_type"`
	Reachable bool  `json:"reachable"`
}

// Status is the observed state of one module.
type Status struct {
	On         bool
	Brightness *int
}

// TokenProvider supplies a bearer token for outbound requests.
type TokenProvider interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// API defines the Home + Control REST surface the bridge uses.
// This interface allows for dependency injection and testing with mocks.
type API interface {
	// Plants lists the homes visible to the account
	Plants(ctx context.Context) ([]Plant, error)

	// Modules lists the devices registered in a plant
	Modules(ctx context.Context, plantID string) ([]Module, error)

	// SetState switches a module on or off, optionally with a dimmer level
	SetState(ctx context.Context, moduleID string, on bool, level *int) error

	// GetState reads the current state of a module
	GetState(ctx context.Context, moduleID string) (Status, error)
}

// APIError is a non-2xx response from the device API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("home control API returned status %d: %s", e.StatusCode, e.Body)
}

// IsCredentialError reports whether an error means the account itself is
// unusable (rejected credentials, revoked token, nothing to authenticate
// with). Such failures must stop background retries rather than hammer the
// provider.
func IsCredentialError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	var invalid *auth.InvalidCredentialsError
	if errors.As(err, &invalid) {
		return true
	}
	var noCreds *auth.NoCredentialsError
	return errors.As(err, &noCreds)
}

// Client is the concrete API implementation.
type Client struct {
	baseURL string
	tokens  TokenProvider
	client  *http.Client
	log     *logger.Logger
}

// NewClient creates a device API client. baseURL is overridable for tests;
// pass DefaultBaseURL in production.
func NewClient(baseURL string, tokens TokenProvider, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Plants implements API.Plants
func (c *Client) Plants(ctx context.Context) ([]Plant, error) {
	var out struct {
		Plants []Plant `json:"plants"`
	}
	if err := c.do(ctx, "GET", "/plants", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list plants: %w", err)
	}
	return out.Plants, nil
}

// Modules implements API.Modules
func (c *Client) Modules(ctx context.Context, plantID string) ([]Module, error) {
	var out struct {
		Modules []Module `json:"modules"`
	}
	if err := c.do(ctx, "GET", "/plants/"+plantID+"/modules", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list modules for plant %s: %w", plantID, err)
	}
	return out.Modules, nil
}

// setStateCommand is the wire shape of a setState command.
type setStateCommand struct {
	State         string `json:"state"`
	Level         *int   `json:"level,omitempty"`
	CorrelationID string `json:"correlationID"`
}

// SetState implements API.SetState
func (c *Client) SetState(ctx context.Context, moduleID string, on bool, level *int) error {
	cmd := setStateCommand{
		State:         "off",
		Level:         level,
		CorrelationID: uuid.NewString(),
	}
	if on {
		cmd.State = "on"
	}

	c.log.Debug("sending setState command", "module_id", moduleID, "state", cmd.State, "correlation_id", cmd.CorrelationID)
	if err := c.do(ctx, "POST", "/modules/"+moduleID+"/commands/setState", cmd, nil); err != nil {
		return fmt.Errorf("failed to set state of module %s: %w", moduleID, err)
	}
	return nil
}

// getStateResponse is the wire shape of a getState reply.
type getStateResponse struct {
	Status  string `json:"status"`
	Payload struct {
		State string `json:"state"`
		Level *int   `json:"level"`
	} `json:"payload"`
}

// GetState implements API.GetState
func (c *Client) GetState(ctx context.Context, moduleID string) (Status, error) {
	cmd := struct {
		CorrelationID string `json:"correlationID"`
	}{CorrelationID: uuid.NewString()}

	var out getStateResponse
	if err := c.do(ctx, "POST", "/modules/"+moduleID+"/commands/getState", cmd, &out); err != nil {
		return Status{}, fmt.Errorf("failed to get state of module %s: %w", moduleID, err)
	}

	return Status{
		On:         out.Payload.State == "on",
		Brightness: out.Payload.Level,
	}, nil
}

// do performs one authenticated exchange against the API gateway.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(subscriptionKeyHeader, subscriptionKey)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unexpected response body: %w", err)
		}
	}
	return nil
}
