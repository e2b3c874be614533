package provider

import (
	"context"
	"errors"
	"fmt"

	"dialtrack/internal/config"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrRejected means the provider answered but declined to place the call.
	ErrRejected = errors.New("provider: call rejected")
	// ErrTransport covers timeouts and connection failures talking to the
	// provider. Both rejection and transport failure settle the attempt as
	// Failed; they differ only in message for observability.
	ErrTransport = errors.New("provider: transport failure")
)

// CallPlacer is the outbound boundary used by the call initiator.
// No provider HTTP details may leak outside this package.
type CallPlacer interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
}

type PlaceCallRequest struct {
	ContactID string `json:"contact_id"`
	Phone     string `json:"phone"`
	Name      string `json:"name,omitempty"`
}

type PlaceCallResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	// CallRef is the provider's opaque id for the placed call; webhook
	// reports and status queries key off it.
	CallRef string `json:"call_id"`
}

// Client talks to the telephony provider's REST API.
type Client struct {
	http *resty.Client
}

func NewClient(cfg config.ProviderConfig) *Client {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return &Client{http: c}
}

// PlaceCall asks the provider to dial the contact.
//
// Acceptance is a 2xx response with success=true. An explicit success=false
// maps to ErrRejected; any transport-level failure maps to ErrTransport.
func (c *Client) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	var out PlaceCallResult

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/calls")
	if err != nil {
		return PlaceCallResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.IsError() {
		return PlaceCallResult{}, fmt.Errorf("%w: provider returned %s", ErrTransport, resp.Status())
	}
	if !out.Success {
		if out.Message == "" {
			out.Message = "provider declined the call"
		}
		return out, fmt.Errorf("%w: %s", ErrRejected, out.Message)
	}
	return out, nil
}

// FetchReport queries the provider's status API for a placed call. Used to
// backfill a missing duration when the webhook report arrived without one.
func (c *Client) FetchReport(ctx context.Context, callRef string) (CallReport, error) {
	var out CallReport

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetPathParam("call_id", callRef).
		Get("/calls/{call_id}")
	if err != nil {
		return CallReport{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode() == 404 {
		return CallReport{}, ErrUnknownCallRef
	}
	if resp.IsError() {
		return CallReport{}, fmt.Errorf("%w: provider returned %s", ErrTransport, resp.Status())
	}
	return out, nil
}
