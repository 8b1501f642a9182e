package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/petrijr/herald/pkg/api"
)

// Transport sends an event to a bridge and returns its output.
type Transport interface {
	Execute(ctx context.Context, ev *api.Event) (*api.ExecutionOutput, error)
}

// Response describes one HTTP response received from a bridge, including
// the ones that are retried.
type Response struct {
	URL        string
	StatusCode int
	Status     string
	Attempt    int
	Body       []byte
}

// ResponseHook is called for every response a request receives.
type ResponseHook func(ctx context.Context, resp Response)

type hookKey struct{}

type hookState struct {
	fn       ResponseHook
	attempts atomic.Int32
}

// WithResponseHook returns a context whose bridge requests report each
// response to fn. Attempts are counted per returned context.
func WithResponseHook(ctx context.Context, fn ResponseHook) context.Context {
	return context.WithValue(ctx, hookKey{}, &hookState{fn: fn})
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// URL is the bridge endpoint, e.g. http://localhost:4000/api/novu.
	URL       string
	SecretKey string

	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Timeout bounds a single attempt. Zero means no timeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Client calls a remote bridge.
type Client struct {
	url       string
	secretKey string
	http      *retryablehttp.Client
	now       func() time.Time
}

var _ Transport = (*Client)(nil)

// NewClient creates a bridge client.
func NewClient(cfg ClientConfig) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	rc.Logger = nil
	if cfg.Logger != nil {
		rc.Logger = cfg.Logger
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.ResponseLogHook = reportResponse

	return &Client{
		url:       cfg.URL,
		secretKey: cfg.SecretKey,
		http:      rc,
		now:       time.Now,
	}
}

func reportResponse(_ retryablehttp.Logger, resp *http.Response) {
	if resp == nil || resp.Request == nil {
		return
	}
	st, ok := resp.Request.Context().Value(hookKey{}).(*hookState)
	if !ok || st.fn == nil {
		return
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		body = nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	st.fn(resp.Request.Context(), Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Attempt:    int(st.attempts.Add(1)),
		Body:       body,
	})
}

// Execute posts ev to the bridge. The action defaults to execute.
func (c *Client) Execute(ctx context.Context, ev *api.Event) (*api.ExecutionOutput, error) {
	action := ev.Action
	if action == "" {
		action = api.ActionExecute
	}
	body, err := json.Marshal(eventBody{
		Payload:    ev.Payload,
		Subscriber: ev.Subscriber,
		State:      ev.State,
		Controls:   ev.Controls,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: encode event: %w", err)
	}

	var out api.ExecutionOutput
	q := url.Values{
		ParamAction:     {string(action)},
		ParamWorkflowID: {ev.WorkflowID},
		ParamStepID:     {ev.StepID},
	}
	if err := c.do(ctx, http.MethodPost, q, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Discover fetches the bridge's discovery document.
func (c *Client) Discover(ctx context.Context) (*api.DiscoverOutput, error) {
	var out api.DiscoverOutput
	if err := c.do(ctx, http.MethodGet, url.Values{ParamAction: {string(api.ActionDiscover)}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HealthCheck fetches the bridge's health check.
func (c *Client) HealthCheck(ctx context.Context) (*api.HealthCheck, error) {
	var out api.HealthCheck
	if err := c.do(ctx, http.MethodGet, url.Values{ParamAction: {string(api.ActionHealthCheck)}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Code fetches the source of a workflow or step.
func (c *Client) Code(ctx context.Context, workflowID, stepID string) (*api.CodeResult, error) {
	q := url.Values{
		ParamAction:     {string(api.ActionCode)},
		ParamWorkflowID: {workflowID},
	}
	if stepID != "" {
		q.Set(ParamStepID, stepID)
	}
	var out api.CodeResult
	if err := c.do(ctx, http.MethodGet, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method string, q url.Values, body []byte, out any) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("bridge: parse url: %w", err)
	}
	merged := u.Query()
	for k, vs := range q {
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()

	var raw any
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), raw)
	if err != nil {
		return fmt.Errorf("bridge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secretKey != "" {
		req.Header.Set(SignatureHeader, Sign(c.secretKey, c.now(), body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return &api.Error{
			Code:       api.CodeBridgeError,
			StatusCode: http.StatusBadGateway,
			Message:    fmt.Sprintf("bridge request to %s failed", u.Redacted()),
			Cause:      err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bridge: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &api.Error{
			Code:       api.CodeBridgeError,
			StatusCode: http.StatusBadGateway,
			Message:    "unexpected body received from bridge",
			Data:       map[string]any{"raw": string(data)},
			Cause:      err,
		}
	}
	return nil
}

// decodeError turns an error envelope back into an *api.Error.
func decodeError(status int, body []byte) error {
	var env ErrorResponse
	if err := json.Unmarshal(body, &env); err != nil || env.Code == "" {
		return &api.Error{
			Code:       api.CodeBridgeError,
			StatusCode: status,
			Message:    fmt.Sprintf("unexpected body received from bridge: %s", body),
		}
	}
	return &api.Error{
		Code:       env.Code,
		StatusCode: status,
		Message:    env.Message,
		Data:       env.Data,
	}
}
