package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/herald/pkg/api"
)

func TestClient_RoundTripThroughHandler(t *testing.T) {
	e := echo.New()
	NewHandler(testClient(t), WithSecretKey("secret"), WithStrictAuthentication(true)).Register(e, bridgePath)
	srv := httptest.NewServer(e)
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL + bridgePath, SecretKey: "secret"})
	ctx := context.Background()

	h, err := c.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	d, err := c.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, d.Workflows, 1)

	code, err := c.Code(ctx, "welcome", "send-email")
	require.NoError(t, err)
	assert.Contains(t, code.Code, "Welcome aboard")

	out, err := c.Execute(ctx, &api.Event{
		WorkflowID: "welcome",
		StepID:     "send-email",
		Payload:    map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada", out.Outputs["subject"])

	_, err = c.Execute(ctx, &api.Event{WorkflowID: "missing", StepID: "x", Payload: map[string]any{}})
	assert.ErrorIs(t, err, api.ErrWorkflowNotFound)
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClient_RetriesServerErrorsAndReportsResponses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"code":"BridgeError","message":"upstream down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"outputs":{"body":"ok"},"providers":{},"metadata":{"status":"success","error":false,"duration":1}}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL, RetryMax: 3, RetryWaitMin: time.Millisecond, RetryWaitMax: 2 * time.Millisecond})

	var mu sync.Mutex
	var seen []Response
	ctx := WithResponseHook(context.Background(), func(ctx context.Context, resp Response) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, resp)
	})

	out, err := c.Execute(ctx, &api.Event{WorkflowID: "wf", StepID: "s", Payload: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Outputs["body"])
	assert.Equal(t, int32(3), calls.Load())

	require.Len(t, seen, 3)
	assert.Equal(t, http.StatusBadGateway, seen[0].StatusCode)
	assert.Equal(t, 1, seen[0].Attempt)
	assert.Contains(t, string(seen[0].Body), "upstream down")
	assert.Equal(t, http.StatusOK, seen[2].StatusCode)
	assert.Equal(t, 3, seen[2].Attempt)
}

func TestClient_GivesUpAndReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{URL: srv.URL, RetryMax: 1, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond})
	_, err := c.Execute(context.Background(), &api.Event{WorkflowID: "wf", StepID: "s"})
	apiErr, ok := api.AsError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, api.CodeBridgeError, apiErr.Code)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestLocalTransport(t *testing.T) {
	tr := NewLocalTransport(testClient(t))
	out, err := tr.Execute(context.Background(), &api.Event{
		WorkflowID: "welcome",
		StepID:     "send-email",
		Payload:    map[string]any{"name": "Bo"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Bo", out.Outputs["subject"])
}
