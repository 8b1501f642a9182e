package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/herald/internal/engine"
	"github.com/petrijr/herald/pkg/api"
)

const bridgePath = "/api/novu"

func testClient(t *testing.T) api.Client {
	t.Helper()
	c := engine.NewClient()
	err := c.AddWorkflows(api.WorkflowDefinition{
		ID: "welcome",
		Fn: func(ctx context.Context, wf *api.WorkflowContext) error {
			_, err := wf.Step.Email(ctx, "send-email",
				func(ctx context.Context, controls map[string]any) (map[string]any, error) {
					return map[string]any{"subject": "Hi " + controls["name"].(string), "body": "Welcome aboard"}, nil
				},
				api.WithControlSchema(map[string]any{
					"type":       "object",
					"properties": map[string]any{"name": map[string]any{"type": "string", "default": "{{payload.name}}"}},
				}),
			)
			return err
		},
	})
	require.NoError(t, err)
	return c
}

func newTestServer(t *testing.T, opts ...HandlerOption) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewHandler(testClient(t), opts...).Register(e, bridgePath)
	return e
}

func serve(e *echo.Echo, method, query, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, bridgePath+"?"+query, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_HealthCheckAndDiscover(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, http.MethodGet, "action=health-check", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var h api.HealthCheck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.Discovered.Workflows)
	assert.Equal(t, 1, h.Discovered.Steps)

	rec = serve(e, http.MethodGet, "action=discover", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var d api.DiscoverOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	require.Len(t, d.Workflows, 1)
	assert.Equal(t, "welcome", d.Workflows[0].WorkflowID)
	assert.Equal(t, "send-email", d.Workflows[0].Steps[0].StepID)
}

func TestHandler_Execute(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, http.MethodPost, "action=execute&workflowId=welcome&stepId=send-email",
		`{"payload":{"name":"Ada"},"subscriber":{},"state":[],"controls":{}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out api.ExecutionOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Hi Ada", out.Outputs["subject"])
	assert.Equal(t, "success", out.Metadata.Status)
}

func TestHandler_ErrorEnvelope(t *testing.T) {
	e := newTestServer(t)

	cases := []struct {
		name   string
		method string
		query  string
		body   string
		status int
		code   api.ErrorCode
	}{
		{"unknown workflow", http.MethodPost, "action=execute&workflowId=nope&stepId=x", `{"payload":{}}`, http.StatusNotFound, api.CodeWorkflowNotFound},
		{"unknown step", http.MethodPost, "action=execute&workflowId=welcome&stepId=x", `{"payload":{}}`, http.StatusBadRequest, api.CodeExecutionStateCorrupt},
		{"missing payload", http.MethodPost, "action=execute&workflowId=welcome&stepId=send-email", `{}`, http.StatusBadRequest, api.CodeExecutionEventPayloadInvalid},
		{"bad action", http.MethodPost, "action=nope&workflowId=welcome&stepId=send-email", `{}`, http.StatusBadRequest, api.CodeInvalidAction},
		{"bad json", http.MethodPost, "action=execute&workflowId=welcome&stepId=send-email", `{`, http.StatusBadRequest, api.CodeBridgeError},
		{"unknown code step", http.MethodGet, "action=code&workflowId=welcome&stepId=x", "", http.StatusNotFound, api.CodeStepNotFound},
		{"bad get action", http.MethodGet, "action=execute", "", http.StatusBadRequest, api.CodeInvalidAction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(e, tc.method, tc.query, tc.body, nil)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			var env ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tc.code, env.Code)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestHandler_StrictAuthentication(t *testing.T) {
	e := newTestServer(t, WithSecretKey("secret"), WithStrictAuthentication(true))
	body := `{"payload":{"name":"Ada"}}`
	query := "action=execute&workflowId=welcome&stepId=send-email"

	rec := serve(e, http.MethodPost, query, body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := http.Header{SignatureHeader: {Sign("wrong", time.Now(), []byte(body))}}
	rec = serve(e, http.MethodPost, query, body, bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	good := http.Header{SignatureHeader: {Sign("secret", time.Now(), []byte(body))}}
	rec = serve(e, http.MethodPost, query, body, good)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(e, http.MethodGet, "action=health-check", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(e, http.MethodGet, "action=discover", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
