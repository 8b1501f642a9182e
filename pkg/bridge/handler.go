package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/petrijr/herald/pkg/api"
)

// Query parameters of the bridge protocol.
const (
	ParamAction     = "action"
	ParamWorkflowID = "workflowId"
	ParamStepID     = "stepId"
)

// ErrorResponse is the body of every failed bridge response.
type ErrorResponse struct {
	Code    api.ErrorCode `json:"code"`
	Message string        `json:"message"`
	Data    any           `json:"data,omitempty"`
}

// eventBody is the POST body of execute and preview requests.
type eventBody struct {
	Payload    map[string]any `json:"payload"`
	Subscriber map[string]any `json:"subscriber"`
	State      []api.State    `json:"state"`
	Controls   map[string]any `json:"controls"`
}

// Handler serves an api.Client over HTTP.
type Handler struct {
	client     api.Client
	secretKey  string
	strictAuth bool
	logger     *slog.Logger
	now        func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSecretKey sets the key request signatures are verified with.
func WithSecretKey(key string) HandlerOption {
	return func(h *Handler) { h.secretKey = key }
}

// WithStrictAuthentication makes the handler reject requests without a
// valid signature. Health checks are always served.
func WithStrictAuthentication(strict bool) HandlerOption {
	return func(h *Handler) { h.strictAuth = strict }
}

// WithLogger sets the logger failed requests are reported to.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates a Handler for client.
func NewHandler(client api.Client, opts ...HandlerOption) *Handler {
	if client == nil {
		panic("bridge: client must not be nil")
	}
	h := &Handler{
		client: client,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register mounts the handler on path.
func (h *Handler) Register(e *echo.Echo, path string) {
	e.GET(path, h.handleGet)
	e.POST(path, h.handlePost)
}

func (h *Handler) handleGet(c echo.Context) error {
	action := api.Action(c.QueryParam(ParamAction))
	if action == api.ActionHealthCheck {
		return c.JSON(http.StatusOK, h.client.HealthCheck())
	}
	if err := h.authenticate(c, nil); err != nil {
		return h.fail(c, err)
	}

	switch action {
	case api.ActionDiscover:
		return c.JSON(http.StatusOK, h.client.Discover())
	case api.ActionCode:
		res, err := h.client.GetCode(c.QueryParam(ParamWorkflowID), c.QueryParam(ParamStepID))
		if err != nil {
			return h.fail(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
	return h.fail(c, api.NewInvalidActionError(action))
}

func (h *Handler) handlePost(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return h.fail(c, &api.Error{
			Code:       api.CodeBridgeError,
			StatusCode: http.StatusBadRequest,
			Message:    "read request body",
			Cause:      err,
		})
	}
	if err := h.authenticate(c, body); err != nil {
		return h.fail(c, err)
	}

	action := api.Action(c.QueryParam(ParamAction))
	if action != api.ActionExecute && action != api.ActionPreview {
		return h.fail(c, api.NewInvalidActionError(action))
	}

	var in eventBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			return h.fail(c, &api.Error{
				Code:       api.CodeBridgeError,
				StatusCode: http.StatusBadRequest,
				Message:    "request body is not valid JSON",
				Cause:      err,
			})
		}
	}

	ev := &api.Event{
		Action:     action,
		WorkflowID: c.QueryParam(ParamWorkflowID),
		StepID:     c.QueryParam(ParamStepID),
		Payload:    in.Payload,
		Subscriber: in.Subscriber,
		State:      in.State,
		Controls:   in.Controls,
	}
	out, err := h.client.ExecuteWorkflow(c.Request().Context(), ev)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) authenticate(c echo.Context, body []byte) error {
	if !h.strictAuth {
		return nil
	}
	return Verify(h.secretKey, c.Request().Header.Get(SignatureHeader), body, h.now())
}

func (h *Handler) fail(c echo.Context, err error) error {
	resp, status := errorResponse(err)
	h.logger.Warn("bridge_request_failed",
		slog.String("action", c.QueryParam(ParamAction)),
		slog.String("workflow", c.QueryParam(ParamWorkflowID)),
		slog.String("step", c.QueryParam(ParamStepID)),
		slog.String("code", string(resp.Code)),
		slog.Any("error", err),
	)
	return c.JSON(status, resp)
}

func errorResponse(err error) (ErrorResponse, int) {
	if apiErr, ok := api.AsError(err); ok {
		status := apiErr.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return ErrorResponse{Code: apiErr.Code, Message: apiErr.Error(), Data: apiErr.Data}, status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return ErrorResponse{Code: api.CodeBridgeError, Message: fmt.Sprint(he.Message)}, he.Code
	}
	return ErrorResponse{Code: api.CodeBridgeError, Message: err.Error()}, http.StatusInternalServerError
}
