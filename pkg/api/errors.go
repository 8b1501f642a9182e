package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode identifies the kind of an Error. The values are part of the
// bridge wire format.
type ErrorCode string

const (
	CodeWorkflowNotFound             ErrorCode = "WorkflowNotFoundError"
	CodeStepNotFound                 ErrorCode = "StepNotFoundError"
	CodeExecutionStateCorrupt        ErrorCode = "ExecutionStateCorruptError"
	CodeExecutionEventPayloadInvalid ErrorCode = "ExecutionEventPayloadInvalidError"
	CodeWorkflowPayloadInvalid       ErrorCode = "WorkflowPayloadInvalidError"
	CodeStepControlValidation        ErrorCode = "StepControlValidationError"
	CodeStepOutputInvalid            ErrorCode = "StepOutputInvalidError"
	CodeInvalidAction                ErrorCode = "InvalidActionError"
	CodeStepExecutionFailed          ErrorCode = "StepExecutionFailedError"
	CodeProviderExecutionFailed      ErrorCode = "ProviderExecutionFailedError"
	CodeMissingDependency            ErrorCode = "MissingDependencyError"
	CodeSignatureMissing             ErrorCode = "SignatureMissingError"
	CodeSignatureInvalid             ErrorCode = "SignatureInvalidError"
	CodeSignatureExpired             ErrorCode = "SignatureExpiredError"
	CodeSigningKeyNotFound           ErrorCode = "SigningKeyNotFoundError"
	CodeBridgeError                  ErrorCode = "BridgeError"
)

// Error is the error type returned by the engine and the bridge.
type Error struct {
	Code       ErrorCode
	StatusCode int
	Message    string
	Data       any
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so the Err* kind values below
// work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Kind values for errors.Is.
var (
	ErrWorkflowNotFound             = &Error{Code: CodeWorkflowNotFound}
	ErrStepNotFound                 = &Error{Code: CodeStepNotFound}
	ErrExecutionStateCorrupt        = &Error{Code: CodeExecutionStateCorrupt}
	ErrExecutionEventPayloadInvalid = &Error{Code: CodeExecutionEventPayloadInvalid}
	ErrWorkflowPayloadInvalid       = &Error{Code: CodeWorkflowPayloadInvalid}
	ErrStepControlValidation        = &Error{Code: CodeStepControlValidation}
	ErrStepOutputInvalid            = &Error{Code: CodeStepOutputInvalid}
	ErrInvalidAction                = &Error{Code: CodeInvalidAction}
	ErrStepExecutionFailed          = &Error{Code: CodeStepExecutionFailed}
	ErrProviderExecutionFailed      = &Error{Code: CodeProviderExecutionFailed}
	ErrMissingDependency            = &Error{Code: CodeMissingDependency}
	ErrSignatureMissing             = &Error{Code: CodeSignatureMissing}
	ErrSignatureInvalid             = &Error{Code: CodeSignatureInvalid}
	ErrSignatureExpired             = &Error{Code: CodeSignatureExpired}
	ErrSigningKeyNotFound           = &Error{Code: CodeSigningKeyNotFound}
)

// AsError unwraps err to an *Error if there is one in its chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ValidationIssue is a single schema violation.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func NewWorkflowNotFoundError(workflowID string) *Error {
	return &Error{
		Code:       CodeWorkflowNotFound,
		StatusCode: http.StatusNotFound,
		Message:    fmt.Sprintf("workflow not found: %q", workflowID),
		Data:       map[string]any{"workflowId": workflowID},
	}
}

func NewStepNotFoundError(workflowID, stepID string) *Error {
	return &Error{
		Code:       CodeStepNotFound,
		StatusCode: http.StatusNotFound,
		Message:    fmt.Sprintf("step %q not found in workflow %q", stepID, workflowID),
		Data:       map[string]any{"workflowId": workflowID, "stepId": stepID},
	}
}

func NewExecutionStateCorruptError(workflowID, stepID string) *Error {
	return &Error{
		Code:       CodeExecutionStateCorrupt,
		StatusCode: http.StatusBadRequest,
		Message:    fmt.Sprintf("workflow %q has no step %q", workflowID, stepID),
		Data:       map[string]any{"workflowId": workflowID, "stepId": stepID},
	}
}

func NewExecutionEventPayloadInvalidError(workflowID string) *Error {
	return &Error{
		Code:       CodeExecutionEventPayloadInvalid,
		StatusCode: http.StatusBadRequest,
		Message:    fmt.Sprintf("payload is required to execute workflow %q", workflowID),
		Data:       map[string]any{"workflowId": workflowID},
	}
}

func NewWorkflowPayloadInvalidError(workflowID string, issues []ValidationIssue) *Error {
	return &Error{
		Code:       CodeWorkflowPayloadInvalid,
		StatusCode: http.StatusBadRequest,
		Message:    fmt.Sprintf("payload for workflow %q is invalid: %s", workflowID, joinIssues(issues)),
		Data:       issues,
	}
}

func NewStepControlValidationError(stepID string, issues []ValidationIssue) *Error {
	return &Error{
		Code:       CodeStepControlValidation,
		StatusCode: http.StatusBadRequest,
		Message:    fmt.Sprintf("controls for step %q are invalid: %s", stepID, joinIssues(issues)),
		Data:       issues,
	}
}

func NewStepOutputInvalidError(stepID string, issues []ValidationIssue) *Error {
	return &Error{
		Code:       CodeStepOutputInvalid,
		StatusCode: http.StatusBadRequest,
		Message:    fmt.Sprintf("output of step %q is invalid: %s", stepID, joinIssues(issues)),
		Data:       issues,
	}
}

func NewInvalidActionError(action Action) *Error {
	return &Error{
		Code:       CodeInvalidAction,
		StatusCode: http.StatusBadRequest,
		Message:    fmt.Sprintf("invalid action %q, expected %q or %q", action, ActionExecute, ActionPreview),
		Data:       map[string]any{"action": string(action)},
	}
}

func NewStepExecutionFailedError(stepID string, action Action, cause error) *Error {
	return &Error{
		Code:       CodeStepExecutionFailed,
		StatusCode: http.StatusInternalServerError,
		Message:    fmt.Sprintf("failed to %s step %q", action, stepID),
		Data:       map[string]any{"stepId": stepID, "action": string(action)},
		Cause:      cause,
	}
}

func NewProviderExecutionFailedError(providerID string, action Action, cause error) *Error {
	return &Error{
		Code:       CodeProviderExecutionFailed,
		StatusCode: http.StatusInternalServerError,
		Message:    fmt.Sprintf("failed to %s provider %q", action, providerID),
		Data:       map[string]any{"providerId": providerID, "action": string(action)},
		Cause:      cause,
	}
}

// NewMissingDependencyError reports every missing module at once.
func NewMissingDependencyError(usageReason string, names []string) *Error {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return &Error{
		Code:       CodeMissingDependency,
		StatusCode: http.StatusInternalServerError,
		Message: fmt.Sprintf("%s requires the following dependencies to be registered: %s",
			usageReason, strings.Join(quoted, ", ")),
		Data: map[string]any{"dependencies": names},
	}
}

func NewSignatureMissingError() *Error {
	return &Error{
		Code:       CodeSignatureMissing,
		StatusCode: http.StatusUnauthorized,
		Message:    "signature header is missing",
	}
}

func NewSignatureInvalidError() *Error {
	return &Error{
		Code:       CodeSignatureInvalid,
		StatusCode: http.StatusUnauthorized,
		Message:    "signature does not match the request",
	}
}

func NewSignatureExpiredError() *Error {
	return &Error{
		Code:       CodeSignatureExpired,
		StatusCode: http.StatusUnauthorized,
		Message:    "signature has expired",
	}
}

func NewSigningKeyNotFoundError() *Error {
	return &Error{
		Code:       CodeSigningKeyNotFound,
		StatusCode: http.StatusUnauthorized,
		Message:    "signing key is not configured",
	}
}

func joinIssues(issues []ValidationIssue) string {
	if len(issues) == 0 {
		return "unknown validation error"
	}
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		if is.Path == "" {
			parts = append(parts, is.Message)
			continue
		}
		parts = append(parts, is.Path+": "+is.Message)
	}
	return strings.Join(parts, "; ")
}
