package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is the top-level kind of an AppError. Kinds below group into the
// families the runtime distinguishes: Model, Queue, Session, Tool, Template,
// Validation, Cache, plus the teacher's original generic codes retained for
// the HTTP boundary layer.
type ErrorCode string

const (
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"

	// Model
	CodeModelLoadingFailed ErrorCode = "MODEL_LOADING_FAILED"
	CodeModelNotFound      ErrorCode = "MODEL_NOT_FOUND"
	CodeModelInvalidConfig ErrorCode = "MODEL_INVALID_CONFIG"
	CodeModelInference     ErrorCode = "MODEL_INFERENCE_FAILED"

	// Queue
	CodeQueueFull    ErrorCode = "QUEUE_FULL"
	CodeQueueTimeout ErrorCode = "QUEUE_TIMEOUT"
	CodeQueueWorker  ErrorCode = "QUEUE_WORKER_ERROR"

	// Session
	CodeSessionNotFound      ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitExceeded ErrorCode = "SESSION_LIMIT_EXCEEDED"
	CodeSessionTimeout       ErrorCode = "SESSION_TIMEOUT"
	CodeSessionInvalidState  ErrorCode = "SESSION_INVALID_STATE"

	// Tool (server/protocol)
	CodeToolServerNotFound ErrorCode = "TOOL_SERVER_NOT_FOUND"
	CodeToolCallFailed     ErrorCode = "TOOL_CALL_FAILED"
	CodeToolConnection     ErrorCode = "TOOL_CONNECTION_ERROR"
	CodeToolProtocol       ErrorCode = "TOOL_PROTOCOL_ERROR"

	// Template
	CodeTemplateRenderingFailed ErrorCode = "TEMPLATE_RENDERING_FAILED"
	CodeTemplateToolCallParsing ErrorCode = "TEMPLATE_TOOL_CALL_PARSING"
	CodeTemplateInvalid         ErrorCode = "TEMPLATE_INVALID"

	// Validation
	CodeSecurityViolation  ErrorCode = "SECURITY_VIOLATION"
	CodeParameterBounds    ErrorCode = "PARAMETER_BOUNDS"
	CodeContentValidation  ErrorCode = "CONTENT_VALIDATION"
	CodeSchemaValidation   ErrorCode = "SCHEMA_VALIDATION"

	// Cache
	CodeCache ErrorCode = "CACHE_ERROR"
)

// AppError is the runtime's single error type: a code, a human message, and
// an optional wrapped cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func newErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

func NewInvalidInputError(message string) *AppError { return newError(CodeInvalidInput, message) }
func NewNotFoundError(message string) *AppError     { return newError(CodeNotFound, message) }
func NewAlreadyExistsError(message string) *AppError {
	return newError(CodeAlreadyExists, message)
}
func NewInternalError(message string) *AppError { return newError(CodeInternal, message) }
func NewInternalErrorWithCause(message string, cause error) *AppError {
	return newErrorWithCause(CodeInternal, message, cause)
}

// Model
func NewModelLoadingFailedError(message string, cause error) *AppError {
	return newErrorWithCause(CodeModelLoadingFailed, message, cause)
}
func NewModelNotFoundError(message string) *AppError {
	return newError(CodeModelNotFound, message)
}
func NewModelInvalidConfigError(message string) *AppError {
	return newError(CodeModelInvalidConfig, message)
}
func NewModelInferenceError(message string, cause error) *AppError {
	return newErrorWithCause(CodeModelInference, message, cause)
}

// Queue
func NewQueueFullError(message string) *AppError    { return newError(CodeQueueFull, message) }
func NewQueueTimeoutError(message string) *AppError { return newError(CodeQueueTimeout, message) }
func NewQueueWorkerError(message string, cause error) *AppError {
	return newErrorWithCause(CodeQueueWorker, message, cause)
}

// Session
func NewSessionNotFoundError(message string) *AppError {
	return newError(CodeSessionNotFound, message)
}
func NewSessionLimitExceededError(message string) *AppError {
	return newError(CodeSessionLimitExceeded, message)
}
func NewSessionTimeoutError(message string) *AppError {
	return newError(CodeSessionTimeout, message)
}
func NewSessionInvalidStateError(message string) *AppError {
	return newError(CodeSessionInvalidState, message)
}

// Tool
func NewToolServerNotFoundError(message string) *AppError {
	return newError(CodeToolServerNotFound, message)
}
func NewToolCallFailedError(message string, cause error) *AppError {
	return newErrorWithCause(CodeToolCallFailed, message, cause)
}
func NewToolConnectionError(message string, cause error) *AppError {
	return newErrorWithCause(CodeToolConnection, message, cause)
}
func NewToolProtocolError(message string, cause error) *AppError {
	return newErrorWithCause(CodeToolProtocol, message, cause)
}

// Template
func NewTemplateRenderingFailedError(message string) *AppError {
	return newError(CodeTemplateRenderingFailed, message)
}
func NewTemplateToolCallParsingError(message string, cause error) *AppError {
	return newErrorWithCause(CodeTemplateToolCallParsing, message, cause)
}
func NewTemplateInvalidError(message string) *AppError {
	return newError(CodeTemplateInvalid, message)
}

// Validation
func NewSecurityViolationError(message string) *AppError {
	return newError(CodeSecurityViolation, message)
}
func NewParameterBoundsError(message string) *AppError {
	return newError(CodeParameterBounds, message)
}
func NewContentValidationError(message string) *AppError {
	return newError(CodeContentValidation, message)
}
func NewSchemaValidationError(message string, cause error) *AppError {
	return newErrorWithCause(CodeSchemaValidation, message, cause)
}

// Cache
func NewCacheError(message string, cause error) *AppError {
	return newErrorWithCause(CodeCache, message, cause)
}

func hasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool      { return hasCode(err, CodeNotFound) }
func IsInvalidInput(err error) bool  { return hasCode(err, CodeInvalidInput) }
func IsQueueFull(err error) bool     { return hasCode(err, CodeQueueFull) }
func IsQueueTimeout(err error) bool  { return hasCode(err, CodeQueueTimeout) }
func IsSessionNotFound(err error) bool {
	return hasCode(err, CodeSessionNotFound)
}
func IsSessionLimitExceeded(err error) bool {
	return hasCode(err, CodeSessionLimitExceeded)
}
func IsToolCallFailed(err error) bool {
	return hasCode(err, CodeToolCallFailed)
}
func IsSecurityViolation(err error) bool {
	return hasCode(err, CodeSecurityViolation)
}
