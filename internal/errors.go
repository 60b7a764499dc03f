package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidReason    ErrorCode = "INVALID_REASON"
	ErrCodeInvalidDate      ErrorCode = "INVALID_DATE"

	ErrCodeNotCurrentStep        ErrorCode = "NOT_CURRENT_STEP"
	ErrCodeAlreadyDecided        ErrorCode = "ALREADY_DECIDED"
	ErrCodeSelfApprovalForbidden ErrorCode = "SELF_APPROVAL_FORBIDDEN"
	ErrCodeChainNotFound         ErrorCode = "CHAIN_NOT_FOUND"

	ErrCodeFindingNotOpen           ErrorCode = "FINDING_NOT_OPEN"
	ErrCodeIncompleteNonCompliance  ErrorCode = "INCOMPLETE_NONCOMPLIANCE_DATA"
	ErrCodePlanNotFound             ErrorCode = "PLAN_NOT_FOUND"
	ErrCodeFindingNotFound          ErrorCode = "FINDING_NOT_FOUND"
	ErrCodeInvalidPlanTransition    ErrorCode = "INVALID_PLAN_TRANSITION"
	ErrCodeRectificationNotPending  ErrorCode = "RECTIFICATION_NOT_PENDING"
	ErrCodeVerifierEqualsAssignee   ErrorCode = "VERIFIER_EQUALS_ASSIGNEE"
	ErrCodeDocumentNotFound         ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrCodeInvalidDocumentStatus    ErrorCode = "INVALID_DOCUMENT_STATUS"
	ErrCodeNoMatchingBranch         ErrorCode = "NO_MATCHING_BRANCH"
	ErrCodeConcurrentModification   ErrorCode = "CONCURRENT_MODIFICATION"
	ErrCodePermissionDenied         ErrorCode = "PERMISSION_DENIED"
	ErrCodeGrantNotFound            ErrorCode = "GRANT_NOT_FOUND"
	ErrCodeGrantAlreadyRevoked      ErrorCode = "GRANT_ALREADY_REVOKED"
	ErrCodePrincipalNotFound        ErrorCode = "PRINCIPAL_NOT_FOUND"
	ErrCodeInvalidWorkflowGraph     ErrorCode = "INVALID_WORKFLOW_GRAPH"
	ErrCodeWorkflowInstanceFinished ErrorCode = "WORKFLOW_INSTANCE_FINISHED"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeUserLocked         ErrorCode = "USER_LOCKED"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

var (
	ErrNotCurrentStep        = NewValidationError("decider is not the approver of the current step", ErrCodeNotCurrentStep)
	ErrAlreadyDecided        = NewConflictError("approval chain is no longer pending", ErrCodeAlreadyDecided)
	ErrSelfApprovalForbidden = NewForbiddenError("record creator may not decide their own approval", ErrCodeSelfApprovalForbidden)
	ErrChainNotFound         = NewNotFoundError("approval chain not found", ErrCodeChainNotFound)

	ErrFindingNotOpen          = NewValidationError("finding does not accept a rectification in its current status", ErrCodeFindingNotOpen)
	ErrIncompleteNonCompliance = NewValidationError("non-compliant finding requires issue type, description, department and assignee", ErrCodeIncompleteNonCompliance)
	ErrPlanNotFound            = NewNotFoundError("audit plan not found", ErrCodePlanNotFound)
	ErrFindingNotFound         = NewNotFoundError("audit finding not found", ErrCodeFindingNotFound)
	ErrInvalidPlanTransition   = NewConflictError("audit plan cannot transition from its current status", ErrCodeInvalidPlanTransition)
	ErrRectificationNotPending = NewValidationError("finding has no rectification awaiting verification", ErrCodeRectificationNotPending)

	ErrDocumentNotFound      = NewNotFoundError("document not found", ErrCodeDocumentNotFound)
	ErrInvalidDocumentStatus = NewValidationError("document status does not allow this operation", ErrCodeInvalidDocumentStatus)

	ErrNoMatchingBranch       = NewValidationError("no matching branch at condition node", ErrCodeNoMatchingBranch)
	ErrConcurrentModification = NewConflictError("state changed concurrently, re-read and retry", ErrCodeConcurrentModification)

	ErrGrantNotFound       = NewNotFoundError("permission grant not found", ErrCodeGrantNotFound)
	ErrGrantAlreadyRevoked = NewConflictError("permission grant already revoked", ErrCodeGrantAlreadyRevoked)
	ErrPrincipalNotFound   = NewNotFoundError("principal not found", ErrCodePrincipalNotFound)

	ErrInvalidCredentials = NewUnauthorizedError("Invalid email or password", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewForbiddenError("User account is inactive", ErrCodeUserInactive)
	ErrUserLocked         = NewForbiddenError("User account is locked", ErrCodeUserLocked)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
)

// NewPermissionDeniedError carries the engine's deny reason to the caller.
func NewPermissionDeniedError(reason string) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       ErrCodePermissionDenied,
		Message:    fmt.Sprintf("permission denied: %s", reason),
		StatusCode: http.StatusForbidden,
	}
}

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
