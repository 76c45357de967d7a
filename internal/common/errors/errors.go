package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeParseError       ErrorCode = "PARSE_ERROR"

	ErrCodeUniversityNotFound ErrorCode = "UNIVERSITY_NOT_FOUND"
	ErrCodeProfileNotFound    ErrorCode = "PROFILE_NOT_FOUND"

	ErrCodeShortlistConflict     ErrorCode = "SHORTLIST_CONFLICT"
	ErrCodeShortlistUpdateFailed ErrorCode = "SHORTLIST_UPDATE_FAILED"
	ErrCodeTaskSyncFailed        ErrorCode = "TASK_SYNC_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeCatalogQueryFailed       ErrorCode = "CATALOG_QUERY_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"

	ErrCodeDirectoryUnavailable ErrorCode = "DIRECTORY_UNAVAILABLE"
	ErrCodeSemanticUnavailable  ErrorCode = "SEMANTIC_UNAVAILABLE"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Input validation failed", details, false, nil)
}

func NewParseError(err error) *StandardError {
	return newError(ErrCodeParseError, "Job variables could not be parsed", err.Error(), false, err)
}

func NewUniversityNotFoundError(universityID string) *StandardError {
	return newError(ErrCodeUniversityNotFound, "University not found",
		fmt.Sprintf("universityId: %s", universityID), false, nil)
}

func NewProfileNotFoundError(userID string) *StandardError {
	return newError(ErrCodeProfileNotFound, "User profile not found",
		fmt.Sprintf("userId: %s", userID), false, nil)
}

func NewShortlistConflictError(userID, universityID string, err error) *StandardError {
	return newError(ErrCodeShortlistConflict, "Shortlist row already exists",
		fmt.Sprintf("userId: %s, universityId: %s", userID, universityID), false, err)
}

func NewShortlistUpdateFailedError(err error) *StandardError {
	return newError(ErrCodeShortlistUpdateFailed, "Shortlist update failed", err.Error(), true, err)
}

func NewTaskSyncFailedError(stage int, err error) *StandardError {
	return newError(ErrCodeTaskSyncFailed, "Stage task synchronization failed",
		fmt.Sprintf("stage: %d, error: %s", stage, err.Error()), true, err)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true, err)
}

func NewCatalogQueryFailedError(op string, err error) *StandardError {
	return newError(ErrCodeCatalogQueryFailed, "Catalog query failed",
		fmt.Sprintf("operation: %s, error: %s", op, err.Error()), true, err)
}

func NewQueryTimeoutError(op string) *StandardError {
	return newError(ErrCodeQueryTimeout, "Query timeout", fmt.Sprintf("operation: %s", op), true, nil)
}

func NewDirectoryUnavailableError(err error) *StandardError {
	return newError(ErrCodeDirectoryUnavailable, "University directory unavailable", err.Error(), false, err)
}

func NewSemanticUnavailableError(err error) *StandardError {
	return newError(ErrCodeSemanticUnavailable, "Semantic retrieval unavailable", err.Error(), false, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// As extracts the StandardError from an error chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeCatalogQueryFailed,
		ErrCodeShortlistUpdateFailed,
		ErrCodeTaskSyncFailed:
		return 3
	case ErrCodeQueryTimeout:
		return 2
	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "PARSE"):
		return "VALIDATION"
	case strings.HasSuffix(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	case strings.Contains(codeStr, "SHORTLIST") || strings.Contains(codeStr, "TASK"):
		return "SHORTLIST"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "DIRECTORY") || strings.Contains(codeStr, "SEMANTIC"):
		return "UPSTREAM"
	default:
		return "OTHER"
	}
}
