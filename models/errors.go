package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeTimeout      = "SCRAPE_TIMEOUT"
	ErrCodeScrape       = "SCRAPE_FAILED"
	ErrCodeHistory      = "HISTORY_FAILED"
	ErrCodeInternal     = "INTERNAL_ERROR"

	// Classified store failures, one per FailureReason.
	ErrCodeStoreBlocked     = "STORE_BLOCKED"
	ErrCodeStoreUnreachable = "STORE_UNREACHABLE"
	ErrCodeUnsupportedStore = "UNSUPPORTED_STORE"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeForReason returns the error code used for a classified store failure.
func CodeForReason(reason FailureReason) string {
	switch reason {
	case ReasonBlocked:
		return ErrCodeStoreBlocked
	case ReasonUnreachable:
		return ErrCodeStoreUnreachable
	case ReasonUnsupported:
		return ErrCodeUnsupportedStore
	default:
		return ErrCodeScrape
	}
}
