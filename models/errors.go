package models

import (
	"errors"
	"fmt"
)

// Error codes carried by ScrapeError and surfaced in error events.
const (
	ErrCodeTimeout       = "SCRAPE_TIMEOUT"
	ErrCodeNavigation    = "NAVIGATION_FAILED"
	ErrCodeShortDocument = "DOCUMENT_TOO_SHORT"
	ErrCodeBrowserCrash  = "BROWSER_CRASH"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternal      = "INTERNAL_ERROR"

	ErrCodeSearchFailed       = "SEARCH_FAILED"
	ErrCodeSearchQuota        = "SEARCH_QUOTA_EXCEEDED"
	ErrCodeSearchForbidden    = "SEARCH_FORBIDDEN"
	ErrCodeSearchUnconfigured = "SEARCH_UNCONFIGURED"

	ErrCodeLLMFailure     = "LLM_FAILURE"
	ErrCodeLLMAuthFailure = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimited = "LLM_RATE_LIMITED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
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

// Retryable reports whether the failure is site-scoped and worth another
// attempt with a slower render strategy.
func (e *ScrapeError) Retryable() bool {
	switch e.Code {
	case ErrCodeTimeout, ErrCodeNavigation, ErrCodeShortDocument:
		return true
	}
	return false
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the ScrapeError code found in err's chain, or
// ErrCodeInternal when err carries none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether err is a retryable ScrapeError.
func IsRetryable(err error) bool {
	var se *ScrapeError
	return errors.As(err, &se) && se.Retryable()
}
