package authsdk

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/walletauth/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeInvalidRequest        = "invalid_request"
	ErrorCodeInvalidAddress        = "invalid_address"
	ErrorCodeVerificationFailed    = "verification_failed"
	ErrorCodeRateLimited           = "rate_limited"
	ErrorCodeInvalidRefreshToken   = "invalid_refresh_token"
	ErrorCodeInvalidToken          = "invalid_token"
	ErrorCodeSessionCreationFailed = "session_creation_failed"
	ErrorCodeServiceUnavailable    = "service_unavailable"
	ErrorCodeServerError           = "server_error"
	ErrorCodeNotFound              = "not_found"
	ErrorCodeForbidden             = "forbidden"
)

// ============================================================================
// APIError
// ============================================================================

// APIError is an error response from the auth service. It is used both by
// the server (to write HTTP responses) and by the SDK client (to represent
// errors). Two APIErrors match under errors.Is when their codes are equal.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine readable error code (e.g., "rate_limited")
	Code string `json:"error"`

	// Description is safe to show an end user
	Description string `json:"error_description"`

	// RetryAfter is set on rate_limited responses from the Retry-After header.
	RetryAfter time.Duration `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is lets errors.Is compare against the predefined errors by code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WithRetryAfter returns a copy of e carrying d.
func (e *APIError) WithRetryAfter(d time.Duration) *APIError {
	cp := *e
	cp.RetryAfter = d
	return &cp
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	if e.RetryAfter > 0 {
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	httpx.WriteJSON(w, e.StatusCode, ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
	})
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "invalid request",
	}

	ErrInvalidAddress = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidAddress,
		Description: "invalid wallet address",
	}

	// ErrVerificationFailed covers every challenge failure. The server never
	// says which check failed.
	ErrVerificationFailed = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeVerificationFailed,
		Description: "verification failed",
	}

	ErrRateLimited = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeRateLimited,
		Description: "too many attempts, try again later",
	}

	ErrInvalidRefreshToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidRefreshToken,
		Description: "invalid refresh token",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "invalid access token",
	}

	// ErrSessionCreationFailed means the challenge was not consumed and the
	// same signature may be submitted again.
	ErrSessionCreationFailed = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeSessionCreationFailed,
		Description: "could not create session, please retry",
	}

	ErrServiceUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeServiceUnavailable,
		Description: "service temporarily unavailable",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal error",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "not available",
	}

	ErrForbidden = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeForbidden,
		Description: "forbidden",
	}
)

// NewAPIError creates an APIError with a custom description.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse turns a non-2xx response into an *APIError.
// Returns nil if the response indicates success (2xx status code).
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Error
		apiErr.Description = errResp.ErrorDescription
		return apiErr
	}

	// Fallback: create generic error from status code
	apiErr.Code = ErrorCodeServerError
	apiErr.Description = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return apiErr
}
