package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimited           = errors.New("rate_limited")
	ErrChallengeNotFound     = errors.New("challenge_not_found")
	ErrChallengeExpired      = errors.New("challenge_expired")
	ErrChallengeAlreadyUsed  = errors.New("challenge_already_used")
	ErrMessageMismatch       = errors.New("message_mismatch")
	ErrSignatureInvalid      = errors.New("signature_invalid")
	ErrAddressMismatch       = errors.New("address_mismatch")
	ErrInvalidRefreshToken   = errors.New("invalid_refresh_token")
	ErrSessionCreationFailed = errors.New("session_creation_failed")
	ErrStorageUnavailable    = errors.New("storage_unavailable")

	ErrInvalidAddress     = errors.New("invalid_address")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInvalidAccessToken = errors.New("invalid_access_token")
	ErrAdminDisabled      = errors.New("admin_disabled")
)

// RateLimitError is returned when an address or IP is blocked. It never says
// which of the two tripped.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// challengeErrors all collapse to the same public message.
var challengeErrors = []error{
	ErrChallengeNotFound,
	ErrChallengeExpired,
	ErrChallengeAlreadyUsed,
	ErrMessageMismatch,
	ErrSignatureInvalid,
	ErrAddressMismatch,
}

// IsVerificationFailure reports whether err is one of the challenge
// verification failures.
func IsVerificationFailure(err error) bool {
	for _, target := range challengeErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// PublicMessage is the text safe to show an end user for err.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "too many attempts, try again later"
	case IsVerificationFailure(err):
		return "verification failed"
	case errors.Is(err, ErrInvalidRefreshToken):
		return "invalid refresh token"
	case errors.Is(err, ErrInvalidAccessToken):
		return "invalid access token"
	case errors.Is(err, ErrSessionCreationFailed):
		return "could not create session, please retry"
	case errors.Is(err, ErrStorageUnavailable):
		return "service temporarily unavailable"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid wallet address"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid request"
	case errors.Is(err, ErrAdminDisabled):
		return "not available"
	}
	return "internal error"
}

// storageErr tags backend failures as ErrStorageUnavailable. Errors already
// in the taxonomy pass through.
func storageErr(err error) error {
	if err == nil || isTaxonomy(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func sessionErr(err error) error {
	if err == nil || errors.Is(err, ErrSessionCreationFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
}

func isTaxonomy(err error) bool {
	return IsVerificationFailure(err) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrInvalidRefreshToken) ||
		errors.Is(err, ErrSessionCreationFailed) ||
		errors.Is(err, ErrStorageUnavailable)
}
