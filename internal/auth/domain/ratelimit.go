package domain

import (
	"fmt"
	"time"
)

// IdentifierKind says what a rate-limit identifier is.
type IdentifierKind string

const (
	KindAddress IdentifierKind = "ADDRESS"
	KindIP      IdentifierKind = "IP"
)

// ParseIdentifierKind accepts either case.
func ParseIdentifierKind(s string) (IdentifierKind, error) {
	switch IdentifierKind(s) {
	case KindAddress, "address":
		return KindAddress, nil
	case KindIP, "ip":
		return KindIP, nil
	}
	return "", fmt.Errorf("unknown identifier kind %q", s)
}

// RateLimitRecord counts attempts for one identifier inside a window.
type RateLimitRecord struct {
	Identifier   string
	Kind         IdentifierKind
	AttemptCount int
	WindowStart  time.Time
	BlockedUntil *time.Time
}

// RateLimitDecision is the outcome of recording or checking an attempt.
type RateLimitDecision struct {
	Blocked      bool
	AttemptCount int
	RetryAfter   time.Duration
}
