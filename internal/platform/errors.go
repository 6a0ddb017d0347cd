package platform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maheshrc27/socialhub/internal/models"
)

var (
	// ErrUnauthorized means the provider rejected the access token.
	ErrUnauthorized = errors.New("provider rejected access token")
	// ErrNotFound means the provider has no such object.
	ErrNotFound = errors.New("provider object not found")
)

// AuthExchangeError is returned when an authorization code could not be exchanged.
// Codes are single use, so callers must not retry.
type AuthExchangeError struct {
	Platform   models.Platform
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: code exchange failed with status %d: %s", e.Platform, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: code exchange failed: %v", e.Platform, e.Err)
}

func (e *AuthExchangeError) Unwrap() error { return e.Err }

// TokenRefreshError marks a refresh that failed for good. The account must be deactivated.
type TokenRefreshError struct {
	Platform models.Platform
	Err      error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("%s: token refresh failed: %v", e.Platform, e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// CsrfMismatchError is returned when the OAuth state does not match the issued nonce.
type CsrfMismatchError struct {
	Platform models.Platform
	Reason   string
}

func (e *CsrfMismatchError) Error() string {
	return fmt.Sprintf("%s: state mismatch: %s", e.Platform, e.Reason)
}

// PublishError is one provider rejecting a publish. It never fails sibling platforms.
type PublishError struct {
	Platform models.Platform `json:"platform"`
	Reason   string          `json:"reason"`
	Err      error           `json:"-"`
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed: %s", e.Platform, e.Reason)
}

func (e *PublishError) Unwrap() error { return e.Err }

type UnknownPlatformError struct {
	Platform string
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("unknown platform %q", e.Platform)
}

// PlatformFailure records why one platform dropped out of an aggregation round.
type PlatformFailure struct {
	Platform models.Platform `json:"platform"`
	Reason   string          `json:"reason"`
	TimedOut bool            `json:"timed_out,omitempty"`
}

// PartialAggregationFailure lists the platforms that did not contribute to an aggregation.
type PartialAggregationFailure struct {
	Failures []PlatformFailure
}

func (e *PartialAggregationFailure) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Platform, f.Reason))
	}
	return "partial aggregation failure: " + strings.Join(parts, "; ")
}
