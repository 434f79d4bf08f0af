package deriv

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRetriesExhausted is returned when the reconnect budget is used up.
	// The current operation fails but the session may recover on a later call.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	// ErrNotConnected is returned for calls on a session that was never
	// connected or was explicitly disconnected.
	ErrNotConnected = errors.New("session not connected")
)

// APIError is a broker-side rejection carried in the response envelope.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("deriv api error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("deriv api error: %s", e.Message)
}

// AuthError is an authorization rejection. It is terminal: the session
// never retries it, because a bad token cannot heal itself.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("deriv authorization failed [%s]: %s", e.Code, e.Message)
}

// IsPriceMoved reports whether err is a buy rejection caused by the quoted
// price or payout changing between proposal and buy. These are the only
// rejections worth retrying with a fresh proposal.
func IsPriceMoved(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "moved too much") || strings.Contains(msg, "payout has changed")
}
