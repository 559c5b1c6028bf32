package tokensource

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthorized is returned by DecorateRequest when no valid access token is held.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNoRefreshToken is wrapped in a RefreshError when Refresh is called without a refresh token.
	ErrNoRefreshToken = errors.New("no refresh token held")

	// ErrEmptyCode is wrapped in an AuthFlowError when the user submits an empty authorization code.
	ErrEmptyCode = errors.New("authorization code cannot be empty")
)

// AuthFlowError reports a failed interactive authorization.
// It is not retried automatically; a fresh EnsureInitialized call starts a new attempt.
type AuthFlowError struct {
	// Op names the step that failed: "present", "read code" or "exchange".
	Op  string
	Err error
}

func (e *AuthFlowError) Error() string {
	return fmt.Sprintf("authorization flow failed at %s: %v", e.Op, e.Err)
}

func (e *AuthFlowError) Unwrap() error {
	return e.Err
}

// RefreshError reports a failed refresh token exchange.
// Callers should fall back to the interactive flow instead of retrying the refresh.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// TransportError reports that the token endpoint could not be reached.
// It always arrives wrapped in an AuthFlowError or a RefreshError.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("token endpoint unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
