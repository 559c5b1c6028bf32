package tokensource

import (
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// State is the lifecycle phase of a Provider's token.
type State int

const (
	Uninitialized State = iota
	AwaitingUserCode
	Authorized
	Expired
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case AwaitingUserCode:
		return "awaiting_user_code"
	case Authorized:
		return "authorized"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// tokenState is an immutable snapshot of the token lifecycle.
// Every transition returns a new value; the Provider swaps snapshots under its mutex.
// The access token is non-empty if and only if state is Authorized.
type tokenState struct {
	state        State
	accessToken  string
	refreshToken string
	expiry       time.Time
}

// awaitingCode is entered while the user is asked for an authorization code.
func (s tokenState) awaitingCode() tokenState {
	return tokenState{state: AwaitingUserCode, refreshToken: s.refreshToken}
}

// authorized stores a token pair returned by the token endpoint.
// A response without a refresh token keeps the previous one, since endpoints
// are not required to rotate it.
func (s tokenState) authorized(tok *oauth2.Token) (tokenState, error) {
	if tok == nil || tok.AccessToken == "" {
		return s, errors.New("token endpoint returned an empty access token")
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = s.refreshToken
	}

	return tokenState{
		state:        Authorized,
		accessToken:  tok.AccessToken,
		refreshToken: refresh,
		expiry:       tok.Expiry,
	}, nil
}

// expired drops both tokens. The upstream rejected them, so neither is worth keeping.
func (s tokenState) expired() tokenState {
	return tokenState{state: Expired}
}

// stale marks the access token as rejected but keeps the refresh token for a silent refresh.
// Only applies if accessToken is still the current token; a concurrent refresh may have replaced it.
func (s tokenState) stale(accessToken string) tokenState {
	if s.state != Authorized || s.accessToken != accessToken {
		return s
	}
	return tokenState{state: Expired, refreshToken: s.refreshToken}
}

// restore returns to the state held before an interactive flow that did not complete.
func (s tokenState) restore(prev tokenState) tokenState {
	if s.state == Authorized {
		return s
	}
	return prev
}
