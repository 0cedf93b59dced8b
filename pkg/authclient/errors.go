package authclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fxsound/soundstudio/pkg/session"
)

var (
	ErrNoRefreshToken   = errors.New("no refresh token found")
	ErrEmptyAccessToken = errors.New("refresh response carried no access token")
)

// NoSessionError is returned when a request is attempted without a stored
// access token. The session has been terminated when it is returned.
type NoSessionError struct{}

func (e *NoSessionError) Error() string {
	return "no authentication token found"
}

func (e *NoSessionError) Unwrap() error {
	return session.ErrNoSession
}

// RefreshFailedError is returned when the refresh exchange did not yield a
// new access token.
type RefreshFailedError struct {
	StatusCode int
	Err        error
}

func (e *RefreshFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refreshing access token: %v", e.Err)
	}

	return fmt.Sprintf("refreshing access token: unexpected status code: %d", e.StatusCode)
}

func (e *RefreshFailedError) Unwrap() error {
	return e.Err
}

// AuthenticationFailedError is returned when a request could not be
// authenticated, either because a refresh failed or because the retry after
// a refresh was rejected. The session has been terminated when it is
// returned.
type AuthenticationFailedError struct {
	StatusCode int
	Err        error
}

func (e *AuthenticationFailedError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("authentication failed: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("authentication failed: retry got status code %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
	default:
		return "authentication failed"
	}
}

func (e *AuthenticationFailedError) Unwrap() error {
	return e.Err
}

// TransportError wraps a network level failure of the primary call or its
// retry. It says nothing about the session, which is left intact.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sending request %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAuthenticationError reports whether err means the session was
// terminated. Callers use it to skip their own error reporting, since the
// user is already on the way to the login entry point.
func IsAuthenticationError(err error) bool {
	var noSession *NoSessionError
	var refreshFailed *RefreshFailedError
	var authFailed *AuthenticationFailedError

	return errors.As(err, &noSession) || errors.As(err, &refreshFailed) || errors.As(err, &authFailed)
}
