// Package session holds the signed-in user's tokens in a persistent
// key-value store, and ends the session when it can no longer be used.
package session

import (
	"context"
	"errors"

	"github.com/fxsound/soundstudio/pkg/errs"
	"github.com/goccy/go-json"
)

const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// Keys lists every key a session occupies in a Store.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

var ErrNoSession = errors.New("no session")

// Store is persistent key-value storage for session data.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

type User struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Load reads the full session from the store. A missing access token means
// there is no session.
func Load(store Store) (*Session, error) {
	const op errs.Op = "session.Load"

	access, ok, err := store.Get(KeyAccessToken)
	if err != nil {
		return nil, errs.E(errs.IO, op, err)
	}

	if !ok || access == "" {
		return nil, errs.E(errs.NotExist, op, ErrNoSession)
	}

	refresh, _, err := store.Get(KeyRefreshToken)
	if err != nil {
		return nil, errs.E(errs.IO, op, err)
	}

	sess := &Session{
		AccessToken:  access,
		RefreshToken: refresh,
	}

	user, err := CurrentUser(store)
	if err != nil && !errors.Is(err, ErrNoSession) {
		return nil, errs.E(op, err)
	}

	if user != nil {
		sess.User = *user
	}

	return sess, nil
}

func Save(store Store, sess *Session) error {
	const op errs.Op = "session.Save"

	user, err := json.Marshal(sess.User)
	if err != nil {
		return errs.E(errs.Internal, op, err)
	}

	for key, value := range map[string]string{
		KeyAccessToken:  sess.AccessToken,
		KeyRefreshToken: sess.RefreshToken,
		KeyUser:         string(user),
	} {
		if err := store.Set(key, value); err != nil {
			return errs.E(errs.IO, op, errs.Parameter(key), err)
		}
	}

	return nil
}

// Clear removes every session key. It attempts all keys even if one fails.
func Clear(store Store) error {
	const op errs.Op = "session.Clear"

	var errList []error

	for _, key := range Keys {
		if err := store.Remove(key); err != nil {
			errList = append(errList, err)
		}
	}

	if len(errList) > 0 {
		return errs.E(errs.IO, op, errors.Join(errList...))
	}

	return nil
}

func CurrentUser(store Store) (*User, error) {
	const op errs.Op = "session.CurrentUser"

	raw, ok, err := store.Get(KeyUser)
	if err != nil {
		return nil, errs.E(errs.IO, op, err)
	}

	if !ok {
		return nil, errs.E(errs.NotExist, op, ErrNoSession)
	}

	user := &User{}

	err = json.Unmarshal([]byte(raw), user)
	if err != nil {
		return nil, errs.E(errs.Invalid, op, err)
	}

	return user, nil
}

// Navigator sends the user to another entry point of the application,
// replacing the current location.
type Navigator interface {
	Replace(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Replace(path string) {
	f(path)
}

// TerminationHandler is invoked when the session can no longer be used.
type TerminationHandler interface {
	Terminate(ctx context.Context, reason error)
}

type TerminationHandlerFunc func(ctx context.Context, reason error)

func (f TerminationHandlerFunc) Terminate(ctx context.Context, reason error) {
	f(ctx, reason)
}
