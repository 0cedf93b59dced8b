// Package login signs the user in with Google and trades the resulting
// credential for an API session.
package login

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fxsound/soundstudio/pkg/errs"
	"github.com/fxsound/soundstudio/pkg/session"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const GoogleLoginPath = "/auth/google-login"

var ErrAlreadyLoggedIn = errors.New("already logged in")

type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

type CredentialRequest struct {
	Credential string `json:"credential"`
}

type Response struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         session.User `json:"user"`
}

// Exchanger trades a Google ID token for the API's own token pair.
type Exchanger struct {
	apiURL string
	client *http.Client
}

func (e *Exchanger) Exchange(ctx context.Context, credential string) (*session.Session, error) {
	const op errs.Op = "login.Exchange"

	if credential == "" {
		return nil, errs.E(errs.Validation, op, errs.Parameter("credential"), errs.Str("credential is required"))
	}

	body, err := json.Marshal(CredentialRequest{Credential: credential})
	if err != nil {
		return nil, errs.E(errs.Internal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL+GoogleLoginPath, bytes.NewReader(body))
	if err != nil {
		return nil, errs.E(errs.InvalidRequest, op, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := e.client.Do(req)
	if err != nil {
		return nil, errs.E(errs.IO, op, fmt.Errorf("sending login request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errs.E(errs.Unauthenticated, op, loginError(res))
	}

	out := &Response{}

	err = json.NewDecoder(res.Body).Decode(out)
	if err != nil {
		return nil, errs.E(errs.IO, op, fmt.Errorf("decoding login response: %w", err))
	}

	if out.AccessToken == "" || out.RefreshToken == "" {
		return nil, errs.E(errs.Unauthenticated, op, errs.Str("login response is missing tokens"))
	}

	return &session.Session{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		User:         out.User,
	}, nil
}

func loginError(res *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	var body struct {
		Error string `json:"error"`
	}

	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("login rejected with status %d: %s", res.StatusCode, body.Error)
	}

	return fmt.Errorf("login rejected with status %d: %s", res.StatusCode, http.StatusText(res.StatusCode))
}

func NewExchanger(apiURL string, client *http.Client) *Exchanger {
	return &Exchanger{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		client: client,
	}
}

type Service struct {
	source    CredentialSource
	exchanger *Exchanger
	store     session.Store
	log       zerolog.Logger
}

// Login stores a new session. An existing session is returned together with
// ErrAlreadyLoggedIn unless force is set.
func (s *Service) Login(ctx context.Context, force bool) (*session.Session, error) {
	const op errs.Op = "login.Login"

	if !force {
		existing, err := session.Load(s.store)
		if err == nil {
			return existing, ErrAlreadyLoggedIn
		}

		if !errors.Is(err, session.ErrNoSession) {
			return nil, errs.E(op, err)
		}
	}

	credential, err := s.source.Credential(ctx)
	if err != nil {
		return nil, errs.E(op, err)
	}

	sess, err := s.exchanger.Exchange(ctx, credential)
	if err != nil {
		return nil, errs.E(op, err)
	}

	err = session.Save(s.store, sess)
	if err != nil {
		return nil, errs.E(op, err)
	}

	s.log.Info().Str("email", sess.User.Email).Msg("logged in")

	return sess, nil
}

func (s *Service) Logout(_ context.Context) error {
	const op errs.Op = "login.Logout"

	err := session.Clear(s.store)
	if err != nil {
		return errs.E(op, err)
	}

	s.log.Info().Msg("logged out")

	return nil
}

func NewService(source CredentialSource, exchanger *Exchanger, store session.Store, log zerolog.Logger) *Service {
	return &Service{
		source:    source,
		exchanger: exchanger,
		store:     store,
		log:       log,
	}
}
