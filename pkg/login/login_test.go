package login_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/fxsound/soundstudio/pkg/errs"
	"github.com/fxsound/soundstudio/pkg/login"
	"github.com/fxsound/soundstudio/pkg/session"
	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeOAuth struct {
	oauth2.Config

	verifyErr error
	verified  []string
}

func (f *fakeOAuth) Verify(_ context.Context, rawIDToken string) (*oidc.IDToken, error) {
	f.verified = append(f.verified, rawIDToken)

	if f.verifyErr != nil {
		return nil, f.verifyErr
	}

	return &oidc.IDToken{}, nil
}

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Contains(t, r.PostForm.Get("redirect_uri"), login.CallbackPath)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "google-access", "token_type": "Bearer", "id_token": "raw-id-token"}`))
	}))
	t.Cleanup(server.Close)

	return server
}

func TestLoopbackFlow_Credential(t *testing.T) {
	testCases := []struct {
		name      string
		state     func(expected string) string
		verifyErr error
		expect    string
		expectErr bool
	}{
		{
			name:   "should return verified id token",
			state:  func(expected string) string { return expected },
			expect: "raw-id-token",
		},
		{
			name:      "should reject mismatched state",
			state:     func(string) string { return "forged" },
			expectErr: true,
		},
		{
			name:      "should reject unverifiable id token",
			state:     func(expected string) string { return expected },
			verifyErr: errors.New("bad signature"),
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			tokenServer := newTokenServer(t)

			oauth := &fakeOAuth{
				Config: oauth2.Config{
					ClientID:     "client",
					ClientSecret: "secret",
					Endpoint: oauth2.Endpoint{
						AuthURL:  "https://accounts.example.com/auth",
						TokenURL: tokenServer.URL,
					},
				},
				verifyErr: tc.verifyErr,
			}

			var consentURL *url.URL

			prompt := func(authURL string) {
				u, err := url.Parse(authURL)
				require.NoError(t, err)

				consentURL = u

				q := u.Query()
				callback := q.Get("redirect_uri") + "?code=the-code&state=" + url.QueryEscape(tc.state(q.Get("state")))

				res, err := http.Get(callback)
				require.NoError(t, err)
				res.Body.Close()
			}

			flow := login.NewLoopbackFlow(oauth, "127.0.0.1:0", prompt, zerolog.Nop())

			got, err := flow.Credential(context.Background())
			require.NotNil(t, consentURL)
			assert.Equal(t, "select_account", consentURL.Query().Get("prompt"))

			if tc.expectErr {
				require.Error(t, err)
				assert.True(t, errs.KindIs(errs.Unauthenticated, err), err.Error())

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expect, got)
			assert.Equal(t, []string{"raw-id-token"}, oauth.verified)
		})
	}
}

func TestLoopbackFlow_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	flow := login.NewLoopbackFlow(&fakeOAuth{}, "127.0.0.1:0", func(string) { cancel() }, zerolog.Nop())

	_, err := flow.Credential(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExchanger_Exchange(t *testing.T) {
	testCases := []struct {
		name      string
		status    int
		body      string
		expect    *session.Session
		expectErr string
	}{
		{
			name:   "should return session",
			status: http.StatusOK,
			body:   `{"access_token": "a", "refresh_token": "r", "user": {"name": "Ada", "email": "ada@example.com", "picture": ""}}`,
			expect: &session.Session{
				AccessToken:  "a",
				RefreshToken: "r",
				User:         session.User{Name: "Ada", Email: "ada@example.com"},
			},
		},
		{
			name:      "should surface backend error",
			status:    http.StatusUnauthorized,
			body:      `{"error": "Token used too late"}`,
			expectErr: "login rejected with status 401: Token used too late",
		},
		{
			name:      "should reject response without tokens",
			status:    http.StatusOK,
			body:      `{"user": {"email": "ada@example.com"}}`,
			expectErr: "login response is missing tokens",
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, login.GoogleLoginPath, r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)

				got := login.CredentialRequest{}
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, "credential", got.Credential)

				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			got, err := login.NewExchanger(server.URL, server.Client()).Exchange(context.Background(), "credential")
			if tc.expectErr != "" {
				require.Error(t, err)
				assert.True(t, errs.KindIs(errs.Unauthenticated, err), err.Error())
				assert.Contains(t, err.Error(), tc.expectErr)

				return
			}

			require.NoError(t, err)

			diff := cmp.Diff(tc.expect, got)
			assert.Empty(t, diff)
		})
	}
}

type fakeSource struct {
	calls int
}

func (s *fakeSource) Credential(context.Context) (string, error) {
	s.calls++

	return "credential", nil
}

func TestService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token": "fresh", "refresh_token": "r", "user": {"name": "Ada", "email": "ada@example.com"}}`))
	}))
	defer server.Close()

	store := session.NewMemoryStore()
	source := &fakeSource{}
	service := login.NewService(source, login.NewExchanger(server.URL, server.Client()), store, zerolog.Nop())

	sess, err := service.Login(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "fresh", sess.AccessToken)
	assert.Equal(t, 1, source.calls)

	user, err := session.CurrentUser(store)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	_, err = service.Login(context.Background(), false)
	assert.ErrorIs(t, err, login.ErrAlreadyLoggedIn)
	assert.Equal(t, 1, source.calls)

	_, err = service.Login(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)

	require.NoError(t, service.Logout(context.Background()))
	assert.Equal(t, 0, store.Len())
}
