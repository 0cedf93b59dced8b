package fakeapi_test

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/fxsound/soundstudio/pkg/fakeapi"
	"github.com/fxsound/soundstudio/pkg/login"
	"github.com/fxsound/soundstudio/pkg/session"
	"github.com/fxsound/soundstudio/pkg/sound"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func credential(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("google"))
	require.NoError(t, err)

	return raw
}

type harness struct {
	server *fakeapi.Server
	url    string
	client *http.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	server := fakeapi.New(fakeapi.Config{Secret: "test-secret"}, fakeapi.InsecureCredentialVerifier{}, zerolog.Nop())

	testServer := httptest.NewServer(server.Routes())
	t.Cleanup(testServer.Close)

	return &harness{
		server: server,
		url:    testServer.URL,
		client: testServer.Client(),
	}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.url+path, reader)
	require.NoError(t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := h.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	return res.StatusCode, data
}

func (h *harness) login(t *testing.T, email string) login.Response {
	t.Helper()

	status, body := h.do(t, http.MethodPost, login.GoogleLoginPath, "", login.CredentialRequest{
		Credential: credential(t, jwt.MapClaims{"email": email, "name": "Ada Lovelace"}),
	})
	require.Equal(t, http.StatusOK, status, string(body))

	res := login.Response{}
	require.NoError(t, json.Unmarshal(body, &res))

	return res
}

func TestServer_GoogleLogin(t *testing.T) {
	testCases := []struct {
		name   string
		body   any
		status int
		expect string
	}{
		{
			name:   "should reject missing credential",
			body:   login.CredentialRequest{},
			status: http.StatusBadRequest,
			expect: `{"error":"No credential token provided"}`,
		},
		{
			name:   "should reject credential without email",
			body:   login.CredentialRequest{Credential: credential(t, jwt.MapClaims{"name": "nobody"})},
			status: http.StatusUnauthorized,
			expect: `{"error":"credential has no email claim"}`,
		},
		{
			name:   "should reject garbage credential",
			body:   login.CredentialRequest{Credential: "garbage"},
			status: http.StatusUnauthorized,
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)

			status, body := h.do(t, http.MethodPost, login.GoogleLoginPath, "", tc.body)
			assert.Equal(t, tc.status, status)

			if tc.expect != "" {
				assert.JSONEq(t, tc.expect, string(body))
			}
		})
	}
}

func TestServer_Sounds(t *testing.T) {
	h := newHarness(t)
	tokens := h.login(t, "ada@example.com")

	assert.Equal(t, session.User{Name: "Ada Lovelace", Email: "ada@example.com"}, tokens.User)

	status, body := h.do(t, http.MethodGet, sound.PathMySounds, tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"sounds": []}`, string(body))

	status, body = h.do(t, http.MethodPost, sound.PathGenerate, tokens.AccessToken, sound.NewGenerateRequest("rain on a tin roof", "Rain on Roof"))
	require.Equal(t, http.StatusOK, status, string(body))

	generated := sound.GenerateResponse{}
	require.NoError(t, json.Unmarshal(body, &generated))
	assert.Equal(t, "rain-on-roof.wav", generated.Filename)

	status, body = h.do(t, http.MethodGet, sound.PathMySounds, tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)

	list := sound.SoundList{}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Sounds, 1)
	assert.Equal(t, "rain-on-roof.wav", list.Sounds[0].Filename)
	assert.Equal(t, "rain on a tin roof", list.Sounds[0].Prompt)

	_, ok := list.Sounds[0].Created()
	assert.True(t, ok)

	status, body = h.do(t, http.MethodGet, sound.PathAudio+"rain-on-roof.wav", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, fakeapi.SilentWAV(sound.DefaultDuration), body)

	status, body = h.do(t, http.MethodGet, sound.PathAudio+"missing.wav", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error": "Sound not found"}`, string(body))

	other := h.login(t, "grace@example.com")

	status, body = h.do(t, http.MethodGet, sound.PathMySounds, other.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"sounds": []}`, string(body))
}

func TestServer_Generate(t *testing.T) {
	testCases := []struct {
		name   string
		req    sound.GenerateRequest
		status int
	}{
		{
			name:   "should reject blank prompt",
			req:    sound.NewGenerateRequest(" ", "rain"),
			status: http.StatusBadRequest,
		},
		{
			name:   "should reject unusable filename",
			req:    sound.NewGenerateRequest("rain", "!!!"),
			status: http.StatusBadRequest,
		},
		{
			name: "should reject long duration",
			req: sound.GenerateRequest{
				Prompt:     "rain",
				Filename:   "rain",
				NumOfSteps: 200,
				Duration:   fakeapi.MaxDuration + 1,
			},
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tokens := h.login(t, "ada@example.com")

			status, body := h.do(t, http.MethodPost, sound.PathGenerate, tokens.AccessToken, tc.req)
			assert.Equal(t, tc.status, status, string(body))
		})
	}
}

func TestServer_AnalyzeImage(t *testing.T) {
	h := newHarness(t)
	tokens := h.login(t, "ada@example.com")

	status, body := h.do(t, http.MethodPost, sound.PathAnalyzeImage, tokens.AccessToken, sound.AnalyzeImageRequest{
		Image:  sound.DataURL([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")),
		Prompt: "what does it sound like",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `{"message": "image/png, 16 bytes: what does it sound like"}`, string(body))

	status, _ = h.do(t, http.MethodPost, sound.PathAnalyzeImage, tokens.AccessToken, sound.AnalyzeImageRequest{
		Image: sound.DataURL([]byte("plain text")),
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_Tokens(t *testing.T) {
	h := newHarness(t)
	tokens := h.login(t, "ada@example.com")

	status, body := h.do(t, http.MethodGet, sound.PathMySounds, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.JSONEq(t, `{"error": "Invalid or missing token"}`, string(body))

	status, _ = h.do(t, http.MethodGet, sound.PathMySounds, tokens.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status, "refresh token must not grant access")

	status, _ = h.do(t, http.MethodPost, "/auth/refresh", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status, "access token must not refresh")

	assert.Equal(t, 1, h.server.RevokeAccessTokens())

	status, _ = h.do(t, http.MethodGet, sound.PathMySounds, tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = h.do(t, http.MethodPost, "/auth/refresh", tokens.RefreshToken, nil)
	require.Equal(t, http.StatusOK, status)

	refreshed := map[string]string{}
	require.NoError(t, json.Unmarshal(body, &refreshed))
	assert.NotEmpty(t, refreshed["access_token"])

	status, _ = h.do(t, http.MethodGet, sound.PathMySounds, refreshed["access_token"], nil)
	assert.Equal(t, http.StatusOK, status)

	assert.Equal(t, 1, h.server.RevokeRefreshTokens())

	status, _ = h.do(t, http.MethodPost, "/auth/refresh", tokens.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestServer_MetricsAndCORS(t *testing.T) {
	h := newHarness(t)
	h.login(t, "ada@example.com")

	status, body := h.do(t, http.MethodGet, fakeapi.PathMetrics, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `soundstudio_fakeapi_tokens_issued_total{typ="access"} 1`)
	assert.Contains(t, string(body), `soundstudio_fakeapi_tokens_issued_total{typ="refresh"} 1`)

	req, err := http.NewRequest(http.MethodOptions, h.url+sound.PathMySounds, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", fakeapi.DevOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")

	res, err := h.client.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, fakeapi.DevOrigin, res.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", res.Header.Get("Access-Control-Allow-Credentials"))
}

func TestOIDCCredentialVerifier(t *testing.T) {
	const (
		issuer   = "https://accounts.example.com"
		clientID = "soundstudio"
	)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	verifier := fakeapi.NewOIDCCredentialVerifier(oidc.NewVerifier(issuer, &oidc.StaticKeySet{
		PublicKeys: []crypto.PublicKey{&key.PublicKey},
	}, &oidc.Config{ClientID: clientID}))

	sign := func(claims jwt.MapClaims) string {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		require.NoError(t, err)

		return raw
	}

	testCases := []struct {
		name      string
		claims    jwt.MapClaims
		expect    session.User
		expectErr bool
	}{
		{
			name: "should accept token for client",
			claims: jwt.MapClaims{
				"iss":     issuer,
				"aud":     clientID,
				"exp":     time.Now().Add(time.Hour).Unix(),
				"email":   "ada@example.com",
				"name":    "Ada Lovelace",
				"picture": "https://example.com/ada.png",
			},
			expect: session.User{Name: "Ada Lovelace", Email: "ada@example.com", Picture: "https://example.com/ada.png"},
		},
		{
			name: "should reject token for other client",
			claims: jwt.MapClaims{
				"iss":   issuer,
				"aud":   "someone-else",
				"exp":   time.Now().Add(time.Hour).Unix(),
				"email": "ada@example.com",
			},
			expectErr: true,
		},
		{
			name: "should reject expired token",
			claims: jwt.MapClaims{
				"iss":   issuer,
				"aud":   clientID,
				"exp":   time.Now().Add(-time.Hour).Unix(),
				"email": "ada@example.com",
			},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			got, err := verifier.Verify(context.Background(), sign(tc.claims))
			if tc.expectErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expect, got)
		})
	}
}

func TestSoundFilename(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "should slugify", input: "Rain on Roof", expect: "rain-on-roof.wav"},
		{name: "should not double extension", input: "thunder.wav", expect: "thunder.wav"},
		{name: "should trim whitespace", input: "  wind  ", expect: "wind.wav"},
		{name: "should reject punctuation only", input: "!!!", expect: ""},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, fakeapi.SoundFilename(tc.input))
		})
	}
}

func TestSilentWAV(t *testing.T) {
	got := fakeapi.SilentWAV(2)

	require.Len(t, got, 44+2*16000*2)
	assert.True(t, strings.HasPrefix(string(got[:4]), "RIFF"))
	assert.Equal(t, "WAVE", string(got[8:12]))
	assert.Equal(t, uint32(36+2*16000*2), binary.LittleEndian.Uint32(got[4:8]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(got[24:28]))
	assert.Equal(t, uint32(2*16000*2), binary.LittleEndian.Uint32(got[40:44]))
}
