package e2etests

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fxsound/soundstudio/pkg/authclient"
	"github.com/fxsound/soundstudio/pkg/fakeapi"
	"github.com/fxsound/soundstudio/pkg/login"
	"github.com/fxsound/soundstudio/pkg/session"
	"github.com/fxsound/soundstudio/pkg/sound"
	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const loginPath = "/login"

type navigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *navigator) Replace(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.paths = append(n.paths, path)
}

func (n *navigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.paths...)
}

type credential string

func (c credential) Credential(context.Context) (string, error) {
	return string(c), nil
}

// env is one user session against a fresh fake API.
type env struct {
	api       *fakeapi.Server
	store     *session.MemoryStore
	navigator *navigator
	metrics   *authclient.Metrics
	client    *authclient.Client
	sounds    *sound.Client
	login     *login.Service
}

func newEnv(t *testing.T, cfg fakeapi.Config) *env {
	t.Helper()

	log := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)

	api := fakeapi.New(cfg, fakeapi.InsecureCredentialVerifier{}, log.With().Str("component", "fakeapi").Logger())

	server := httptest.NewServer(api.Routes())
	t.Cleanup(server.Close)

	store := session.NewMemoryStore()
	nav := &navigator{}
	metrics := authclient.NewMetrics("e2e")

	client := authclient.New(
		server.URL,
		server.Client(),
		store,
		session.NewTerminator(store, nav, loginPath, log),
		0,
		log.With().Str("component", "authclient").Logger(),
	).WithMetrics(metrics)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email":   "ada@example.com",
		"name":    "Ada Lovelace",
		"picture": "https://example.com/ada.png",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("google"))
	require.NoError(t, err)

	return &env{
		api:       api,
		store:     store,
		navigator: nav,
		metrics:   metrics,
		client:    client,
		sounds:    sound.New(client),
		login:     login.NewService(credential(raw), login.NewExchanger(server.URL, server.Client()), store, log),
	}
}
