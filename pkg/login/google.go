package login

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const GoogleIssuer = "https://accounts.google.com"

type OAuth2 interface {
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

var _ OAuth2 = &Google{}

// Google is the OAuth2 client for signing in with a Google account. The
// redirect URL is left empty, the loopback flow supplies it per login.
type Google struct {
	oauth2.Config

	clientID string
	provider *oidc.Provider
}

func (g *Google) Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	return g.provider.Verifier(&oidc.Config{ClientID: g.clientID}).Verify(ctx, rawIDToken)
}

func NewGoogle(ctx context.Context, clientID, clientSecret string) (*Google, error) {
	provider, err := oidc.NewProvider(ctx, GoogleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discovering google provider: %w", err)
	}

	return &Google{
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		clientID: clientID,
		provider: provider,
	}, nil
}
