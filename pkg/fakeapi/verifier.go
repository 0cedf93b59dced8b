package fakeapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/fxsound/soundstudio/pkg/session"
	"github.com/golang-jwt/jwt/v4"
)

// CredentialVerifier turns a Google ID token into the user it identifies.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (session.User, error)
}

// InsecureCredentialVerifier trusts the claims of any well-formed JWT. Only
// for local development and tests.
type InsecureCredentialVerifier struct{}

func (InsecureCredentialVerifier) Verify(_ context.Context, credential string) (session.User, error) {
	claims := jwt.MapClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(credential, claims)
	if err != nil {
		return session.User{}, fmt.Errorf("parsing credential: %w", err)
	}

	return userFromClaims(claims)
}

type OIDCCredentialVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func (v *OIDCCredentialVerifier) Verify(ctx context.Context, credential string) (session.User, error) {
	token, err := v.verifier.Verify(ctx, credential)
	if err != nil {
		return session.User{}, fmt.Errorf("verifying credential: %w", err)
	}

	claims := jwt.MapClaims{}

	err = token.Claims(&claims)
	if err != nil {
		return session.User{}, fmt.Errorf("reading credential claims: %w", err)
	}

	return userFromClaims(claims)
}

func NewOIDCCredentialVerifier(verifier *oidc.IDTokenVerifier) *OIDCCredentialVerifier {
	return &OIDCCredentialVerifier{
		verifier: verifier,
	}
}

// NewGoogleCredentialVerifier accepts ID tokens Google issued to clientID.
func NewGoogleCredentialVerifier(ctx context.Context, clientID string) (*OIDCCredentialVerifier, error) {
	provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("discovering google provider: %w", err)
	}

	return NewOIDCCredentialVerifier(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

func userFromClaims(claims jwt.MapClaims) (session.User, error) {
	email, _ := claims["email"].(string)
	if email == "" {
		return session.User{}, errors.New("credential has no email claim")
	}

	name, _ := claims["name"].(string)
	if name == "" {
		name = email
	}

	picture, _ := claims["picture"].(string)

	return session.User{
		Name:    name,
		Email:   email,
		Picture: picture,
	}, nil
}
