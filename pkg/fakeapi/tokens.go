package fakeapi

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"

	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevokedToken = errors.New("token has been revoked")
)

type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// TokenIssuer signs and checks the HS256 token pair handed out at login.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	mu      sync.Mutex
	issued  map[string]string
	revoked map[string]struct{}
}

func (i *TokenIssuer) Issue(subject, typ string) (string, error) {
	ttl := i.accessTTL
	if typ == TypeRefresh {
		ttl = i.refreshTTL
	}

	now := time.Now()
	id := uuid.New().String()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: typ,
	}).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", typ, err)
	}

	i.mu.Lock()
	i.issued[id] = typ
	i.mu.Unlock()

	return signed, nil
}

// Subject validates raw as an unrevoked token of the given type and returns
// its subject.
func (i *TokenIssuer) Subject(raw, typ string) (string, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return i.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Type != typ {
		return "", fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, typ, claims.Type)
	}

	i.mu.Lock()
	_, revoked := i.revoked[claims.ID]
	i.mu.Unlock()

	if revoked {
		return "", ErrRevokedToken
	}

	return claims.Subject, nil
}

// Revoke invalidates every token of the given type issued so far.
func (i *TokenIssuer) Revoke(typ string) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	n := 0

	for id, t := range i.issued {
		if t != typ {
			continue
		}

		i.revoked[id] = struct{}{}
		delete(i.issued, id)
		n++
	}

	return n
}

func NewTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL == 0 {
		accessTTL = DefaultAccessTTL
	}

	if refreshTTL == 0 {
		refreshTTL = DefaultRefreshTTL
	}

	return &TokenIssuer{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issued:     map[string]string{},
		revoked:    map[string]struct{}{},
	}
}
