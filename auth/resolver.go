package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/okats/boardroom/model"
)

var (
	ErrNoCredential      = errors.New("no credential supplied")
	ErrInvalidCredential = errors.New("credential is invalid or expired")
)

// Claims carried inside a signed credential. ID and Username mirror the
// identity the token was issued for.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Resolver verifies and issues bearer credentials under a pre-shared HMAC
// secret. Verification is pure: no lookups, no side effects.
type Resolver struct {
	secret   []byte
	lifetime time.Duration
}

func NewResolver(secret []byte, lifetime time.Duration) *Resolver {
	return &Resolver{
		secret:   secret,
		lifetime: lifetime,
	}
}

// Resolve validates the credential and returns the identity it carries.
// An optional "Bearer " prefix is accepted, as issued by Issue.
func (r *Resolver) Resolve(credential string) (model.UserIdentity, error) {
	if credential == "" {
		return model.UserIdentity{}, ErrNoCredential
	}
	credential = strings.TrimPrefix(credential, "Bearer ")

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return model.UserIdentity{}, errors.Join(ErrInvalidCredential, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ID == "" || claims.Username == "" {
		return model.UserIdentity{}, ErrInvalidCredential
	}
	return model.UserIdentity{ID: claims.ID, Name: claims.Username}, nil
}

// Issue signs a credential for the identity, returned with the "Bearer "
// prefix clients send back on connect.
func (r *Resolver) Issue(identity model.UserIdentity) (string, error) {
	now := time.Now()
	claims := &Claims{
		ID:       identity.ID,
		Username: identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.lifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", err
	}
	return "Bearer " + signed, nil
}
