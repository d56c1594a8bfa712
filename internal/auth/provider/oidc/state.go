package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/gotosleep/authlogic-openid/internal/utils"

	"github.com/golang-jwt/jwt/v5"
)

// stateClaims travel through the provider in the OAuth state parameter.
// The return target rides along so Complete can repeat the exact
// redirect_uri during code exchange without server-side session state.
type stateClaims struct {
	ReturnTo string `json:"ret"`
	jwt.RegisteredClaims
}

func (c *Client) signState(id, returnTo string) (string, error) {
	now := time.Now()
	claims := stateClaims{
		ReturnTo: returnTo,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    c.cfg.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.PendingTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.StateSecret)
}

func (c *Client) parseState(raw string) (*stateClaims, error) {
	if raw == "" {
		return nil, errors.New("missing state")
	}

	var claims stateClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return c.cfg.StateSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.cfg.Name),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, errors.New("state without id")
	}
	return &claims, nil
}

// newPKCE returns an RFC 7636 verifier and its S256 challenge.
func newPKCE() (verifier, challenge string, err error) {
	verifier, err = utils.RandomString(32)
	if err != nil {
		return "", "", err
	}
	hash := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(hash[:]), nil
}
