// Package auth extracts identity from the bearer token the hub is bound
// to, and verifies tokens on the hub server side.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// nameIDClaim is the legacy claim the marketplace backend stuffs the
// username into, alongside the standard sub/unique_name.
const nameIDClaim = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"

var ErrNoUsername = errors.New("token carries no username claim")

// UsernameFromToken parses the token without verifying the signature
// (the hub is the verifier) and returns the username claim. Checked in
// order: sub, unique_name, the legacy nameidentifier claim.
func UsernameFromToken(token string) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	return usernameFromClaims(claims)
}

// VerifyToken checks the HMAC signature and returns the username.
// Used by the hub server.
func VerifyToken(token, secret string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	return usernameFromClaims(claims)
}

// SignToken issues a token for username. Dev hub and tests only.
func SignToken(username, secret string) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         username,
		"unique_name": username,
	})
	return t.SignedString([]byte(secret))
}

func usernameFromClaims(claims jwt.MapClaims) (string, error) {
	for _, key := range []string{"sub", "unique_name", nameIDClaim} {
		if v, ok := claims[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, nil
			}
		}
	}
	return "", ErrNoUsername
}
