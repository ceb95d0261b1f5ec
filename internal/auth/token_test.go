package auth

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestUsernameRoundTrip(t *testing.T) {
	token, err := SignToken("alice", "s3cret")
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	got, err := UsernameFromToken(token)
	if err != nil {
		t.Fatalf("UsernameFromToken: %v", err)
	}
	if got != "alice" {
		t.Errorf("got %q, want alice", got)
	}

	got, err = VerifyToken(token, "s3cret")
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if got != "alice" {
		t.Errorf("verified username %q, want alice", got)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _ := SignToken("alice", "s3cret")
	if _, err := VerifyToken(token, "other"); err == nil {
		t.Fatal("VerifyToken accepted wrong secret")
	}
}

func TestLegacyNameIDClaim(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		nameIDClaim: "bob",
	})
	signed, err := tok.SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := UsernameFromToken(signed)
	if err != nil {
		t.Fatalf("UsernameFromToken: %v", err)
	}
	if got != "bob" {
		t.Errorf("got %q, want bob", got)
	}
}

func TestNoUsernameClaim(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"aud": "x"})
	signed, _ := tok.SignedString([]byte("s3cret"))
	if _, err := UsernameFromToken(signed); err == nil || !strings.Contains(err.Error(), "username") {
		t.Fatalf("expected no-username error, got %v", err)
	}
}
