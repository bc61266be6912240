package main

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMintTokenVerifiesAndCarriesClaims(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	signed, err := mintToken(key, mintOptions{
		Issuer:   "http://localhost:9000",
		Audience: []string{"ispyb-graphql"},
		Subject:  "abc12345",
		Name:     "Ada Lovelace",
		KID:      "ispyb-dev",
		Lifetime: 8 * time.Hour,
	})
	if err != nil {
		t.Fatalf("mintToken: %v", err)
	}

	claims := parseClaims(t, signed, &key.PublicKey)
	if got := claims["iss"]; got != "http://localhost:9000" {
		t.Errorf("iss = %v, want http://localhost:9000", got)
	}
	if got := claims["sub"]; got != "abc12345" {
		t.Errorf("sub = %v, want abc12345", got)
	}
	if got := claims["name"]; got != "Ada Lovelace" {
		t.Errorf("name = %v, want Ada Lovelace", got)
	}

	aud, ok := claims["aud"].([]interface{})
	if !ok || len(aud) != 1 || aud[0] != "ispyb-graphql" {
		t.Errorf("aud = %#v, want [ispyb-graphql]", claims["aud"])
	}

	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)
	if got := time.Duration(exp-iat) * time.Second; got != 8*time.Hour {
		t.Errorf("lifetime = %s, want 8h", got)
	}
}

func TestMintTokenOmitsEmptyName(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	signed, err := mintToken(key, mintOptions{
		Issuer:   "http://localhost:9000",
		Audience: []string{"ispyb-graphql"},
		Subject:  "abc12345",
		KID:      "ispyb-dev",
		Lifetime: time.Hour,
	})
	if err != nil {
		t.Fatalf("mintToken: %v", err)
	}

	claims := parseClaims(t, signed, &key.PublicKey)
	if _, present := claims["name"]; present {
		t.Error("empty name option still produced a name claim")
	}
}

func TestMintTokenRejectsBadOptions(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	if _, err := mintToken(key, mintOptions{Audience: nil, Lifetime: time.Hour}); err == nil {
		t.Error("expected an error for an empty audience")
	}
	if _, err := mintToken(key, mintOptions{Audience: []string{"ispyb-graphql"}, Lifetime: 0}); err == nil {
		t.Error("expected an error for a zero lifetime")
	}
}

func parseClaims(t *testing.T, minted string, pub *rsa.PublicKey) jwt.MapClaims {
	t.Helper()

	keyFn := func(*jwt.Token) (interface{}, error) { return pub, nil }
	token, err := jwt.Parse(minted, keyFn, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		t.Fatalf("parsing minted token: %v", err)
	}
	if !token.Valid {
		t.Fatal("minted token failed validation")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatalf("claims are %T, want jwt.MapClaims", token.Claims)
	}
	return claims
}
