// Command jwt-mint prints an RS256 bearer token for exercising the subgraph
// with auth.enabled=true. It signs with the key scripts/jwks-server generates,
// so the token verifies against that server's JWKS:
//
//	TOKEN=$(go run ./scripts/jwt-mint)
//	curl -H "Authorization: Bearer $TOKEN" -d '{"query":"..."}' localhost:8080/
package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type mintOptions struct {
	Issuer   string
	Audience []string
	Subject  string
	Name     string
	KID      string
	Lifetime time.Duration
}

func main() {
	defaultSubject := "dev-user"
	if current, err := user.Current(); err == nil {
		defaultSubject = current.Username
	}

	keyPath := flag.String("key", ".auth/oidc_signing.pem", "Path to the RSA signing key (PEM)")
	issuer := flag.String("issuer", "http://localhost:9000", "iss claim, must match auth.issuer_url in the subgraph config")
	audience := flag.String("audience", "ispyb-graphql", "aud claim value(s), comma-separated")
	subject := flag.String("subject", defaultSubject, "sub claim, typically the facility login")
	name := flag.String("name", "", "name claim (optional)")
	kid := flag.String("kid", "ispyb-dev", "Key ID, must match the JWKS entry")
	lifetime := flag.Duration("expires", 8*time.Hour, "Token lifetime")
	flag.Parse()

	key, err := loadSigningKey(*keyPath)
	if err != nil {
		fatal(err)
	}

	signed, err := mintToken(key, mintOptions{
		Issuer:   *issuer,
		Audience: commaSeparated(*audience),
		Subject:  *subject,
		Name:     *name,
		KID:      *kid,
		Lifetime: *lifetime,
	})
	if err != nil {
		fatal(err)
	}

	fmt.Println(signed)
}

func mintToken(key *rsa.PrivateKey, opts mintOptions) (string, error) {
	if len(opts.Audience) == 0 {
		return "", errors.New("audience is required")
	}
	if opts.Lifetime <= 0 {
		return "", errors.New("expires must be greater than 0")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": opts.Issuer,
		"sub": opts.Subject,
		"aud": opts.Audience,
		"iat": now.Unix(),
		"exp": now.Add(opts.Lifetime).Unix(),
		// Backdated a minute so the token survives small clock skews.
		"nbf": now.Add(-1 * time.Minute).Unix(),
	}
	if opts.Name != "" {
		claims["name"] = opts.Name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = opts.KID
	return token.SignedString(key)
}

func loadSigningKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("signing key not found at %s, run scripts/jwks-server once to create it", path)
		}
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode signing key PEM")
	}

	// Accept PKCS#1 too so hand-supplied keys work.
	if pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes); pkcs1Err == nil {
		return pkcs1Key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key is %T, want RSA", parsed)
	}
	return rsaKey, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "jwt-mint:", err)
	os.Exit(1)
}

func commaSeparated(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
