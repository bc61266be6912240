// Command jwks-server runs a local OIDC issuer for development.
//
// It serves the discovery document and JWKS that the subgraph's bearer-token
// verifier fetches when auth.enabled=true, and generates the RSA signing key
// on first run. Tokens are minted separately by scripts/jwt-mint, which signs
// with the same key, so minted tokens verify against this server without
// further setup. The server speaks plain HTTP only: the verifier accepts
// http:// issuers with a startup warning, and keeping TLS out of the loop
// means no self-signed roots to distribute to clients.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
)

const (
	signingKeyFile = "oidc_signing.pem"
	signingKeyBits = 2048
)

// jwk carries the subset of RFC 7517 an RSA signing key needs.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// jwks is the document served at /jwks.
type jwks struct {
	Keys []jwk `json:"keys"`
}

type discoveryDocument struct {
	Issuer     string   `json:"issuer"`
	JWKSURI    string   `json:"jwks_uri"`
	Algorithms []string `json:"id_token_signing_alg_values_supported"`
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	issuer := flag.String("issuer", "http://localhost:9000", "Issuer URL, must match auth.issuer_url in the subgraph config")
	keyDir := flag.String("key-dir", ".auth", "Directory holding the signing key, created on first run")
	kid := flag.String("kid", "ispyb-dev", "Key ID advertised in the JWKS")
	flag.Parse()

	key, err := ensureSigningKey(*keyDir)
	if err != nil {
		fatal(err)
	}

	jwksJSON, err := buildJWKS(&key.PublicKey, *kid)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("dev OIDC issuer listening on http://%s (issuer %s)\n", *addr, *issuer)
	fmt.Fprintln(os.Stderr, "warning: development issuer, plain HTTP, not for production")
	fatal(http.ListenAndServe(*addr, newMux(*issuer, jwksJSON)))
}

func newMux(issuer string, jwksJSON []byte) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(discoveryDocument{
			Issuer:     issuer,
			JWKSURI:    issuer + "/jwks",
			Algorithms: []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// The key regenerates whenever key-dir is wiped, so verifiers must
		// not cache this response.
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(jwksJSON)
	})
	return mux
}

// ensureSigningKey loads the signing key from dir, generating it on first
// run. The server owns the key directory; jwt-mint only reads from it.
func ensureSigningKey(dir string) (*rsa.PrivateKey, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	path := filepath.Join(dir, signingKeyFile)
	data, err := os.ReadFile(path)
	if err == nil {
		return parseSigningKey(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, signingKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signing key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(path, keyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write signing key: %w", err)
	}

	fmt.Printf("generated signing key %s\n", path)
	return key, nil
}

func parseSigningKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode signing key PEM")
	}

	// Accept PKCS#1 too so hand-supplied keys work.
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key is %T, want RSA", parsed)
	}
	return key, nil
}

func buildJWKS(key *rsa.PublicKey, kid string) ([]byte, error) {
	entry := jwk{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
	return json.Marshal(jwks{Keys: []jwk{entry}})
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
