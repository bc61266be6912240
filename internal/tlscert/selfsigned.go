package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// certValidity is how long a generated certificate lasts. An expired one is
// replaced on the next startup.
const certValidity = 365 * 24 * time.Hour

// autoCert owns a self-signed pair on disk, regenerating it when it is
// missing, expired, or no longer covers the requested hosts.
type autoCert struct {
	certPath, keyPath string
}

func newAutoCert(dir string, hosts []string, logger *slog.Logger) (Manager, error) {
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1", "::1"}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	ac := &autoCert{
		certPath: filepath.Join(dir, "server.crt"),
		keyPath:  filepath.Join(dir, "server.key"),
	}
	if reusableCert(ac.certPath, ac.keyPath, hosts) {
		logger.Info("using existing self-signed certificate",
			slog.String("cert_path", ac.certPath))
		return ac, nil
	}

	logger.Info("generating self-signed certificate",
		slog.String("cert_path", ac.certPath),
		slog.Any("hosts", hosts))
	if err := generateSelfSignedCert(ac.certPath, ac.keyPath, hosts); err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	logger.Warn("self-signed certificate generated, not suitable for production",
		slog.String("cert_path", ac.certPath))

	return ac, nil
}

func (m *autoCert) GetTLSConfig() (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(m.certPath, m.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load self-signed certificate: %w", err)
	}
	cfg := &tls.Config{MinVersion: MinTLSVersion}
	cfg.Certificates = append(cfg.Certificates, pair)
	return cfg, nil
}

func (m *autoCert) Description() string {
	return fmt.Sprintf("self-signed (cert=%s), development only", m.certPath)
}

func generateSelfSignedCert(certPath, keyPath string, hosts []string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	// NotBefore is backdated so a fresh certificate survives small clock skew.
	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "localhost",
			Organization: []string{"ISPyB GraphQL (Self-Signed)"},
		},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range hosts {
		ip := net.ParseIP(host)
		if ip == nil {
			template.DNSNames = append(template.DNSNames, host)
			continue
		}
		template.IPAddresses = append(template.IPAddresses, ip)
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}

	if err := writePEM(certPath, "CERTIFICATE", certDER, 0644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := writePEM(keyPath, "EC PRIVATE KEY", keyDER, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	return os.WriteFile(path, data, perm)
}

// reusableCert reports whether the on-disk pair still covers the requested
// hosts inside its validity window. Anything unreadable or stale gets
// regenerated; the auto cert directory belongs to the server.
func reusableCert(certPath, keyPath string, hosts []string) bool {
	raw, err := os.ReadFile(certPath)
	if err != nil {
		return false
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		return false
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false
	}
	if t := time.Now(); t.Before(cert.NotBefore) || t.After(cert.NotAfter) {
		return false
	}
	if !coversHosts(cert, hosts) {
		return false
	}
	_, err = tls.LoadX509KeyPair(certPath, keyPath)
	return err == nil
}

// coversHosts checks that every requested host appears in the certificate's
// SANs. Extra SANs are fine.
func coversHosts(cert *x509.Certificate, hosts []string) bool {
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			if !slices.ContainsFunc(cert.IPAddresses, ip.Equal) {
				return false
			}
			continue
		}
		if !slices.Contains(cert.DNSNames, host) {
			return false
		}
	}
	return true
}
