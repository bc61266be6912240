package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
)

// filePair serves an operator-provided certificate and key from disk.
type filePair struct {
	certFile, keyFile string
	logger            *slog.Logger
}

func newFilePair(certFile, keyFile string, logger *slog.Logger) (Manager, error) {
	if certFile == "" {
		return nil, fmt.Errorf("tls_cert_file is required when tls_mode=file")
	}
	if keyFile == "" {
		return nil, fmt.Errorf("tls_key_file is required when tls_mode=file")
	}

	info, err := os.Stat(keyFile)
	if err != nil {
		return nil, fmt.Errorf("key file not accessible: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return nil, fmt.Errorf("key file %s has mode %o, want 0600 or 0400", keyFile, perm)
	}

	// Load the pair once so a bad configuration fails startup, not the
	// first handshake.
	if _, err := tls.LoadX509KeyPair(certFile, keyFile); err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	return &filePair{certFile: certFile, keyFile: keyFile, logger: logger}, nil
}

// GetTLSConfig resolves the pair through reload on every handshake, so
// rotated certificates are picked up without a restart.
func (p *filePair) GetTLSConfig() (*tls.Config, error) {
	return &tls.Config{MinVersion: MinTLSVersion, GetCertificate: p.reload}, nil
}

func (p *filePair) reload(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	pair, err := tls.LoadX509KeyPair(p.certFile, p.keyFile)
	if err != nil {
		p.logger.Error("failed to reload certificate",
			slog.String("cert_file", p.certFile),
			slog.String("error", err.Error()))
		return nil, err
	}
	return &pair, nil
}

func (p *filePair) Description() string {
	return fmt.Sprintf("file (cert=%s, key=%s)", p.certFile, p.keyFile)
}
