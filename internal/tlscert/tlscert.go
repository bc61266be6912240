// Package tlscert provides TLS material for the HTTPS listener. File mode
// serves operator-provided certificates and reloads them on each handshake;
// auto mode keeps a self-signed development certificate on disk.
package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
)

// MinTLSVersion applies to every listener this package configures.
const MinTLSVersion = tls.VersionTLS13

// CertMode selects how the server obtains its certificate.
type CertMode string

const (
	// CertModeFile serves the PEM pair named by CertFile and KeyFile.
	CertModeFile CertMode = "file"

	// CertModeAuto generates and reuses a self-signed pair under AutoCertDir.
	CertModeAuto CertMode = "auto"
)

// Config holds certificate source settings. Only the fields belonging to the
// selected Mode are consulted.
type Config struct {
	Mode CertMode

	CertFile string
	KeyFile  string

	AutoCertDir string
	Hosts       []string
}

// Manager hands the http.Server its tls.Config.
type Manager interface {
	GetTLSConfig() (*tls.Config, error)

	// Description names the certificate source for startup logs.
	Description() string
}

// NewManager builds a certificate manager for the configured mode.
func NewManager(cfg Config, logger *slog.Logger) (Manager, error) {
	switch cfg.Mode {
	case CertModeAuto:
		return newAutoCert(cfg.AutoCertDir, cfg.Hosts, logger)
	case CertModeFile:
		return newFilePair(cfg.CertFile, cfg.KeyFile, logger)
	}
	return nil, fmt.Errorf("unsupported TLS mode: %s (valid modes: file, auto)", cfg.Mode)
}
