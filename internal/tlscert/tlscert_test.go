package tlscert

import (
	"crypto/tls"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNewManagerUnknownMode(t *testing.T) {
	_, err := NewManager(Config{Mode: "sideways"}, discardLogger())
	if err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
	if !strings.Contains(err.Error(), "valid modes") {
		t.Errorf("error %q should list the valid modes", err)
	}
}

func TestAutoModeGeneratesAndReuses(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Mode: CertModeAuto, AutoCertDir: dir}

	mgr, err := NewManager(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if !strings.Contains(mgr.Description(), "self-signed") {
		t.Errorf("Description() = %q, want it to name the self-signed source", mgr.Description())
	}

	certPath := filepath.Join(dir, "server.crt")
	first, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatalf("generated certificate missing: %v", err)
	}

	// A second startup with the same hosts reuses the pair on disk.
	if _, err := NewManager(cfg, discardLogger()); err != nil {
		t.Fatalf("NewManager (reuse): %v", err)
	}
	second, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("certificate was regenerated even though the existing one still covers the hosts")
	}

	tlsCfg, err := mgr.GetTLSConfig()
	if err != nil {
		t.Fatalf("GetTLSConfig: %v", err)
	}
	if len(tlsCfg.Certificates) != 1 {
		t.Fatalf("got %d certificates, want 1", len(tlsCfg.Certificates))
	}
	if tlsCfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS 1.3", tlsCfg.MinVersion)
	}
}

func TestAutoModeRegeneratesWhenHostsChange(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewManager(Config{Mode: CertModeAuto, AutoCertDir: dir}, discardLogger()); err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	certPath := filepath.Join(dir, "server.crt")
	first, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		Mode:        CertModeAuto,
		AutoCertDir: dir,
		Hosts:       []string{"ispyb.example.org"},
	}
	if _, err := NewManager(cfg, discardLogger()); err != nil {
		t.Fatalf("NewManager (new host): %v", err)
	}
	second, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) == string(second) {
		t.Error("certificate should be regenerated when it does not cover a requested host")
	}
}

func TestFileModeRequiresPaths(t *testing.T) {
	_, err := NewManager(Config{Mode: CertModeFile}, discardLogger())
	if err == nil || !strings.Contains(err.Error(), "tls_cert_file") {
		t.Errorf("missing cert file should be reported, got %v", err)
	}

	_, err = NewManager(Config{Mode: CertModeFile, CertFile: "cert.pem"}, discardLogger())
	if err == nil || !strings.Contains(err.Error(), "tls_key_file") {
		t.Errorf("missing key file should be reported, got %v", err)
	}
}

func TestFileModeRejectsGroupReadableKey(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	if err := generateSelfSignedCert(certPath, keyPath, []string{"localhost"}); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(keyPath, 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Mode: CertModeFile, CertFile: certPath, KeyFile: keyPath}
	_, err := NewManager(cfg, discardLogger())
	if err == nil || !strings.Contains(err.Error(), "mode") {
		t.Errorf("group-readable key should be rejected, got %v", err)
	}
}

func TestFileModeReloadsPerHandshake(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	if err := generateSelfSignedCert(certPath, keyPath, []string{"localhost"}); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Mode: CertModeFile, CertFile: certPath, KeyFile: keyPath}
	mgr, err := NewManager(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	tlsCfg, err := mgr.GetTLSConfig()
	if err != nil {
		t.Fatalf("GetTLSConfig: %v", err)
	}
	if tlsCfg.GetCertificate == nil {
		t.Fatal("file mode should resolve certificates through GetCertificate")
	}
	cert, err := tlsCfg.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if cert == nil || len(cert.Certificate) == 0 {
		t.Error("GetCertificate returned an empty certificate")
	}
}
