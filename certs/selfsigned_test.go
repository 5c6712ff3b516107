package certs

import (
	"crypto/x509"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	info, err := Generate(time.Hour)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	cert, err := x509.ParseCertificate(info.TLSCert.Certificate[0])
	if err != nil {
		t.Fatalf("parsing generated certificate: %v", err)
	}
	if cert.Subject.CommonName != "reframe" {
		t.Errorf("common name: got %q, want %q", cert.Subject.CommonName, "reframe")
	}
	if time.Until(cert.NotAfter) > time.Hour {
		t.Errorf("validity exceeds requested hour: NotAfter=%v", cert.NotAfter)
	}
	if info.FingerprintBase64() == "" {
		t.Error("fingerprint should not be empty")
	}
}

func TestGenerateDefaultValidity(t *testing.T) {
	t.Parallel()

	info, err := Generate(0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if until := time.Until(info.NotAfter); until < 13*24*time.Hour || until > 14*24*time.Hour {
		t.Errorf("default validity: NotAfter in %v, want ~14 days", until)
	}
}
