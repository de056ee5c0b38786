package mqttserver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTLSConfigEmpty(t *testing.T) {
	cfg, err := TLSConfig("", "", "")
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config, got %v %v", cfg, err)
	}
}

func TestTLSConfigErrors(t *testing.T) {
	if _, err := TLSConfig("", "cert.pem", ""); err == nil {
		t.Fatalf("expected error for cert without key")
	}
	if _, err := TLSConfig(filepath.Join(t.TempDir(), "missing.pem"), "", ""); err == nil {
		t.Fatalf("expected error for missing ca")
	}
	bad := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(bad, []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := TLSConfig(bad, "", ""); err == nil || !strings.Contains(err.Error(), "CA bundle") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestTruncatePayload(t *testing.T) {
	long := strings.Repeat("x", 3000)
	got := truncatePayload([]byte(long))
	if len(got) != 2048+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected truncation length %d", len(got))
	}
	if truncatePayload([]byte("short")) != "short" {
		t.Fatalf("short payload should be unchanged")
	}
}
