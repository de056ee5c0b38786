package tandemd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "tandemd.toml")
	data := []byte("" +
		"[server]\n" +
		"broker = \"tcp://127.0.0.1:1883\"\n" +
		"identity = \"tandemd-test\"\n" +
		"log_format = \"json\"\n" +
		"\n" +
		"[server.auth]\n" +
		"user = \"tandemd\"\n" +
		"pass = \"secret\"\n" +
		"\n" +
		"[modules.embedded_mqtt]\n" +
		"enabled = true\n" +
		"username = \"tandemd\"\n" +
		"password = \"secret\"\n" +
		"\n" +
		"[modules.embedded_mqtt.accounts]\n" +
		"family = \"f-token\"\n" +
		"\n" +
		"[modules.coordinator]\n" +
		"enabled = true\n" +
		"listen = \":8080\"\n" +
		"handoff_timeout_ms = 1500\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Broker != "tcp://127.0.0.1:1883" || cfg.Server.Auth.User != "tandemd" || cfg.Server.LogFormat != "json" {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if !cfg.Modules.EmbeddedMQTT.Enabled || cfg.Modules.EmbeddedMQTT.Accounts["family"] != "f-token" {
		t.Fatalf("unexpected broker config %+v", cfg.Modules.EmbeddedMQTT)
	}
	if cfg.Modules.EmbeddedMQTT.ListenAddr() != "127.0.0.1:1883" || cfg.Modules.EmbeddedMQTT.TLSEnabled() {
		t.Fatalf("unexpected broker defaults")
	}
	if !cfg.Modules.Coordinator.Enabled || cfg.Modules.Coordinator.HandoffTimeoutMS != 1500 || cfg.Modules.Coordinator.Listen != ":8080" {
		t.Fatalf("unexpected coordinator config %+v", cfg.Modules.Coordinator)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatalf("expected error for directory")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("default config path: %v", err)
	}
	if path != filepath.Join("/tmp/xdg", "tandem", "tandemd.toml") {
		t.Fatalf("unexpected path %s", path)
	}
}
