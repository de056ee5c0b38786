package tandemd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for tandemd.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Modules ModulesConfig `toml:"modules"`
}

// ServerConfig defines shared server settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	LogSource bool       `toml:"log_source"`
	LogUTC    bool       `toml:"log_utc"`
	LogColor  bool       `toml:"log_color"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds the coordinator's MQTT credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
	Coordinator  CoordinatorConfig  `toml:"coordinator"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker. Accounts maps
// account names to the tokens devices log in with.
type EmbeddedMQTTConfig struct {
	Enabled        bool              `toml:"enabled"`
	Listen         string            `toml:"listen"`
	AllowAnonymous bool              `toml:"allow_anonymous"`
	Username       string            `toml:"username"`
	Password       string            `toml:"password"`
	TLSCA          string            `toml:"tls_ca"`
	TLSCert        string            `toml:"tls_cert"`
	TLSKey         string            `toml:"tls_key"`
	Accounts       map[string]string `toml:"accounts"`
}

// CoordinatorConfig configures the sync coordinator. Listen enables the
// WebSocket front; Accounts authorises its clients.
type CoordinatorConfig struct {
	Enabled          bool              `toml:"enabled"`
	Listen           string            `toml:"listen"`
	HandoffTimeoutMS int64             `toml:"handoff_timeout_ms"`
	Accounts         map[string]string `toml:"accounts"`
}

// EmbeddedListen returns the broker address, defaulting to loopback.
func (c EmbeddedMQTTConfig) ListenAddr() string {
	if c.Listen == "" {
		return "127.0.0.1:1883"
	}
	return c.Listen
}

// TLSEnabled reports whether any broker TLS path is set.
func (c EmbeddedMQTTConfig) TLSEnabled() bool {
	return c.TLSCert != "" || c.TLSKey != "" || c.TLSCA != ""
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "tandem", "tandemd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tandem", "tandemd.toml"), nil
}
