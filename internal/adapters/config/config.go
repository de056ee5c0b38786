package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mikey-austin/tandem/internal/core"
)

// Config holds device configuration from config.toml.
type Config struct {
	Coordinator Coordinator `toml:"coordinator"`
	Device      Device      `toml:"device"`
	Catalog     Catalog     `toml:"catalog"`
	Renderer    Renderer    `toml:"renderer"`
	Sync        Sync        `toml:"sync"`
	Log         Log         `toml:"log"`
}

// Coordinator selects the transport and credentials.
type Coordinator struct {
	Transport string `toml:"transport"`
	URL       string `toml:"url"`
	Account   string `toml:"account"`
	Token     string `toml:"token"`
	TopicBase string `toml:"topic_base"`
	TLSCA     string `toml:"tls_ca"`
	TLSCert   string `toml:"tls_cert"`
	TLSKey    string `toml:"tls_key"`
}

// Device names this device.
type Device struct {
	Name   string `toml:"name"`
	IDPath string `toml:"id_path"`
}

// Catalog selects the track metadata source.
type Catalog struct {
	Kind      string   `toml:"kind"`
	BaseURL   string   `toml:"base_url"`
	Token     string   `toml:"token"`
	Feeds     []string `toml:"feeds"`
	CacheSize int      `toml:"cache_size"`
	TimeoutMS int64    `toml:"timeout_ms"`
}

// Renderer selects the audio output.
type Renderer struct {
	Kind     string `toml:"kind"`
	Pipeline string `toml:"pipeline"`
	Device   string `toml:"device"`
}

// Sync overrides the sync timings. Zero keeps the default.
type Sync struct {
	SampleIntervalMS      int64 `toml:"sample_interval_ms"`
	InterpolateIntervalMS int64 `toml:"interpolate_interval_ms"`
	DriftThresholdMS      int64 `toml:"drift_threshold_ms"`
	BroadcastIntervalMS   int64 `toml:"broadcast_interval_ms"`
	SeekSettleMS          int64 `toml:"seek_settle_ms"`
	VolumeDebounceMS      int64 `toml:"volume_debounce_ms"`
	EchoWindowMS          int64 `toml:"echo_window_ms"`
	HandoffTimeoutMS      int64 `toml:"handoff_timeout_ms"`
	ReconnectIntervalMS   int64 `toml:"reconnect_interval_ms"`
}

// Log configures the CLI logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Coordinator: Coordinator{Transport: "ws", URL: "ws://127.0.0.1:8080/ws"},
		Catalog:     Catalog{Kind: "http", CacheSize: 256, TimeoutMS: 10000},
		Renderer:    Renderer{Kind: "sim"},
		Log:         Log{Level: "warn"},
	}
}

// Load reads path, or the default location when path is empty. A missing
// file yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return Config{}, err
		}
	}

	cfg := Default()
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultPath returns $XDG_CONFIG_HOME/tandem/config.toml.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "tandem", "config.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tandem", "config.toml"), nil
}

// SyncConfig converts the overrides into core timings.
func (s Sync) SyncConfig() core.SyncConfig {
	ms := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	return core.SyncConfig{
		SampleInterval:      ms(s.SampleIntervalMS),
		InterpolateInterval: ms(s.InterpolateIntervalMS),
		DriftThreshold:      ms(s.DriftThresholdMS),
		BroadcastInterval:   ms(s.BroadcastIntervalMS),
		SeekSettle:          ms(s.SeekSettleMS),
		VolumeDebounce:      ms(s.VolumeDebounceMS),
		EchoWindow:          ms(s.EchoWindowMS),
		HandoffTimeout:      ms(s.HandoffTimeoutMS),
		ReconnectInterval:   ms(s.ReconnectIntervalMS),
	}.WithDefaults()
}
