package deviceid

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mikey-austin/tandem/internal/ports"
	"go.uber.org/zap"
)

// FileStore saves the device id under XDG_STATE_HOME or ~/.local/state.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path, or at the default state path when
// path is empty.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		var err error
		path, err = statePath()
		if err != nil {
			return nil, err
		}
	}
	return &FileStore{path: path}, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the stored id, or "" if none was saved yet.
func (s *FileStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Save persists id.
func (s *FileStore) Save(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(id+"\n"), 0o600)
}

func statePath() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "tandem", "device_id"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "tandem", "device_id"), nil
}

// Generator creates UUIDv4 device ids.
type Generator struct {
	// Random overrides the secure source, for tests.
	Random func() (uuid.UUID, error)
}

// NewID returns a UUIDv4 string. When the secure source fails it falls back
// to a non-cryptographic generator.
func (g Generator) NewID() string {
	random := g.Random
	if random == nil {
		random = uuid.NewRandom
	}
	id, err := random()
	if err != nil {
		return fallbackID()
	}
	return id.String()
}

func fallbackID() string {
	var id uuid.UUID
	for i := 0; i < len(id); i += 8 {
		v := rand.Uint64()
		for j := 0; j < 8; j++ {
			id[i+j] = byte(v >> (8 * j))
		}
	}
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id.String()
}

// GetOrCreate returns the stored device id, generating and saving one on
// first use. Storage failures are logged and yield an id that lives only
// for this process.
func GetOrCreate(log *zap.Logger, store ports.IdentityStore, gen Generator) string {
	if log == nil {
		log = zap.NewNop()
	}
	if store == nil {
		return gen.NewID()
	}
	id, err := store.Load()
	if err != nil {
		log.Warn("device id unreadable; using an ephemeral id", zap.Error(err))
		return gen.NewID()
	}
	if id != "" {
		return id
	}
	id = gen.NewID()
	if err := store.Save(id); err != nil {
		log.Warn("device id not persisted; using an ephemeral id", zap.Error(err))
	}
	return id
}

// DeviceClass labels the host for other devices.
func DeviceClass() string {
	switch runtime.GOOS {
	case "android", "ios":
		return "Mobile"
	default:
		return "Desktop"
	}
}

// DefaultName returns "<hostname> (<class>)".
func DefaultName() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "tandem"
	}
	return fmt.Sprintf("%s (%s)", host, DeviceClass())
}
