package target

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

const defaultFileExt = ".yaml"

// fileStore keeps the target in a config file. The file format is derived from the
// extension (yaml, json, toml, ...), files without extension are written as yaml.
type fileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the config file at path
func NewFileStore(path string) IStore {
	if filepath.Ext(path) == "" {
		path += defaultFileExt
	}
	return &fileStore{path: path}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see target.IStore)
// --------------------------------------------------------------------------

func (s *fileStore) Load() (Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := viper.New()
	v.SetConfigFile(s.path)

	if err := v.ReadInConfig(); err != nil {
		// no file yet means no target yet
		if errors.Is(err, fs.ErrNotExist) {
			return Target{}, nil
		}
		return Target{}, fmt.Errorf("failed to read target from %s: %w", s.path, err)
	}

	return New(v.GetString("host"), v.GetInt("port")), nil
}

func (s *fileStore) Save(t Target) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config dir %s: %w", dir, err)
		}
	}

	v := viper.New()
	v.Set("host", t.Host)
	v.Set("port", t.Port)

	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write target to %s: %w", s.path, err)
	}
	return nil
}
