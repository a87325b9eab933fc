package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
)

// FileBackend keeps the state as one JSON document on disk. Save writes a
// sibling temp file and renames it over the live file so a crash mid-write
// leaves the previous state intact.
type FileBackend struct {
	Filename string
	log      hclog.Logger
}

// NewFileBackend returns a backend for the given path.
func NewFileBackend(filename string, logger hclog.Logger) *FileBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FileBackend{
		Filename: filename,
		log:      logger,
	}
}

// Load reads and decodes the state file.
func (fb *FileBackend) Load(_ context.Context) (*State, error) {
	data, err := os.ReadFile(fb.Filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error reading state file %s: %w", fb.Filename, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("error decoding state file %s: %w", fb.Filename, err)
	}
	return st.normalize(), nil
}

// Save replaces the state file with the encoded state.
func (fb *FileBackend) Save(_ context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("error encoding state: %w", err)
	}

	dir := filepath.Dir(fb.Filename)
	tmp, err := os.CreateTemp(dir, filepath.Base(fb.Filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temp state file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("error writing temp state file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("error syncing temp state file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("error closing temp state file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, fb.Filename); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("error moving %s to become active state file: %w", tmpPath, err)
	}

	fb.log.Trace("state file written", "path", fb.Filename, "bytes", len(data))
	return nil
}

// Close is a no-op; every Save is already on disk.
func (fb *FileBackend) Close() error {
	return nil
}
