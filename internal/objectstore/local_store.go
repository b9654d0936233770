package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/tts/ttsutils"
)

const localFilePermissions = 0o600

// LocalStore keeps objects as files in one directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir when it does not exist.
func NewLocalStore(dir string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: storage directory cannot be empty", core.ErrValidation)
	}

	err := ttsutils.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare storage directory: %w", err)
	}

	return &LocalStore{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Download reads the file stored under key.
func (s *LocalStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: object '%s'", core.ErrNotFound, key)
		}

		return nil, fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	return data, nil
}

// Upload writes data under key. The file appears atomically.
func (s *LocalStore) Upload(_ context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for '%s': %w", key, err)
	}

	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()

	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr == nil {
		writeErr = os.Chmod(tempName, localFilePermissions)
	}

	if writeErr == nil {
		writeErr = os.Rename(tempName, path)
	}

	if writeErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to write object '%s': %w", key, writeErr)
	}

	return nil
}

// Delete removes the file stored under key. A missing file is not an error.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	removeErr := os.Remove(path)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object '%s': %w", key, removeErr)
	}

	return nil
}

// path rejects keys that are not plain file names.
func (s *LocalStore) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || ttsutils.SanitizeFilename(key) != key {
		return "", fmt.Errorf("%w: invalid object key %q", core.ErrValidation, key)
	}

	return filepath.Join(s.dir, key), nil
}
