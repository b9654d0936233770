// Package ttsutils provides file and path helpers shared by the synthesis backends, the
// artifact stores and the HTTP surface.
package ttsutils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variable names used for path resolution.
const (
	envCacheDir = "CACHE_DIR"
)

// Common application directory and path constants.
const (
	appName                = "tts-orchestrator"
	cacheDirName           = "cache"
	modelsDirName          = "models"
	dotCache               = ".cache"
	defaultDirPermissions  = 0o750
	defaultFilePermissions = 0o600
	invalidCharReplacement = "_"
	referencePattern       = "tts-reference-*"
)

// File extension constants.
const (
	extAAC  = ".aac"
	extFLAC = ".flac"
	extM4A  = ".m4a"
	extMP3  = ".mp3"
	extOGG  = ".ogg"
	extWAV  = ".wav"
)

// Error message and format string constants.
const (
	errModelNotFoundMsg               = "model not found"
	errUnsupportedAudioMsg            = "unsupported audio file type"
	errFmtFailedToCreateDir           = "failed to create directory %s: %w"
	errFmtCouldNotResolveAbsolutePath = "could not resolve absolute path for %q: %w"
	errFmtErrorCheckingModelPath      = "error checking model path %q: %w"
	errFmtModelNotFound               = "%w: %s"
	errFmtUnsupportedAudio            = "%w: %q"
)

var (
	// ErrModelNotFound is returned when a model file cannot be located.
	ErrModelNotFound = errors.New(errModelNotFoundMsg)
	// ErrUnsupportedAudio is returned when an uploaded reference has an unknown extension.
	ErrUnsupportedAudio = errors.New(errUnsupportedAudioMsg)
)

// GetCacheDir returns the application's cache directory, respecting the CACHE_DIR override
// and falling back to a user-based cache directory.
func GetCacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, cacheDirName)
	}

	return filepath.Join(homeDir, dotCache, appName)
}

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// resolveSinglePath reports the absolute path when path exists. A missing path is not an
// error; any other stat failure is.
func resolveSinglePath(path string) (resolvedPath string, found bool, err error) {
	_, statErr := os.Stat(path)
	if statErr == nil {
		absPath, errAbs := filepath.Abs(path)
		if errAbs != nil {
			return "", false, fmt.Errorf(errFmtCouldNotResolveAbsolutePath, path, errAbs)
		}

		return absPath, true, nil
	} else if !os.IsNotExist(statErr) {
		return "", false, fmt.Errorf(errFmtErrorCheckingModelPath, path, statErr)
	}

	return "", false, nil
}

// GetModelPath resolves a model file by checking, in order, the name itself, a local
// models directory and the models directory under the cache.
func GetModelPath(modelName string) (string, error) {
	candidatePaths := []string{
		modelName,
		filepath.Join(modelsDirName, modelName),
		filepath.Join(GetCacheDir(), modelsDirName, modelName),
	}

	for _, path := range candidatePaths {
		resolvedPath, found, err := resolveSinglePath(path)
		if err != nil {
			return "", err
		} else if found {
			return resolvedPath, nil
		}
	}

	return "", fmt.Errorf(errFmtModelNotFound, ErrModelNotFound, modelName)
}

// IsValidAudioFile checks if a filename has a common audio file extension.
func IsValidAudioFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extWAV, extMP3, extFLAC, extOGG, extM4A, extAAC:
		return true
	default:
		return false
	}
}

// SanitizeFilename removes or replaces characters that are invalid in most filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}

// WriteTempReference stores uploaded reference audio in a temporary file that keeps the
// upload's extension, and returns its path. The caller owns the file.
func WriteTempReference(filename string, data []byte) (string, error) {
	if !IsValidAudioFile(filename) {
		return "", fmt.Errorf(errFmtUnsupportedAudio, ErrUnsupportedAudio, filename)
	}

	tempFile, err := os.CreateTemp("", referencePattern+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", fmt.Errorf("failed to create reference file: %w", err)
	}

	path := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()

	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr == nil {
		writeErr = os.Chmod(path, defaultFilePermissions)
	}

	if writeErr != nil {
		_ = os.Remove(path)

		return "", fmt.Errorf("failed to write reference file: %w", writeErr)
	}

	return path, nil
}
