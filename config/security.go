package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/seisnet/cd11streams/errors"
)

const (
	maxConfigSize = 1 << 20
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

// validateConfigPath rejects paths that cannot name a YAML config file.
func validateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty config path", errors.ErrMissingConfig)
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("%w: path too long: %d > %d", errors.ErrInvalidConfig, len(path), maxPathLen)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return nil
	default:
		return fmt.Errorf("%w: only YAML config files allowed: %s", errors.ErrInvalidConfig, path)
	}
}

// safeReadFile reads a config file after checking its path, type and size.
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrMissingConfig, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", errors.ErrInvalidConfig, path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes > %d", errors.ErrInvalidConfig, info.Size(), maxConfigSize)
	}
	return os.ReadFile(path)
}

// envValue returns the trimmed value of key, rejecting oversized values and
// NUL bytes.
func envValue(key string) (string, bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false, nil
	}
	if len(v) > maxEnvVarLen {
		return "", false, fmt.Errorf("%w: environment variable %s too long", errors.ErrInvalidConfig, key)
	}
	if strings.ContainsRune(v, 0) {
		return "", false, fmt.Errorf("%w: null byte in environment variable %s", errors.ErrInvalidConfig, key)
	}
	return strings.TrimSpace(v), true, nil
}
