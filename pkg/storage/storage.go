// Package storage keeps uploaded files on the local filesystem, optionally
// encrypted at rest with age.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/FACorreiaa/split-budget/pkg/config"
)

var (
	ErrNotFound   = errors.New("file not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Storage defines the interface for file storage operations. Keys are
// slash separated relative paths such as "imports/<user>/<id>.csv".
type Storage interface {
	// Save stores the content of r under key, replacing any previous file.
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	// Get opens the file stored under key. It returns ErrNotFound when missing.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the file. Deleting a missing file is not an error.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// New creates the local backend, wrapped in age encryption when a
// recipient is configured.
func New(cfg config.StorageConfig) (Storage, error) {
	local, err := NewLocalStorage(cfg.LocalPath)
	if err != nil {
		return nil, err
	}
	if cfg.AgeRecipient == "" {
		return local, nil
	}
	return NewEncrypted(local, cfg.AgeRecipient, cfg.AgeIdentity)
}

// CleanKey validates key and returns it in canonical form.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.ContainsAny(key, "\\\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
