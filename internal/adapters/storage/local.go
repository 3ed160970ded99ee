package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/target/intake-pipeline/internal/core"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

// LocalStore writes objects beneath a directory. It serves development
// setups without S3.
type LocalStore struct {
	dir     string
	baseURL string
}

var _ core.ObjectStore = (*LocalStore)(nil)

// NewLocalStore creates a LocalStore rooted at dir. URLs are baseURL + "/" + key.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("local storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store implements core.ObjectStore.
func (l *LocalStore) Store(ctx context.Context, key string, body []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperrors.Terminal(nil, fmt.Sprintf("invalid object key %q", key))
	}

	path := filepath.Join(l.dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", apperrors.Transient(err, "create object directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o640); err != nil {
		return "", apperrors.Transient(err, "write object")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", apperrors.Transient(err, "write object")
	}
	return l.baseURL + "/" + filepath.ToSlash(clean), nil
}
