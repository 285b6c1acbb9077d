package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidKey = errors.New("object key escapes base path")

// FileStore writes objects below a local directory. Intended for
// development and single-node installs.
type FileStore struct {
	basePath string
}

func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("create object directory: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (f *FileStore) Backend() string {
	return "file"
}

// Path returns where key is stored.
func (f *FileStore) Path(key string) (string, error) {
	path := filepath.Join(f.basePath, filepath.FromSlash(key))
	rel, err := filepath.Rel(f.basePath, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return path, nil
}

func (f *FileStore) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := f.Path(key)
	if err != nil {
		return &PutError{Backend: f.Backend(), Key: key, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return &PutError{Backend: f.Backend(), Key: key, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return &PutError{Backend: f.Backend(), Key: key, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PutError{Backend: f.Backend(), Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PutError{Backend: f.Backend(), Key: key, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &PutError{Backend: f.Backend(), Key: key, Err: err}
	}
	return nil
}
