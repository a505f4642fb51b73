// Package storage implements the object storage gateway: a fast local
// filesystem binding probed first for reads, backed by an S3-compatible
// remote store that is the durable system of record.
package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/medialoom/coordinator/internal/errors"
)

// LocalStore is the fast local binding. It may be an edge cache or a dev
// emulation that out-of-process workers cannot see, which is why writes never
// go through it alone.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a local store rooted at baseDir.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		return nil, apperrors.Validation("local store base dir is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, apperrors.TransientIO("create local store dir", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// path maps an object key to a filesystem path, refusing traversal outside
// the base directory.
func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperrors.Validationf("invalid object key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

// ReadFull returns the object bytes, or (nil, nil) when absent.
func (s *LocalStore) ReadFull(key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, apperrors.TransientIO("local read", err)
	}
	return data, nil
}

// ReadRange returns length bytes starting at offset.
func (s *LocalStore) ReadRange(key string, offset, length int64) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NotFoundf("object %q not found", key)
		}
		return nil, apperrors.TransientIO("local open", err)
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, apperrors.TransientIO("local range read", err)
	}
	return buf[:n], nil
}

// Write stores body under key.
func (s *LocalStore) Write(key string, body io.Reader) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperrors.TransientIO("local mkdir", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return apperrors.TransientIO("local create", err)
	}
	defer f.Close()
	if _, err = io.Copy(f, body); err != nil {
		return apperrors.TransientIO("local write", err)
	}
	return nil
}

// Delete removes the object. Missing keys are not an error.
func (s *LocalStore) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.TransientIO("local delete", err)
	}
	return nil
}

// Exists returns the object size and presence.
func (s *LocalStore) Exists(key string) (int64, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return 0, false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, apperrors.TransientIO("local stat", err)
	}
	if info.IsDir() {
		return 0, false, nil
	}
	return info.Size(), true, nil
}

// ListByPrefix returns every key under prefix, in slash form.
func (s *LocalStore) ListByPrefix(prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return walkErr
		}
		rel, relErr := filepath.Rel(s.baseDir, p)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.TransientIO("local list", err)
	}
	return keys, nil
}
