package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Static errors for local storage.
var (
	// ErrNotFound is returned when a staged file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrTooLarge is returned when a payload exceeds the size limit.
	ErrTooLarge = errors.New("payload exceeds size limit")
	// ErrInvalidFilename is returned for names that would escape the staging directory.
	ErrInvalidFilename = errors.New("invalid filename")
)

// LocalStorage is the staging directory every upload is written to first.
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates a new LocalStorage rooted at dir.
// The directory is created if it doesn't exist.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir == "" {
		return nil, errors.New("staging directory is required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	return &LocalStorage{dir: abs}, nil
}

// Dir returns the absolute staging directory path.
func (s *LocalStorage) Dir() string {
	return s.dir
}

// Path returns the staging path for filename.
func (s *LocalStorage) Path(filename string) (string, error) {
	if !validFilename(filename) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return filepath.Join(s.dir, filename), nil
}

// Save streams data into the staging directory under filename and returns
// the written path. At most limit bytes are accepted; a larger payload is
// removed and ErrTooLarge is returned. A non-positive limit disables the
// check. No partial file is left behind on any error.
func (s *LocalStorage) Save(ctx context.Context, filename string, data io.Reader, limit int64) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := s.Path(filename)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640) // #nosec G304 - filename is validated
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}

	src := data
	if limit > 0 {
		src = io.LimitReader(data, limit+1)
	}

	n, err := io.Copy(f, src)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write staged file: %w", err)
	}

	if limit > 0 && n > limit {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close staged file: %w", err)
	}

	return path, nil
}

// Open opens a staged file for reading.
// Returns ErrNotFound if no regular file by that name exists.
// The caller is responsible for closing the returned file.
func (s *LocalStorage) Open(ctx context.Context, filename string) (*os.File, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := s.Path(filename)
	if err != nil {
		return nil, ErrNotFound
	}

	f, err := os.Open(path) // #nosec G304 - filename is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open staged file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat staged file: %w", err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, ErrNotFound
	}

	return f, nil
}

// Remove deletes a staged file. Missing files are not an error.
func (s *LocalStorage) Remove(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged file %s: %w", path, err)
	}
	return nil
}

// validFilename reports whether name is a single path element.
func validFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}
