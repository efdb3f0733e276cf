// Package local keeps diagnostic page snapshots on the local filesystem,
// for single-instance deployments and development.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName reports an object name that is empty or escapes the base dir.
var ErrInvalidName = errors.New("invalid snapshot name")

// Config captures the parameters for the local snapshot store.
type Config struct {
	// BaseDir is the root directory for snapshots. Relative paths are
	// resolved against the working directory at startup.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes snapshots under an absolute base directory.
type BlobStore struct {
	baseDir string
}

// New resolves cfg.BaseDir, creates it if needed and checks that it accepts writes.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	baseDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	if info, statErr := os.Stat(baseDir); statErr == nil && !info.IsDir() {
		return nil, fmt.Errorf("base directory %s is not a directory", baseDir)
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	probe, err := os.CreateTemp(baseDir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("remove write check file: %w", err)
	}

	return &BlobStore{baseDir: baseDir}, nil
}

// Dir returns the absolute base directory.
func (s *BlobStore) Dir() string {
	return s.baseDir
}

// PutObject writes the snapshot at name and returns its file:// URI. The
// file is written to a temp file first and renamed into place, so readers
// never see a partial snapshot.
func (s *BlobStore) PutObject(ctx context.Context, name string, _ string, data io.Reader) (string, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", name, err)
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write snapshot %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close snapshot %s: %w", name, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("publish snapshot %s: %w", name, err)
	}
	return fileURI(fullPath), nil
}

// resolve maps an object name onto a path inside baseDir.
func (s *BlobStore) resolve(name string) (string, error) {
	rel := filepath.FromSlash(strings.TrimSpace(name))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.baseDir, rel), nil
}

func fileURI(absPath string) string {
	p := filepath.ToSlash(absPath)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}
