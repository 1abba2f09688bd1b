package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ErrArchiveNotConfigured is returned when archival is attempted without an
// archive backend.
var ErrArchiveNotConfigured = errors.New("storage: archive backend is not configured")

// Local implements Store on the local disk. Temporary files and request
// scopes live under a single configurable root so that cleanup failures are
// easy to find.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at root. When root is empty,
// a directory under os.TempDir() is used. The root is created if missing.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		root = os.TempDir()
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return &Local{root: root}, nil
}

// Root returns the store's root directory.
func (s *Local) Root() string {
	return s.root
}

// Scope creates a request-scoped temporary directory under the root.
func (s *Local) Scope(prefix string) (string, func(), error) {
	dir, err := os.MkdirTemp(s.root, prefix+"_*")
	if err != nil {
		return "", nil, fmt.Errorf("create scope dir: %w", err)
	}

	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove scope dir",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
	}

	return dir, cleanup, nil
}

// SaveTemp saves data to a temporary file under the root and returns its path.
func (s *Local) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.CreateTemp(s.root, name+"_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return fileName, nil
}

// Archive is not supported by Local and returns ErrArchiveNotConfigured.
func (s *Local) Archive(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrArchiveNotConfigured
}
