// Package storage provides request-scoped temporary directories and an
// optional S3 archive for downloaded videos. The Store interface is the
// port both services share; Local serves the common case and S3Archive
// layers archival on top of it.
package storage

import (
	"context"
	"io"
)

// Store is the file storage port used by the HTTP services.
type Store interface {
	// Scope creates a temporary directory for a single request. The
	// returned cleanup removes the directory and everything in it, and is
	// safe to defer on every exit path.
	Scope(prefix string) (dir string, cleanup func(), err error)

	// SaveTemp saves data to a temporary file under the store's root and
	// returns the file path. The name parameter is a filename hint.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// Archive uploads data under the given key and returns the object URL.
	// Returns ErrArchiveNotConfigured when no archive backend is set up.
	Archive(ctx context.Context, key string, data io.Reader) (url string, err error)
}
