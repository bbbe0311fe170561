package files

import (
	"context"
	"errors"
	"io"
)

// ErrTooLarge is returned by Save when the payload exceeds the given limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// ErrNotFound is returned when a reference does not resolve to a stored file.
var ErrNotFound = errors.New("file not found")

// Store persists uploaded files and yields them back by opaque reference.
type Store interface {
	// Save streams the payload to storage, enforcing limit bytes (0 = no
	// limit). The returned ref keeps the original filename's extension so
	// MIME type can be derived later.
	Save(ctx context.Context, filename string, r io.Reader, limit int64) (ref string, size int64, err error)
	Read(ctx context.Context, ref string) ([]byte, error)
	Stat(ctx context.Context, ref string) (int64, error)
}
