package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hirelens/interview-analyzer/internal/domain/files"
)

// Local stores uploaded files on disk under a single directory. It is the
// default backend; refs are the generated filenames within the directory.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) Save(_ context.Context, filename string, r io.Reader, limit int64) (string, int64, error) {
	ref := uuid.New().String() + sanitizeExt(filename)
	path := filepath.Join(l.dir, ref)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	if limit > 0 && n > limit {
		os.Remove(path)
		return "", 0, fmt.Errorf("%s is larger than %d bytes: %w", filename, limit, files.ErrTooLarge)
	}
	return ref, n, nil
}

func (l *Local) Read(_ context.Context, ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, filepath.Base(ref)))
	if os.IsNotExist(err) {
		return nil, files.ErrNotFound
	}
	return data, err
}

func (l *Local) Stat(_ context.Context, ref string) (int64, error) {
	info, err := os.Stat(filepath.Join(l.dir, filepath.Base(ref)))
	if os.IsNotExist(err) {
		return 0, files.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// sanitizeExt keeps only a plain extension so the ref stays a single path
// element and the MIME table keeps working.
func sanitizeExt(filename string) string {
	ext := filepath.Ext(filepath.Base(filename))
	if len(ext) > 10 {
		return ""
	}
	return ext
}
