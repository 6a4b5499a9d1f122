package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/Debian/buildidx/internal/write"
)

// Dir stores objects as files in a local directory, e.g. a web server's
// document root.
type Dir string

func (d Dir) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(string(d), filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	return f, nil
}

func (d Dir) Put(ctx context.Context, key string, fn func(io.Writer) error) error {
	dest := filepath.Join(string(d), filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return write.Atomically(dest, fn)
}

func (Dir) Close() error { return nil }
