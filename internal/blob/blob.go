// Package blob transfers the index to and from remote object storage, the
// way the index is published for consumers which do not run a crawl.
//
// Objects are stored gzip-compressed with Content-Encoding: gzip.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/Debian/buildidx/internal/write"
)

// ErrNotExist is returned by Store.Get for missing objects.
var ErrNotExist = errors.New("object does not exist")

// Store is a flat namespace of objects.
type Store interface {
	// Get returns the stored (compressed) bytes of key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put replaces key with the bytes produced by write. Readers observe
	// either the previous or the new object.
	Put(ctx context.Context, key string, write func(io.Writer) error) error

	Close() error
}

// Options configure the Store returned by Open.
type Options struct {
	// CredentialsFile is a service account key for Google Cloud Storage.
	// Empty means application default credentials.
	CredentialsFile string

	// Public makes uploaded objects world-readable.
	Public bool
}

// Open returns the Store and the object key for uri, which is either
// gs://bucket/key or a file:// URL (or plain path) of the object.
func Open(ctx context.Context, uri string, opts Options) (Store, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", err
	}
	switch u.Scheme {
	case "gs":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, "", fmt.Errorf("malformed object URL %q, expected gs://bucket/key", uri)
		}
		s, err := NewGCS(ctx, u.Host, opts)
		if err != nil {
			return nil, "", err
		}
		return s, key, nil

	case "file", "":
		p := u.Path
		if p == "" {
			return nil, "", fmt.Errorf("malformed object URL %q", uri)
		}
		return Dir(filepath.Dir(p)), filepath.Base(p), nil
	}
	return nil, "", fmt.Errorf("unsupported object URL scheme %q", u.Scheme)
}

// Pull downloads key and atomically installs its decompressed contents at
// dest. The object must contain a JSON object; anything else leaves dest
// untouched.
func Pull(ctx context.Context, s Store, key, dest string) (int64, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	zr, err := gzip.NewReader(rc)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, err
	}
	var n int64
	err = write.Atomically(dest, func(w io.Writer) error {
		cw := &countingWriter{w: w}
		var m map[string]json.RawMessage
		if err := json.NewDecoder(io.TeeReader(zr, cw)).Decode(&m); err != nil {
			return fmt.Errorf("%s: not a JSON object: %w", key, err)
		}
		// Copy trailing whitespace, if any.
		if _, err := io.Copy(cw, zr); err != nil {
			return err
		}
		n = cw.n
		return nil
	})
	return n, err
}

// Push uploads the file at src to key, gzip-compressed.
func Push(ctx context.Context, s Store, key, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.Put(ctx, key, func(w io.Writer) error {
		zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return err
		}
		if _, err := io.Copy(zw, f); err != nil {
			return err
		}
		return zw.Close()
	})
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
