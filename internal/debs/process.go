package debs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Debian/buildidx/internal/humanbytes"
	"github.com/Debian/buildidx/internal/index"
	"github.com/Debian/buildidx/internal/inspect"
	"github.com/Debian/buildidx/internal/scrape"
	"github.com/Debian/buildidx/internal/unpack"
)

// DownloadError is returned when a package could not be downloaded.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("downloading %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Processor downloads packages and extracts the build IDs of the ELF files
// they contain. Every call works in its own temporary directory, so a
// Processor can be used from multiple goroutines.
type Processor struct {
	Fetcher   *scrape.Fetcher
	Unpacker  unpack.Unpacker
	Inspector inspect.Inspector
	Log       *slog.Logger

	// TempDir is the parent of the per-package workspaces. Empty means
	// os.TempDir().
	TempDir string

	// MaxSize rejects packages larger than MaxSize bytes. Zero means no
	// limit.
	MaxSize int64
}

func (p *Processor) log() *slog.Logger {
	if p.Log == nil {
		return slog.Default()
	}
	return p.Log
}

// Process downloads debURL, unpacks it and returns one record per file with
// a build ID. Paths are absolute paths as installed by the package. The
// workspace is removed before Process returns.
func (p *Processor) Process(ctx context.Context, debURL string) (_ []index.Record, err error) {
	ws, err := os.MkdirTemp(p.TempDir, "buildidx-")
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := os.RemoveAll(ws); rerr != nil && err == nil {
			err = rerr
		}
	}()

	debPath := filepath.Join(ws, "pkg.deb")
	size, err := p.download(ctx, debURL, debPath)
	if err != nil {
		return nil, err
	}
	p.log().Debug("downloaded package", "url", debURL, "size", humanbytes.Format(size))

	root := filepath.Join(ws, "root")
	if err := os.Mkdir(root, 0755); err != nil {
		return nil, err
	}
	if err := p.Unpacker.Unpack(ctx, debPath, root); err != nil {
		return nil, err
	}
	// Free the disk space of the archive before inspecting.
	if err := os.Remove(debPath); err != nil {
		return nil, err
	}

	return p.walk(ctx, root)
}

func (p *Processor) download(ctx context.Context, debURL, dest string) (int64, error) {
	resp, err := p.Fetcher.Get(ctx, debURL)
	if err != nil {
		return 0, &DownloadError{URL: debURL, Err: err}
	}
	defer resp.Body.Close()
	if p.MaxSize > 0 && resp.ContentLength > p.MaxSize {
		return 0, &DownloadError{URL: debURL, Err: fmt.Errorf("package too large: %s exceeds the limit of %s",
			humanbytes.Format(resp.ContentLength), humanbytes.Format(p.MaxSize))}
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var body io.Reader = resp.Body
	if p.MaxSize > 0 {
		body = io.LimitReader(resp.Body, p.MaxSize+1)
	}
	n, err := io.Copy(f, body)
	if err != nil {
		return n, &DownloadError{URL: debURL, Err: err}
	}
	if p.MaxSize > 0 && n > p.MaxSize {
		return n, &DownloadError{URL: debURL, Err: fmt.Errorf("package too large: exceeds the limit of %s", humanbytes.Format(p.MaxSize))}
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, &DownloadError{URL: debURL, Err: fmt.Errorf("short body: got %d bytes, want %d", n, resp.ContentLength)}
	}
	return n, f.Close()
}

// walk inspects every regular file below root, following symbolic links as
// long as they resolve to a regular file inside root.
func (p *Processor) walk(ctx context.Context, root string) ([]index.Record, error) {
	records := []index.Record{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != root && errors.Is(err, fs.ErrNotExist) {
				return nil // vanished since the directory was read
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return nil
		case d.Type()&fs.ModeSymlink != 0:
			if !p.resolvesInside(root, path) {
				return nil // dangling, a directory or outside of the package
			}
		case !d.Type().IsRegular():
			return nil
		}

		id, err := p.Inspector.Inspect(ctx, path)
		if err != nil {
			return fmt.Errorf("inspecting %s: %w", path, err)
		}
		if id == "" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		records = append(records, index.Record{
			Path:    "/" + filepath.ToSlash(rel),
			BuildID: id,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (p *Processor) resolvesInside(root, path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	if resolved != realRoot && !strings.HasPrefix(resolved, realRoot+string(filepath.Separator)) {
		return false
	}
	fi, err := os.Stat(resolved)
	return err == nil && fi.Mode().IsRegular()
}
