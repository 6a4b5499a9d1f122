package unpack

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
	"pault.ag/go/debian/deb"
)

// Native unpacks packages without external tools: it reads the ar(1)
// container, decompresses the data.tar member and extracts it.
//
// Unlike dpkg-deb, absolute symbolic link targets are rewritten relative to
// dest, and entries are never written through links leaving dest.
type Native struct{}

func (Native) Unpack(ctx context.Context, debPath, dest string) error {
	if err := unpack(ctx, debPath, dest); err != nil {
		return &Error{Deb: debPath, Err: err}
	}
	return nil
}

func unpack(ctx context.Context, debPath, dest string) error {
	f, err := os.Open(debPath)
	if err != nil {
		return err
	}
	defer f.Close()

	ar, err := deb.LoadAr(f)
	if err != nil {
		return err
	}
	for {
		entry, err := ar.Next()
		if err == io.EOF {
			return errors.New("no data.tar member found")
		}
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(strings.TrimSpace(entry.Name), "/")
		if !strings.HasPrefix(name, "data.tar") {
			continue
		}
		r, closeFn, err := decompress(name, entry.Data)
		if err != nil {
			return fmt.Errorf("%s: %v", name, err)
		}
		defer closeFn()
		if err := extract(ctx, tar.NewReader(r), dest); err != nil {
			return fmt.Errorf("%s: %v", name, err)
		}
		return nil
	}
}

func decompress(member string, r io.Reader) (io.Reader, func(), error) {
	nop := func() {}
	switch filepath.Ext(member) {
	case ".tar":
		return r, nop, nil
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	case ".xz":
		xr, err := xz.NewReader(r)
		return xr, nop, err
	case ".lzma":
		lr, err := lzma.NewReader(r)
		return lr, nop, err
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case ".bz2":
		return bzip2.NewReader(r), nop, nil
	}
	return nil, nil, fmt.Errorf("unsupported compression %q", filepath.Ext(member))
}

// relName maps the archive path name to a name relative to the unpack root,
// "." for the root itself. Leading slashes and .. elements cannot escape the
// root.
func relName(name string) string {
	rel := strings.TrimPrefix(filepath.Clean("/"+name), "/")
	if rel == "" {
		return "."
	}
	return rel
}

// relTarget rewrites an absolute link target into a relative one pointing
// at the same path inside the unpack root.
func relTarget(name, linkname string) string {
	if !filepath.IsAbs(linkname) {
		return linkname
	}
	rel, err := filepath.Rel(filepath.Dir("/"+name), filepath.Clean(linkname))
	if err != nil {
		return linkname
	}
	return rel
}

// extract writes the archive entries below dest. All file system operations
// go through an os.Root, so that entries cannot be written through symbolic
// links pointing outside of dest.
func extract(ctx context.Context, tr *tar.Reader, dest string) error {
	root, err := os.OpenRoot(dest)
	if err != nil {
		return err
	}
	defer root.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := relName(hdr.Name)
		if name == "." {
			continue // "./"
		}
		if hdr.Typeflag != tar.TypeDir {
			if err := mkdirParent(root, name); err != nil {
				return err
			}
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			// Always writable, so that extraction and cleanup work
			// regardless of the modes recorded in the archive.
			if err := root.MkdirAll(name, 0755); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := writeFile(root, name, tr, os.FileMode(hdr.Mode).Perm()|0600); err != nil {
				return err
			}

		case tar.TypeSymlink:
			root.Remove(name)
			if err := root.Symlink(relTarget(name, hdr.Linkname), name); err != nil {
				return err
			}

		case tar.TypeLink:
			root.Remove(name)
			if err := root.Link(relName(hdr.Linkname), name); err != nil {
				return err
			}

		default:
			// Device nodes and FIFOs carry no build IDs.
		}
	}
}

// mkdirParent creates the parent directory of name unless it already
// resolves to a directory, possibly through a symbolic link.
func mkdirParent(root *os.Root, name string) error {
	dir := filepath.Dir(name)
	if dir == "." {
		return nil
	}
	if fi, err := root.Stat(dir); err == nil && fi.IsDir() {
		return nil
	}
	return root.MkdirAll(dir, 0755)
}

func writeFile(root *os.Root, name string, r io.Reader, mode os.FileMode) error {
	f, err := root.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
