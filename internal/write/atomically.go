package write

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
)

// Atomically replaces dest with the bytes produced by write. The data is
// fsync'ed before the rename and the containing directory afterwards, so that
// after a crash dest holds either the previous or the new contents in full.
func Atomically(dest string, write func(io.Writer) error) (err error) {
	// Renaming only works within one file system, so the temporary file
	// always lives next to dest, regardless of $TMPDIR.
	f, err := os.CreateTemp(filepath.Dir(dest), "buildidx-")
	if err != nil {
		return err
	}
	defer func() {
		// Remove the tempfile if an error occurred
		if err != nil {
			os.Remove(f.Name())
		}
	}()
	defer f.Close()

	bufw := bufio.NewWriter(f)

	if err := write(bufw); err != nil {
		return err
	}

	if err := bufw.Flush(); err != nil {
		return err
	}

	if err := f.Chmod(0644); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	if err := os.Rename(f.Name(), dest); err != nil {
		return err
	}

	return syncDir(filepath.Dir(dest))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
