// Package inspect determines the GNU build IDs of ELF files.
//
// Unpacked debug packages routinely contain files which are not ELF, ELF
// files without a build ID, legacy binaries with short IDs and dangling
// symbolic links. All of these yield "no build ID" rather than an error, so
// that one odd file never aborts the inspection of a whole package.
package inspect

import (
	"context"
	"encoding/hex"
	"errors"
	"io/fs"
	"syscall"
)

// BuildIDLen is the length of a SHA-1 build ID in hex characters.
const BuildIDLen = 40

// Inspector returns the build ID of the file at path, or "" if the file has
// none.
type Inspector interface {
	Inspect(ctx context.Context, path string) (string, error)
}

// ByName returns the Inspector configured by name: "elf" (or "") for the
// in-process reader, "readelf" for the external tools.
func ByName(name string) (Inspector, error) {
	switch name {
	case "", "elf":
		return ELF{}, nil
	case "readelf":
		return &Tool{}, nil
	}
	return nil, errors.New("unknown inspector " + name + " (want elf or readelf)")
}

func valid(id string) bool {
	if len(id) != BuildIDLen {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// absent reports whether err means there is no file to inspect, e.g. a
// dangling symbolic link or a link loop.
func absent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ELOOP)
}
