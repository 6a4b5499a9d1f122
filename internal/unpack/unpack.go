// Package unpack extracts the file system tree of a .deb archive.
package unpack

import (
	"context"
	"fmt"
)

// Error is returned when a package could not be unpacked.
type Error struct {
	Deb string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("unpacking %s: %v", e.Deb, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Unpacker extracts the data member of the .deb at debPath into the existing
// directory dest.
type Unpacker interface {
	Unpack(ctx context.Context, debPath, dest string) error
}

// ByName returns the Unpacker configured by name: "native" (or "") for the
// in-process implementation, "dpkg-deb" for dpkg-deb(1).
func ByName(name string) (Unpacker, error) {
	switch name {
	case "", "native":
		return Native{}, nil
	case "dpkg-deb":
		return &DpkgDeb{}, nil
	}
	return nil, fmt.Errorf("unknown unpacker %q (want native or dpkg-deb)", name)
}
