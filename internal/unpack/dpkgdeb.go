package unpack

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DpkgDeb unpacks packages with dpkg-deb -x.
type DpkgDeb struct {
	LookPath func(file string) (string, error) // for testing
}

func (d *DpkgDeb) Unpack(ctx context.Context, debPath, dest string) error {
	lookPath := d.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	name, err := lookPath("dpkg-deb")
	if err != nil {
		return &Error{Deb: debPath, Err: err}
	}
	var stderr bytes.Buffer
	dpkgDeb := exec.CommandContext(ctx, name, "-x", debPath, dest)
	dpkgDeb.Stderr = &stderr
	if err := dpkgDeb.Run(); err != nil {
		return &Error{Deb: debPath, Err: fmt.Errorf("%v: %s", err, strings.TrimSpace(stderr.String()))}
	}
	return nil
}
