package inspect

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Tool determines build IDs by running file(1) and readelf(1). It is slower
// than ELF but follows binutils in what it accepts.
type Tool struct {
	LookPath func(file string) (string, error) // for testing
}

func (t *Tool) lookPath(file string) (string, error) {
	if t.LookPath != nil {
		return t.LookPath(file)
	}
	return exec.LookPath(file)
}

func (t *Tool) Inspect(ctx context.Context, path string) (string, error) {
	// file -L and readelf both fail on dangling links.
	if _, err := os.Stat(path); err != nil {
		if absent(err) {
			return "", nil
		}
		return "", err
	}

	// Check the file type first to avoid error messages from readelf.
	name, err := t.lookPath("file")
	if err != nil {
		return "", err
	}
	out, err := exec.CommandContext(ctx, name, "-Lb", path).Output()
	if err != nil {
		return "", fmt.Errorf("file -Lb %s: %w", path, err)
	}
	if !bytes.HasPrefix(out, []byte("ELF")) {
		return "", nil
	}

	name, err = t.lookPath("readelf")
	if err != nil {
		return "", err
	}
	readelf := exec.CommandContext(ctx, name, "-n", path)
	out, err = readelf.Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return "", err
		}
		// readelf exits non-zero on malformed ELF files but still prints
		// the notes it could read.
	}
	return parseReadelf(out), nil
}

// parseReadelf returns the build ID from readelf -n output, which contains a
// line like
//
//	Build ID: 99c2106c44189e354e1826aa285a0ccf7cbdf726
func parseReadelf(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Build ID: ") {
			continue
		}
		id := strings.TrimSpace(strings.TrimPrefix(line, "Build ID: "))
		if valid(id) {
			return id
		}
	}
	return ""
}
