package inspect

import (
	"bytes"
	"context"
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
)

const ntGNUBuildID = 3

// ELF reads build IDs with debug/elf, without spawning processes.
type ELF struct{}

func (ELF) Inspect(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path) // follows symlinks
	if err != nil {
		if absent(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	if !fi.Mode().IsRegular() {
		return "", nil
	}

	magic := make([]byte, len(elf.ELFMAG))
	if _, err := io.ReadFull(f, magic); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return "", nil // shorter than the magic, e.g. empty
		}
		return "", err
	}
	if string(magic) != elf.ELFMAG {
		return "", nil
	}

	exe, err := elf.NewFile(f)
	if err != nil {
		return "", nil // malformed or truncated ELF
	}
	defer exe.Close()

	id := buildID(exe)
	if !valid(id) {
		return "", nil
	}
	return id, nil
}

// buildID returns the hex-encoded desc of the first GNU build-ID note,
// looking at note sections first and at note segments for files without
// section headers.
func buildID(exe *elf.File) string {
	for _, s := range exe.Sections {
		if s.Type != elf.SHT_NOTE {
			continue
		}
		data, err := s.Data()
		if err != nil {
			continue
		}
		if id, ok := findNote(exe.ByteOrder, data); ok {
			return id
		}
	}
	for _, p := range exe.Progs {
		if p.Type != elf.PT_NOTE {
			continue
		}
		data, err := io.ReadAll(p.Open())
		if err != nil {
			continue
		}
		if id, ok := findNote(exe.ByteOrder, data); ok {
			return id
		}
	}
	return ""
}

// align4 rounds n up to a multiple of 4.
func align4(n uint32) uint64 {
	return (uint64(n) + 3) &^ 3
}

func findNote(bin binary.ByteOrder, data []byte) (string, bool) {
	for len(data) >= 12 {
		namesz := bin.Uint32(data[0:4])
		descsz := bin.Uint32(data[4:8])
		typ := bin.Uint32(data[8:12])
		data = data[12:]
		descOff := align4(namesz)
		if uint64(len(data)) < descOff+uint64(descsz) {
			return "", false
		}
		name := bytes.TrimRight(data[:namesz], "\x00")
		if typ == ntGNUBuildID && string(name) == "GNU" {
			return hex.EncodeToString(data[descOff : descOff+uint64(descsz)]), true
		}
		next := descOff + align4(descsz)
		if next > uint64(len(data)) {
			return "", false
		}
		data = data[next:]
	}
	return "", false
}
