package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned by Lookup when the index has no entry for a key.
var ErrNotFound = errors.New("key not found in index")

const offsetLen = 4 // sizeof(uint32)

// Lookup returns the Location stored for buildID in the lookup file at path.
func Lookup(path, buildID string) (Location, error) {
	f, err := os.Open(path)
	if err != nil {
		return Location{}, err
	}
	defer f.Close()

	val, err := lookup(f, buildID)
	if err != nil {
		return Location{}, err
	}
	return parseLocation(val)
}

func lookup(f io.ReadSeeker, key string) (string, error) {
	if key == "" {
		return "", ErrNotFound
	}
	if _, err := f.Seek(-1*offsetLen, io.SeekEnd); err != nil {
		return "", err
	}

	var indexBlockOffset uint32
	if err := binary.Read(f, binary.LittleEndian, &indexBlockOffset); err != nil {
		return "", err
	}

	if _, err := f.Seek(int64(indexBlockOffset)+((2*offsetLen)*(int64(len(key))-1)), io.SeekStart); err != nil {
		return "", err
	}

	var blockIndex BlockLocation
	if err := binary.Read(f, binary.LittleEndian, &blockIndex); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", ErrNotFound // longer than any key in the index
		}
		return "", err
	}

	entries := int(blockIndex.BlockLength) / (len(key) + offsetLen)
	if _, err := f.Seek(int64(blockIndex.BlockOffset), io.SeekStart); err != nil {
		return "", err
	}

	var (
		keyBytes  = []byte(key)
		name      = make([]byte, len(key))
		valOffset uint32
		found     bool
	)
	br := bufio.NewReader(f)
	for i := 0; i < entries; i++ {
		if _, err := io.ReadFull(br, name); err != nil {
			return "", err
		}
		if err := binary.Read(br, binary.LittleEndian, &valOffset); err != nil {
			return "", err
		}
		if bytes.Equal(name, keyBytes) {
			found = true
			break
		}
	}
	if !found {
		return "", ErrNotFound
	}

	if _, err := f.Seek(int64(valOffset), io.SeekStart); err != nil {
		return "", err
	}

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return scanner.Text(), nil
}
