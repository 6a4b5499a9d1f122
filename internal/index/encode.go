package index

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

type countingWriter struct {
	offset uint32
	w      io.Writer
}

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	cw.offset += uint32(n)
	return n, err
}

// Encode writes locs (keyed by build ID) in the lookup file format:
//
//	<value>\n ...                     deduplicated, sorted values
//	<key><uint32 value offset> ...    one block per key length, keys sorted
//	<uint32 offset><uint32 length>    block index, position == key length
//	<uint32 block index offset>
func Encode(w io.Writer, locs map[string]Location) error {
	cw := countingWriter{w: w}
	w = io.Writer(&cw)

	vals := make([]string, 0, len(locs))
	for _, loc := range locs {
		vals = append(vals, loc.String())
	}
	sort.Strings(vals) // for a deterministic index file
	valOffsets := make(map[string]uint32, len(vals))
	for _, val := range vals {
		if _, written := valOffsets[val]; written {
			continue
		}
		valOffsets[val] = cw.offset
		if _, err := fmt.Fprintln(w, val); err != nil {
			return err
		}
	}

	byLength := make(map[int][]string)
	var highest int
	for key := range locs {
		l := len(key)
		byLength[l] = append(byLength[l], key)
		if l > highest {
			highest = l
		}
	}
	// Fill in the gaps so that lookups can seek+read instead of having to
	// binary search through same-length-blocks.
	for i := 1; i <= highest; i++ {
		if _, ok := byLength[i]; !ok {
			byLength[i] = nil
		}
	}
	lengths := make([]int, 0, len(byLength))
	for l := range byLength {
		lengths = append(lengths, l)
	}
	sort.Ints(lengths)

	sameLenOffsets := make(map[int]uint32, len(lengths)+1)
	for _, l := range lengths {
		sameLenOffsets[l] = cw.offset
		keys := byLength[l]
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := io.WriteString(w, k); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, valOffsets[locs[k].String()]); err != nil {
				return err
			}
		}
	}

	blockIndexOffset := cw.offset
	sameLenOffsets[highest+1] = cw.offset
	for _, l := range lengths {
		loc := BlockLocation{
			BlockOffset: sameLenOffsets[l],
			BlockLength: sameLenOffsets[l+1] - sameLenOffsets[l],
		}
		if err := binary.Write(w, binary.LittleEndian, loc); err != nil {
			return err
		}
	}

	return binary.Write(w, binary.LittleEndian, blockIndexOffset)
}
