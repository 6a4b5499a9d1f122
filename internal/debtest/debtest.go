// Package debtest builds synthetic repository content for tests: directory
// listings, ELF objects carrying build IDs and .deb archives.
package debtest

import (
	"archive/tar"
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"html"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Listing renders a directory index the way Apache does, including the
// column sort links and the parent directory link.
func Listing(names ...string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE HTML PUBLIC "-//W3C//DTD HTML 3.2 Final//EN">
<html><head><title>Index of /pool</title></head><body>
<h1>Index of /pool</h1>
<table>
<tr><th><a href="?C=N;O=D">Name</a></th><th><a href="?C=M;O=A">Last modified</a></th><th><a href="?C=S;O=A">Size</a></th></tr>
<tr><td><a href="../">Parent Directory</a></td><td>&nbsp;</td><td>-</td></tr>
`)
	for _, name := range names {
		esc := html.EscapeString(name)
		fmt.Fprintf(&b, "<tr><td><a href=\"%s\">%s</a></td><td>2018-04-26 12:00</td><td>1.0K</td></tr>\n", esc, esc)
	}
	b.WriteString("</table></body></html>\n")
	return b.String()
}

// ELF returns a little-endian ELF64 executable whose only content is a
// .note.gnu.build-id section holding id.
func ELF(id []byte) []byte {
	const (
		headerSize  = 64
		sectionSize = 64
	)

	var note bytes.Buffer
	binary.Write(&note, binary.LittleEndian, uint32(4))       // namesz
	binary.Write(&note, binary.LittleEndian, uint32(len(id))) // descsz
	binary.Write(&note, binary.LittleEndian, uint32(3))       // NT_GNU_BUILD_ID
	note.WriteString("GNU\x00")
	note.Write(id)
	for note.Len()%4 != 0 {
		note.WriteByte(0)
	}

	shstrtab := []byte("\x00.shstrtab\x00.note.gnu.build-id\x00")
	const (
		shstrtabName = 1
		noteName     = 11
	)

	noteOff := uint64(headerSize)
	strOff := noteOff + uint64(note.Len())
	shOff := strOff + uint64(len(shstrtab))
	shOff = (shOff + 7) &^ 7

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shOff,
		Ehsize:    headerSize,
		Shentsize: sectionSize,
		Shnum:     3,
		Shstrndx:  2,
	})
	b.Write(note.Bytes())
	b.Write(shstrtab)
	for uint64(b.Len()) < shOff {
		b.WriteByte(0)
	}
	for _, sh := range []elf.Section64{
		{},
		{
			Name:      noteName,
			Type:      uint32(elf.SHT_NOTE),
			Flags:     uint64(elf.SHF_ALLOC),
			Off:       noteOff,
			Size:      uint64(note.Len()),
			Addralign: 4,
		},
		{
			Name:      shstrtabName,
			Type:      uint32(elf.SHT_STRTAB),
			Off:       strOff,
			Size:      uint64(len(shstrtab)),
			Addralign: 1,
		},
	} {
		binary.Write(&b, binary.LittleEndian, sh)
	}
	return b.Bytes()
}

// File is an entry of the data.tar member of a .deb. Entries with a
// Linkname become symbolic links, names ending in / directories.
type File struct {
	Name     string
	Body     []byte
	Linkname string
}

// Deb returns a .deb archive containing files. compression is the
// extension of the data member: "gz", "xz", "zst" or "" for none.
func Deb(t testing.TB, compression string, files []File) []byte {
	t.Helper()

	var data bytes.Buffer
	var (
		w   io.WriteCloser
		err error
	)
	switch compression {
	case "":
		w = nopCloser{&data}
	case "gz":
		w = gzip.NewWriter(&data)
	case "xz":
		w, err = xz.NewWriter(&data)
	case "zst":
		w, err = zstd.NewWriter(&data)
	default:
		t.Fatalf("unsupported compression %q", compression)
	}
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(w)
	for _, f := range files {
		hdr := &tar.Header{
			Name: "./" + strings.TrimPrefix(f.Name, "/"),
			Mode: 0755,
		}
		switch {
		case f.Linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = f.Linkname
			hdr.Mode = 0777
		case strings.HasSuffix(f.Name, "/"):
			hdr.Typeflag = tar.TypeDir
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(f.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write(f.Body); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	dataName := "data.tar"
	if compression != "" {
		dataName += "." + compression
	}

	var ar bytes.Buffer
	ar.WriteString("!<arch>\n")
	member := func(name string, body []byte) {
		fmt.Fprintf(&ar, "%-16s%-12d%-6d%-6d%-8s%-10d`\n", name, 0, 0, 0, "100644", len(body))
		ar.Write(body)
		if len(body)%2 == 1 {
			ar.WriteByte('\n')
		}
	}
	member("debian-binary", []byte("2.0\n"))
	member("control.tar", emptyTar(t))
	member(dataName, data.Bytes())
	return ar.Bytes()
}

func emptyTar(t testing.TB) []byte {
	var b bytes.Buffer
	tw := tar.NewWriter(&b)
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
