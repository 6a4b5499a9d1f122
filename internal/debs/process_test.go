package debs

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Debian/buildidx/internal/debtest"
	"github.com/Debian/buildidx/internal/index"
	"github.com/Debian/buildidx/internal/inspect"
	"github.com/Debian/buildidx/internal/scrape"
	"github.com/Debian/buildidx/internal/unpack"
)

const (
	lsID  = "99c2106c44189e354e1826aa285a0ccf7cbdf726"
	catID = "0123456789abcdef0123456789abcdef01234567"
)

func elfWithID(t *testing.T, id string) []byte {
	t.Helper()
	b, err := hex.DecodeString(id)
	if err != nil {
		t.Fatal(err)
	}
	return debtest.ELF(b)
}

type failingInspector struct{}

func (failingInspector) Inspect(context.Context, string) (string, error) {
	return "", os.ErrPermission
}

func TestProcess(t *testing.T) {
	t.Parallel()

	coreutils := debtest.Deb(t, "xz", []debtest.File{
		{Name: "usr/bin/ls", Body: elfWithID(t, lsID)},
		{Name: "usr/bin/dir", Linkname: "ls"},
		{Name: "usr/lib/debug/.build-id/01/23456789abcdef0123456789abcdef01234567.debug", Body: elfWithID(t, catID)},
		{Name: "usr/lib/debug/.build-id/99/c2106c44189e354e1826aa285a0ccf7cbdf726", Linkname: "/usr/lib/debug/.build-id/99/missing.debug"},
		{Name: "usr/lib/legacy.so", Body: elfWithID(t, "0123456789abcdef")},
		{Name: "usr/share/doc/coreutils/copyright", Body: []byte("GPL-3+\n")},
		{Name: "usr/share/doc/empty", Body: []byte{}},
	})
	noELF := debtest.Deb(t, "gz", []debtest.File{
		{Name: "usr/share/doc/foo/README", Body: []byte("foo\n")},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/pool/main/c/coreutils/coreutils_8.28-1_amd64.deb", func(w http.ResponseWriter, r *http.Request) {
		w.Write(coreutils)
	})
	mux.HandleFunc("/pool/main/f/foo/foo_1.0_all_amd64.deb", func(w http.ResponseWriter, r *http.Request) {
		w.Write(noELF)
	})
	mux.HandleFunc("/pool/main/c/corrupt/corrupt_1.0_amd64.deb", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not an ar archive"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	for _, entry := range []struct {
		name      string
		path      string
		inspector inspect.Inspector
		maxSize   int64
		want      []index.Record
		wantErr   func(error) bool
	}{
		{
			name: "BuildIDs",
			path: "/pool/main/c/coreutils/coreutils_8.28-1_amd64.deb",
			want: []index.Record{
				{Path: "/usr/bin/dir", BuildID: lsID},
				{Path: "/usr/bin/ls", BuildID: lsID},
				{Path: "/usr/lib/debug/.build-id/01/23456789abcdef0123456789abcdef01234567.debug", BuildID: catID},
			},
		},
		{
			name: "NoELF",
			path: "/pool/main/f/foo/foo_1.0_all_amd64.deb",
			want: []index.Record{},
		},
		{
			name: "NotFound",
			path: "/pool/main/g/gone/gone_1.0_amd64.deb",
			wantErr: func(err error) bool {
				var de *DownloadError
				var fe *scrape.FetchError
				return errors.As(err, &de) && errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound
			},
		},
		{
			name:    "TooLarge",
			path:    "/pool/main/c/coreutils/coreutils_8.28-1_amd64.deb",
			maxSize: 64,
			wantErr: func(err error) bool {
				var de *DownloadError
				return errors.As(err, &de)
			},
		},
		{
			name: "Corrupt",
			path: "/pool/main/c/corrupt/corrupt_1.0_amd64.deb",
			wantErr: func(err error) bool {
				var ue *unpack.Error
				return errors.As(err, &ue)
			},
		},
		{
			name:      "InspectionFailure",
			path:      "/pool/main/c/coreutils/coreutils_8.28-1_amd64.deb",
			inspector: failingInspector{},
			wantErr: func(err error) bool {
				return errors.Is(err, os.ErrPermission)
			},
		},
	} {
		entry := entry // copy
		t.Run(entry.name, func(t *testing.T) {
			t.Parallel()

			tempDir := t.TempDir()
			p := &Processor{
				Fetcher:   &scrape.Fetcher{},
				Unpacker:  unpack.Native{},
				Inspector: entry.inspector,
				TempDir:   tempDir,
				MaxSize:   entry.maxSize,
			}
			if p.Inspector == nil {
				p.Inspector = inspect.ELF{}
			}

			records, err := p.Process(context.Background(), ts.URL+entry.path)
			if entry.wantErr != nil {
				if err == nil || !entry.wantErr(err) {
					t.Fatalf("Process: unexpected error %v", err)
				}
			} else {
				if err != nil {
					t.Fatal(err)
				}
				if diff := cmp.Diff(entry.want, records); diff != "" {
					t.Fatalf("unexpected records (-want +got):\n%s", diff)
				}
			}

			// The workspace is gone, whatever the outcome.
			left, err := os.ReadDir(tempDir)
			if err != nil {
				t.Fatal(err)
			}
			if len(left) != 0 {
				t.Fatalf("workspace not cleaned up: %v", left)
			}
		})
	}
}

func TestProcessStalledDownload(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("!<arch>\n"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer ts.Close()
	defer close(release)

	tempDir := t.TempDir()
	p := &Processor{
		Fetcher:   &scrape.Fetcher{Timeout: 200 * time.Millisecond},
		Unpacker:  unpack.Native{},
		Inspector: inspect.ELF{},
		TempDir:   tempDir,
	}
	errc := make(chan error, 1)
	go func() {
		_, err := p.Process(context.Background(), ts.URL+"/pool/main/s/stalled/stalled_1.0_amd64.deb")
		errc <- err
	}()
	select {
	case err := <-errc:
		var de *DownloadError
		if !errors.As(err, &de) {
			t.Fatalf("Process: got %v, want a *DownloadError", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Process did not return for a stalled download")
	}
	left, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Fatalf("workspace not cleaned up: %v", left)
	}
}
