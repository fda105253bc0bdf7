package bundle

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

type tarEntry struct {
	name string
	body string
	mode int64
	dir  bool
}

func makeTarGz(t *testing.T, entries []tarEntry) string {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		if e.dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if !e.dir {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("write body: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	return path
}

func TestExtractTarGz(t *testing.T) {
	src := makeTarGz(t, []tarEntry{
		{name: "index.html.gz", body: "idx"},
		{name: "css", dir: true},
		{name: "css/site.css.gz", body: "css"},
	})
	dst := t.TempDir()

	if err := extractTarGz(src, dst); err != nil {
		t.Fatalf("extract: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "index.html.gz"))
	if err != nil || string(got) != "idx" {
		t.Fatalf("index.html.gz = %q, err %v", got, err)
	}
	got, err = os.ReadFile(filepath.Join(dst, "css", "site.css.gz"))
	if err != nil || string(got) != "css" {
		t.Fatalf("css/site.css.gz = %q, err %v", got, err)
	}
}

func TestExtractCreatesParentDirs(t *testing.T) {
	// no explicit directory entries in the archive
	src := makeTarGz(t, []tarEntry{
		{name: "deep/nested/file.js.br", body: "js"},
	})
	dst := t.TempDir()

	if err := extractTarGz(src, dst); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "deep", "nested", "file.js.br")); err != nil {
		t.Fatalf("nested file missing: %v", err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	src := makeTarGz(t, []tarEntry{
		{name: "../escape.txt", body: "nope"},
	})
	dst := t.TempDir()

	err := extractTarGz(src, dst)
	if err == nil {
		t.Fatal("traversal entry extracted")
	}
	if !strings.Contains(err.Error(), "traversal") {
		t.Fatalf("err = %v", err)
	}
}

func TestExtractRejectsAbsolutePath(t *testing.T) {
	src := makeTarGz(t, []tarEntry{
		{name: "/etc/evil", body: "nope"},
	})
	dst := t.TempDir()

	if err := extractTarGz(src, dst); err == nil {
		t.Fatal("absolute path extracted")
	}
}

func TestExtractRejectsSymlinks(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	if err := tw.WriteHeader(&tar.Header{
		Name:     "link",
		Typeflag: tar.TypeSymlink,
		Linkname: "/etc/passwd",
	}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	tw.Close()
	gw.Close()

	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := extractTarGz(path, t.TempDir()); err == nil {
		t.Fatal("symlink entry extracted")
	}
}

func TestExtractRejectsCorruptGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tar.gz")
	if err := os.WriteFile(path, []byte("not gzip at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := extractTarGz(path, t.TempDir()); err == nil {
		t.Fatal("corrupt gzip extracted")
	}
}

func TestSanitizeTarPath(t *testing.T) {
	tests := []struct {
		name   string
		entry  string
		wantOK bool
	}{
		{name: "plain", entry: "a/b.txt", wantOK: true},
		{name: "dot prefix", entry: "./a.txt", wantOK: true},
		{name: "traversal", entry: "../a.txt", wantOK: false},
		{name: "inner traversal", entry: "a/../../b.txt", wantOK: false},
		{name: "absolute", entry: "/a.txt", wantOK: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sanitizeTarPath("/tmp/dst", tc.entry)
			if (err == nil) != tc.wantOK {
				t.Fatalf("sanitizeTarPath(%q) err = %v, wantOK %v", tc.entry, err, tc.wantOK)
			}
		})
	}
}
