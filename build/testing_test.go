package build

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTempDirRemovesExistingContents(t *testing.T) {
	dir := TempDir("build", t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	stale := filepath.Join(dir, "stale.txt")
	if err := ioutil.WriteFile(stale, []byte("old"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dir2 := TempDir("build", t.Name())
	if dir2 != dir {
		t.Fatalf("expected TempDir to be stable across calls: %q != %q", dir2, dir)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected TempDir to remove prior contents, stat err: %v", err)
	}
}

func TestCopyFile(t *testing.T) {
	dir := TempDir("build", t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	want := []byte("copy me")
	if err := ioutil.WriteFile(src, want, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	got, err := ioutil.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCopyDir(t *testing.T) {
	dir := TempDir("build", t.Name())
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	if err := os.MkdirAll(filepath.Join(src, "sub"), 0700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := ioutil.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := ioutil.WriteFile(filepath.Join(src, "sub", "nested.txt"), []byte("nested"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := CopyDir(src, dst); err != nil {
		t.Fatalf("CopyDir: %v", err)
	}

	top, err := ioutil.ReadFile(filepath.Join(dst, "top.txt"))
	if err != nil || string(top) != "top" {
		t.Fatalf("top.txt mismatch: %v, %q", err, top)
	}
	nested, err := ioutil.ReadFile(filepath.Join(dst, "sub", "nested.txt"))
	if err != nil || string(nested) != "nested" {
		t.Fatalf("nested.txt mismatch: %v, %q", err, nested)
	}
}

func TestCopyDirRejectsNonDirectorySource(t *testing.T) {
	dir := TempDir("build", t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	file := filepath.Join(dir, "file.txt")
	if err := ioutil.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := CopyDir(file, filepath.Join(dir, "dst")); err == nil {
		t.Fatalf("expected error copying a non-directory source")
	}
}

func TestExtractTarGz(t *testing.T) {
	dir := TempDir("build", t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	archive := filepath.Join(dir, "archive.tar.gz")
	af, err := os.Create(archive)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	gz := gzip.NewWriter(af)
	tw := tar.NewWriter(gz)
	contents := []byte("extracted contents")
	hdr := &tar.Header{Name: "payload.txt", Mode: 0600, Size: int64(len(contents))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := tw.Write(contents); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}
	if err := af.Close(); err != nil {
		t.Fatalf("file Close: %v", err)
	}

	dst := filepath.Join(dir, "extracted")
	if err := ExtractTarGz(archive, dst); err != nil {
		t.Fatalf("ExtractTarGz: %v", err)
	}
	got, err := ioutil.ReadFile(filepath.Join(dst, "payload.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(contents) {
		t.Fatalf("got %q, want %q", got, contents)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(5, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryReturnsFinalError(t *testing.T) {
	attempts := 0
	wantErr := errors.New("persistent failure")
	err := Retry(3, time.Millisecond, func() error {
		attempts++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected final error %v, got %v", wantErr, err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}
