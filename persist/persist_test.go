package persist

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dreamware/brightvault/build"
)

var testMeta = Metadata{Header: "Brightvault Test", Version: "1.0"}

type testObj struct {
	Name  string
	Count int
}

func testDir(t *testing.T) string {
	t.Helper()
	dir := build.TempDir("persist", t.Name())
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	return dir
}

func TestSaveAndLoadJSONRoundTrips(t *testing.T) {
	dir := testDir(t)
	path := filepath.Join(dir, "obj.json")

	in := testObj{Name: "share index", Count: 42}
	if err := SaveJSON(testMeta, in, path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	var out testObj
	if err := LoadJSON(testMeta, &out, path); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestLoadJSONRejectsWrongHeader(t *testing.T) {
	dir := testDir(t)
	path := filepath.Join(dir, "obj.json")

	if err := SaveJSON(testMeta, testObj{Name: "x"}, path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	wrongMeta := Metadata{Header: "Wrong Header", Version: testMeta.Version}
	var out testObj
	err := LoadJSON(wrongMeta, &out, path)
	if _, ok := err.(ErrBadHeader); !ok {
		t.Fatalf("expected ErrBadHeader, got %T: %v", err, err)
	}
}

func TestLoadJSONRejectsWrongVersion(t *testing.T) {
	dir := testDir(t)
	path := filepath.Join(dir, "obj.json")

	if err := SaveJSON(testMeta, testObj{Name: "x"}, path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	wrongMeta := Metadata{Header: testMeta.Header, Version: "9.9"}
	var out testObj
	err := LoadJSON(wrongMeta, &out, path)
	if _, ok := err.(ErrBadVersion); !ok {
		t.Fatalf("expected ErrBadVersion, got %T: %v", err, err)
	}
}

func TestRandomSuffixIsUnpredictableAndHex(t *testing.T) {
	a := RandomSuffix()
	b := RandomSuffix()
	if a == b {
		t.Fatalf("expected two RandomSuffix calls to differ")
	}
	if len(a) != 12 {
		t.Fatalf("expected a 12-character hex suffix (6 bytes), got %d: %q", len(a), a)
	}
}

func TestLoggerWritesStartupAndShutdown(t *testing.T) {
	dir := testDir(t)
	path := filepath.Join(dir, "test.log")

	l, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	l.Println("hello from the test")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	contents, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(contents), "STARTUP") || !strings.Contains(string(contents), "SHUTDOWN") {
		t.Fatalf("expected STARTUP and SHUTDOWN lines in the log, got %q", contents)
	}
}
