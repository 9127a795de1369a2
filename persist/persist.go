// Package persist contains functions to support the saving and loading of
// client and server state: JSON metadata files written atomically to disk,
// and a small file logger. Nothing in this package is specific to the
// storage protocol; it is infrastructure that the rest of the module builds
// on.
package persist

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/NebulousLabs/fastrand"
)

// Metadata contains the header and version of a persisted file, checked on
// load so that files written by an incompatible version are rejected rather
// than silently misinterpreted.
type Metadata struct {
	Header  string
	Version string
}

// ErrBadHeader is returned when the header of a loaded file does not match
// the expected header.
type ErrBadHeader struct {
	expected, actual string
}

func (e ErrBadHeader) Error() string {
	return "wrong header: expected '" + e.expected + "', got '" + e.actual + "'"
}

// ErrBadVersion is returned when the version of a loaded file does not match
// the expected version.
type ErrBadVersion struct {
	expected, actual string
}

func (e ErrBadVersion) Error() string {
	return "wrong version: expected '" + e.expected + "', got '" + e.actual + "'"
}

// persistFile is the on-disk representation of a saved object: the metadata
// header followed by the raw JSON of the object.
type persistFile struct {
	Metadata
	Data json.RawMessage
}

// RandomSuffix returns a random hex string that can be appended to a
// filename to make it unique, e.g. for scratch files that are renamed into
// place atomically.
func RandomSuffix() string {
	return hexEncode(fastrand.Bytes(6))
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

// SaveJSON saves obj to filename as JSON, tagged with meta, using a
// write-to-temp-then-rename sequence so that a crash mid-write never leaves
// a half-written file in place of a good one.
func SaveJSON(meta Metadata, obj interface{}, filename string) error {
	data, err := json.MarshalIndent(obj, "", "\t")
	if err != nil {
		return err
	}
	pf := persistFile{Metadata: meta, Data: data}
	full, err := json.MarshalIndent(pf, "", "\t")
	if err != nil {
		return err
	}

	dir := filepath.Dir(filename)
	tmp, err := ioutil.TempFile(dir, filepath.Base(filename)+".tmp-"+RandomSuffix())
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(full); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filename)
}

// LoadJSON loads the object previously saved with SaveJSON into obj,
// checking that its metadata matches meta.
func LoadJSON(meta Metadata, obj interface{}, filename string) error {
	raw, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}
	var pf persistFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return err
	}
	if pf.Header != meta.Header {
		return ErrBadHeader{meta.Header, pf.Header}
	}
	if pf.Version != meta.Version {
		return ErrBadVersion{meta.Version, pf.Version}
	}
	return json.Unmarshal(pf.Data, obj)
}
