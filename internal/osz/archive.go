// Package osz reads beatmap set archives (.osz files are zip containers).
//
// Only entries whose names canonicalize to a path inside the archive are ever
// listed, so nothing outside an archive's own listing can be resolved or read.
package osz

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/franz/bgdb/internal/util"
)

// MaxEntrySize caps the uncompressed size of a single entry we are willing to read
const MaxEntrySize = 64 << 20

// Entry is one file inside an archive
type Entry struct {
	Name string // canonical slash-separated path
	Size uint64 // uncompressed size
	file *zip.File
}

// Archive is an opened container. The central directory is read on Open;
// entry contents are only read on demand.
type Archive struct {
	rc      *zip.ReadCloser
	entries []*Entry
	byName  map[string]*Entry
	byFold  map[string]*Entry
}

// Open opens the archive at path. Any failure is reported as ErrContainerOpen.
func Open(archivePath string) (*Archive, error) {
	rc, err := zip.OpenReader(archivePath)
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && rc != nil) {
		return nil, fmt.Errorf("%w: %s: %v", util.ErrContainerOpen, archivePath, err)
	}

	a := &Archive{
		rc:     rc,
		byName: make(map[string]*Entry, len(rc.File)),
		byFold: make(map[string]*Entry, len(rc.File)),
	}

	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, ok := CanonicalName(f.Name)
		if !ok {
			util.DebugLog("Skipping unsafe entry %q in %s", f.Name, archivePath)
			continue
		}
		if _, dup := a.byName[name]; dup {
			continue
		}

		e := &Entry{Name: name, Size: f.UncompressedSize64, file: f}
		a.entries = append(a.entries, e)
		a.byName[name] = e
		if _, seen := a.byFold[strings.ToLower(name)]; !seen {
			a.byFold[strings.ToLower(name)] = e
		}
	}

	return a, nil
}

// Close releases the underlying file
func (a *Archive) Close() error {
	return a.rc.Close()
}

// Entries yields the safe entries matching pred, in container order
func (a *Archive) Entries(pred func(name string) bool) iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for _, e := range a.entries {
			if pred != nil && !pred(e.Name) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Lookup resolves a path as written inside a difficulty file to an entry.
// Backslashes are accepted as separators; an exact match wins over a
// case-insensitive one.
func (a *Archive) Lookup(ref string) (*Entry, bool) {
	name, ok := CanonicalName(ref)
	if !ok {
		return nil, false
	}
	if e, ok := a.byName[name]; ok {
		return e, true
	}
	e, ok := a.byFold[strings.ToLower(name)]
	return e, ok
}

// ReadBytes returns the uncompressed contents of e
func (a *Archive) ReadBytes(e *Entry) ([]byte, error) {
	if e.Size > MaxEntrySize {
		return nil, fmt.Errorf("entry %s too large (%d bytes)", e.Name, e.Size)
	}

	r, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry %s: %w", e.Name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, MaxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", e.Name, err)
	}
	if len(data) > MaxEntrySize {
		return nil, fmt.Errorf("entry %s too large", e.Name)
	}

	return data, nil
}

// ReadText returns e decoded as text. A UTF-8 BOM is dropped and UTF-16 with
// a BOM is converted; anything else must already be valid UTF-8.
func (a *Archive) ReadText(e *Entry) (string, error) {
	raw, err := a.ReadBytes(e)
	if err != nil {
		return "", err
	}
	return DecodeText(raw)
}

// DecodeText applies the same decoding rules as ReadText to raw bytes
func DecodeText(raw []byte) (string, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", util.ErrDecode, err)
	}
	if !utf8.Valid(out) {
		return "", fmt.Errorf("%w: invalid UTF-8", util.ErrDecode)
	}
	return string(out), nil
}

// CanonicalName normalizes an in-archive path to slash-separated clean form.
// It reports false for names that are empty, absolute, carry a drive letter
// or escape the archive root.
func CanonicalName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" || strings.HasPrefix(name, "/") {
		return "", false
	}
	if len(name) >= 2 && name[1] == ':' {
		return "", false
	}

	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

// HasSuffixFold returns a predicate matching names ending in suffix, ignoring case
func HasSuffixFold(suffix string) func(string) bool {
	suffix = strings.ToLower(suffix)
	return func(name string) bool {
		return strings.HasSuffix(strings.ToLower(name), suffix)
	}
}
