package osz

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/bgdb/internal/util"
)

type fixtureFile struct {
	name string
	body []byte
}

func writeZip(t *testing.T, files []fixtureFile) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "11202.osz")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for _, ff := range files {
		fw, err := w.Create(ff.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(ff.body); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return p
}

func TestOpenCorruptArchive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.osz")
	os.WriteFile(p, []byte("definitely not a zip file"), 0644)

	_, err := Open(p)
	if !errors.Is(err, util.ErrContainerOpen) {
		t.Errorf("expected ErrContainerOpen, got %v", err)
	}

	_, err = Open(filepath.Join(t.TempDir(), "missing.osz"))
	if !errors.Is(err, util.ErrContainerOpen) {
		t.Errorf("expected ErrContainerOpen for missing file, got %v", err)
	}
}

func TestEntriesSkipUnsafeNames(t *testing.T) {
	p := writeZip(t, []fixtureFile{
		{"diff1.osu", []byte("osu file format v14")},
		{"../escape.osu", []byte("nope")},
		{"/abs.osu", []byte("nope")},
		{"sb/bg.jpg", []byte{0xFF, 0xD8}},
		{"DIFF2.OSU", []byte("osu file format v14")},
	})

	a, err := Open(p)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer a.Close()

	var names []string
	for e := range a.Entries(HasSuffixFold(".osu")) {
		names = append(names, e.Name)
	}
	if len(names) != 2 || names[0] != "diff1.osu" || names[1] != "DIFF2.OSU" {
		t.Errorf("unexpected .osu entries %v", names)
	}

	var all int
	for range a.Entries(nil) {
		all++
	}
	if all != 3 {
		t.Errorf("expected 3 safe entries, got %d", all)
	}
}

func TestLookup(t *testing.T) {
	p := writeZip(t, []fixtureFile{
		{"sb/BG.jpg", []byte("image")},
		{"bg.png", []byte("png")},
	})
	a, err := Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	tests := []struct {
		ref   string
		found bool
		name  string
	}{
		{"bg.png", true, "bg.png"},
		{`sb\BG.jpg`, true, "sb/BG.jpg"},
		{"sb/bg.JPG", true, "sb/BG.jpg"},
		{"./bg.png", true, "bg.png"},
		{"../bg.png", false, ""},
		{"missing.jpg", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		e, ok := a.Lookup(tt.ref)
		if ok != tt.found {
			t.Errorf("Lookup(%q) found=%v, expected %v", tt.ref, ok, tt.found)
			continue
		}
		if ok && e.Name != tt.name {
			t.Errorf("Lookup(%q) = %s, expected %s", tt.ref, e.Name, tt.name)
		}
	}

	e, _ := a.Lookup("bg.png")
	data, err := a.ReadBytes(e)
	if err != nil || string(data) != "png" {
		t.Errorf("ReadBytes = %q, %v", data, err)
	}
}

func TestReadText(t *testing.T) {
	p := writeZip(t, []fixtureFile{
		{"plain.osu", []byte("osu file format v14\r\n")},
		{"bom.osu", append([]byte{0xEF, 0xBB, 0xBF}, []byte("osu file format v14")...)},
		{"utf16.osu", []byte{0xFF, 0xFE, 'o', 0, 's', 0, 'u', 0}},
		{"latin1.osu", []byte{'A', 'r', 't', 0xE9, 0xFF}},
	})
	a, err := Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	read := func(name string) (string, error) {
		e, ok := a.Lookup(name)
		if !ok {
			t.Fatalf("entry %s missing", name)
		}
		return a.ReadText(e)
	}

	if s, err := read("plain.osu"); err != nil || s != "osu file format v14\r\n" {
		t.Errorf("plain: %q, %v", s, err)
	}
	if s, err := read("bom.osu"); err != nil || s != "osu file format v14" {
		t.Errorf("bom: %q, %v", s, err)
	}
	if s, err := read("utf16.osu"); err != nil || s != "osu" {
		t.Errorf("utf16: %q, %v", s, err)
	}
	if _, err := read("latin1.osu"); !errors.Is(err, util.ErrDecode) {
		t.Errorf("latin1: expected ErrDecode, got %v", err)
	}
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		out  string
		safe bool
	}{
		{"bg.jpg", "bg.jpg", true},
		{`Storyboard\bg.jpg`, "Storyboard/bg.jpg", true},
		{"a/./b/../bg.jpg", "a/bg.jpg", true},
		{"../bg.jpg", "", false},
		{"a/../../bg.jpg", "", false},
		{"/etc/passwd", "", false},
		{`C:\bg.jpg`, "", false},
		{".", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := CanonicalName(tt.in)
		if ok != tt.safe || got != tt.out {
			t.Errorf("CanonicalName(%q) = %q, %v; expected %q, %v", tt.in, got, ok, tt.out, tt.safe)
		}
	}
}
