package osu

import (
	"errors"
	"strings"
	"testing"

	"github.com/franz/bgdb/internal/util"
)

const sampleDifficulty = `osu file format v14

[General]
AudioFilename: audio.mp3
Mode: 1

[Metadata]
Title:Kimi no Shiranai Monogatari
Artist:supercell
Creator:Kroytz
Version:Hard

[Events]
//Background and Video events
0,0,"bg.jpg",0,0
Video,0,"video.avi"
0,0,"other.jpg",0,0
`

func TestParse(t *testing.T) {
	d, err := Parse(sampleDifficulty)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if d.Version != 14 {
		t.Errorf("Expected version 14, got %d", d.Version)
	}
	if d.Background != "bg.jpg" {
		t.Errorf("Expected first background bg.jpg, got %q", d.Background)
	}
	if d.Metadata == nil {
		t.Fatal("Expected metadata block")
	}

	want := Metadata{Artist: "supercell", Title: "Kimi no Shiranai Monogatari", Creator: "Kroytz", Mode: ModeTaiko}
	if *d.Metadata != want {
		t.Errorf("Metadata = %+v, expected %+v", *d.Metadata, want)
	}
}

func TestParseDefaultsAndCRLF(t *testing.T) {
	text := strings.ReplaceAll("osu file format v7\n[Metadata]\nArtist: A\nTitle: T\nCreator: C\n[Events]\nBackground,0,Storyboard\\bg.png\n", "\n", "\r\n")

	d, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if d.Metadata.Mode != ModeStandard {
		t.Errorf("Expected default mode standard, got %v", d.Metadata.Mode)
	}
	if d.Metadata.Artist != "A" || d.Metadata.Title != "T" || d.Metadata.Creator != "C" {
		t.Errorf("unexpected metadata %+v", d.Metadata)
	}
	if d.Background != `Storyboard\bg.png` {
		t.Errorf("Expected unquoted reference kept, got %q", d.Background)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"no header", "[General]\nMode: 0\n"},
		{"bad version", "osu file format vX\n"},
		{"bad mode", "osu file format v14\n[General]\nMode: 9\n"},
		{"unbalanced quote", "osu file format v14\n[Events]\n0,0,\"bg.jpg,0,0\n"},
		{"empty reference", "osu file format v14\n[Events]\n0,0,\"\",0,0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			if !errors.Is(err, util.ErrParse) {
				t.Errorf("Expected ErrParse, got %v", err)
			}
		})
	}
}

func TestParseWithoutOptionalSections(t *testing.T) {
	d, err := Parse("osu file format v14\n[General]\nMode: 3\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if d.Metadata != nil || d.Background != "" || d.Usable() {
		t.Errorf("Expected empty difficulty, got %+v", d)
	}
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		in      string
		out     string
		wantErr bool
	}{
		{`"bg.jpg"`, "bg.jpg", false},
		{`bg.jpg`, "bg.jpg", false},
		{`"my bg, final.jpg"`, "my bg, final.jpg", false},
		{`"bg.jpg`, "", true},
		{`bg.jpg"`, "", true},
		{`"`, "", true},
		{`""`, "", true},
		{``, "", true},
	}

	for _, tt := range tests {
		got, err := Unquote(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unquote(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.out {
			t.Errorf("Unquote(%q) = %q, expected %q", tt.in, got, tt.out)
		}
	}
}

func TestBackgroundWithCommaInName(t *testing.T) {
	d, err := Parse("osu file format v14\n[Events]\n0,0,\"my bg, final.jpg\",0,0\n")
	if err != nil {
		t.Fatal(err)
	}
	if d.Background != "my bg, final.jpg" {
		t.Errorf("got %q", d.Background)
	}
}

func TestModeString(t *testing.T) {
	if ModeMania.String() != "mania" || Mode(7).String() != "mode(7)" {
		t.Errorf("unexpected mode names %s %s", ModeMania, Mode(7))
	}
}
