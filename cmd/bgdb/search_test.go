package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/franz/bgdb/internal/osu"
	"github.com/franz/bgdb/internal/search"
	"github.com/spf13/viper"
)

func testMatches() []search.Match {
	return []search.Match{
		{Identity: "1_bg.jpg", ImageName: "bg.jpg", SetID: 1, Distance: 0, Similarity: 1, Artist: "xi", Title: "Blue Zenith", Creator: "Asphyxia", Mode: osu.ModeStandard},
		{Identity: "2_sbbg.png", ImageName: "sbbg.png", SetID: 2, Distance: 64, Similarity: 0.75, Artist: "A", Title: "T", Creator: "C", Mode: osu.ModeMania},
	}
}

func TestOutputMatchesHuman(t *testing.T) {
	var buf bytes.Buffer
	outputMatchesHuman(&buf, testMatches(), 256)
	out := buf.String()

	for _, want := range []string{
		"[1] xi - Blue Zenith (mapped by Asphyxia)",
		"Set:      2 (mania)",
		"Distance: 64 (75.0% similar)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	outputMatchesHuman(&buf, nil, 256)
	if !strings.Contains(buf.String(), "No matches") {
		t.Errorf("expected no-match notice, got %q", buf.String())
	}
}

func TestOutputMatchesJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := outputMatchesJSONL(&buf, testMatches()); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var m search.Match
	if err := json.Unmarshal([]byte(lines[1]), &m); err != nil {
		t.Fatal(err)
	}
	if m.SetID != 2 || m.ImageName != "sbbg.png" {
		t.Errorf("unexpected line %s", lines[1])
	}
}

func TestContentConfigFromViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("content.backend", "s3")
	viper.Set("s3.bucket", "backgrounds")
	viper.Set("s3.use-path-style", true)

	cfg := contentConfig()
	if cfg.Backend != "s3" || cfg.S3.Bucket != "backgrounds" || !cfg.S3.UsePathStyle {
		t.Errorf("unexpected content config %+v", cfg)
	}
	if cfg.Dir != "images" || cfg.S3.Region != "us-east-1" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestHasherFromConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	h, err := hasherFromConfig()
	if err != nil {
		t.Fatal(err)
	}
	if h.Name() != "gradient-16" {
		t.Errorf("default hasher = %s, expected gradient-16", h.Name())
	}

	viper.Set("hash.algorithm", "dct")
	viper.Set("hash.size", 12)
	if _, err := hasherFromConfig(); err == nil {
		t.Error("expected error for a size that is not a power of two")
	}
}
