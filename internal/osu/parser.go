// Package osu parses the text format of beatmap difficulty files (.osu).
//
// Only the sections needed to describe a mapset are read: [General] for the
// game mode, [Metadata] for artist/title/creator and [Events] for the
// background image reference.
package osu

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/franz/bgdb/internal/util"
)

const formatHeader = "osu file format v"

// Mode is the ruleset a difficulty is played in
type Mode int

const (
	ModeStandard Mode = iota
	ModeTaiko
	ModeCatch
	ModeMania
)

func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeTaiko:
		return "taiko"
	case ModeCatch:
		return "catch"
	case ModeMania:
		return "mania"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Metadata is the descriptive part of a difficulty
type Metadata struct {
	Artist  string
	Title   string
	Creator string
	Mode    Mode
}

// Difficulty is the parsed subset of one .osu file.
// Metadata is nil when the file has no [Metadata] section; Background is
// empty when no background event is present.
type Difficulty struct {
	Version    int
	Metadata   *Metadata
	Background string
}

// Usable reports whether the difficulty names a background and carries metadata
func (d *Difficulty) Usable() bool {
	return d != nil && d.Metadata != nil && d.Background != ""
}

// Parse reads a difficulty from its file text. Errors wrap util.ErrParse.
func Parse(text string) (*Difficulty, error) {
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	d := &Difficulty{}
	mode := ModeStandard
	var meta *Metadata
	section := ""
	sawHeader := false
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if !sawHeader {
			if !strings.HasPrefix(line, formatHeader) {
				return nil, fmt.Errorf("%w: missing format header", util.ErrParse)
			}
			v, err := strconv.Atoi(strings.TrimSpace(line[len(formatHeader):]))
			if err != nil {
				return nil, fmt.Errorf("%w: bad format version %q", util.ErrParse, line)
			}
			d.Version = v
			sawHeader = true
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			if section == "Metadata" && meta == nil {
				meta = &Metadata{}
			}
			continue
		}

		switch section {
		case "General":
			key, value, ok := splitKeyValue(line)
			if !ok || key != "Mode" {
				continue
			}
			n, err := strconv.Atoi(value)
			if err != nil || n < int(ModeStandard) || n > int(ModeMania) {
				return nil, fmt.Errorf("%w: line %d: invalid mode %q", util.ErrParse, lineNo, value)
			}
			mode = Mode(n)

		case "Metadata":
			key, value, ok := splitKeyValue(line)
			if !ok {
				continue
			}
			switch key {
			case "Artist":
				meta.Artist = value
			case "Title":
				meta.Title = value
			case "Creator":
				meta.Creator = value
			}

		case "Events":
			if d.Background != "" {
				continue
			}
			ref, ok, err := backgroundEvent(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if ok {
				d.Background = ref
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrParse, err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("%w: empty file", util.ErrParse)
	}

	if meta != nil {
		meta.Mode = mode
		d.Metadata = meta
	}
	return d, nil
}

func splitKeyValue(line string) (string, string, bool) {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}

// backgroundEvent recognizes `0,0,"bg.jpg",0,0` (or the "Background" alias)
// and returns the unquoted file reference.
func backgroundEvent(line string) (string, bool, error) {
	parts := strings.SplitN(line, ",", 3)
	if len(parts) < 3 {
		return "", false, nil
	}
	kind := strings.TrimSpace(parts[0])
	if kind != "0" && kind != "Background" {
		return "", false, nil
	}

	rest := strings.TrimSpace(parts[2])
	var raw string
	if strings.HasPrefix(rest, `"`) {
		end := strings.Index(rest[1:], `"`)
		if end < 0 {
			raw = rest
		} else {
			raw = rest[:end+2]
		}
	} else {
		raw, _, _ = strings.Cut(rest, ",")
	}

	ref, err := Unquote(strings.TrimSpace(raw))
	if err != nil {
		return "", false, err
	}
	return ref, true, nil
}

// Unquote strips exactly one leading and one trailing double quote from a
// background reference. Unquoted references are returned as is; a quote on
// only one side, or nothing left after stripping, is a parse error.
func Unquote(ref string) (string, error) {
	leading := strings.HasPrefix(ref, `"`)
	trailing := len(ref) > 1 && strings.HasSuffix(ref, `"`)

	switch {
	case leading && trailing:
		ref = ref[1 : len(ref)-1]
	case leading || strings.HasSuffix(ref, `"`):
		return "", fmt.Errorf("%w: unbalanced quotes in %q", util.ErrParse, ref)
	}

	if ref == "" {
		return "", fmt.Errorf("%w: empty background reference", util.ErrParse)
	}
	return ref, nil
}
