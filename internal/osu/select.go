package osu

import (
	"fmt"

	"github.com/franz/bgdb/internal/util"
)

// Candidate is one difficulty file of an archive, in container order
type Candidate struct {
	Name string
	Text string
}

// Selection is what an archive contributes: the metadata of the first usable
// difficulty and every distinct background reference across all parseable ones.
type Selection struct {
	Source      string // entry name the metadata was taken from
	Metadata    Metadata
	Backgrounds []string
	Unparsable  int
}

// Select parses candidates in order. Unparseable difficulties are counted and
// otherwise ignored. When no difficulty carries both metadata and a
// background, it returns util.ErrNoUsableDifficulty.
func Select(candidates []Candidate) (*Selection, error) {
	sel := &Selection{}
	seen := make(map[string]bool)
	found := false

	for _, c := range candidates {
		d, err := Parse(c.Text)
		if err != nil {
			util.DebugLog("Skipping %s: %v", c.Name, err)
			sel.Unparsable++
			continue
		}

		if d.Background != "" && !seen[d.Background] {
			seen[d.Background] = true
			sel.Backgrounds = append(sel.Backgrounds, d.Background)
		}

		if !found && d.Usable() {
			sel.Source = c.Name
			sel.Metadata = *d.Metadata
			found = true
		}
	}

	if !found {
		return nil, fmt.Errorf("%w: %d difficulties, %d unparsable",
			util.ErrNoUsableDifficulty, len(candidates), sel.Unparsable)
	}
	return sel, nil
}
