package diff

import (
	"fmt"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// Stats counts changed lines across all hunks of a file diff.
type Stats struct {
	Added   int   `json:"added"`
	Removed int   `json:"removed"`
	Hunks   int   `json:"hunks"`
	Changed []int `json:"changedLines,omitempty"`
}

func (s Stats) String() string {
	return fmt.Sprintf("%d hunk(s), +%d -%d", s.Hunks, s.Added, s.Removed)
}

// StatsOf walks hunk bodies and counts added and removed lines. Changed
// lists the new-file line numbers of added lines.
func StatsOf(fd *godiff.FileDiff) Stats {
	var s Stats
	if fd == nil {
		return s
	}
	s.Hunks = len(fd.Hunks)
	for _, hunk := range fd.Hunks {
		newLine := int(hunk.NewStartLine)
		for _, line := range strings.Split(strings.TrimSuffix(string(hunk.Body), "\n"), "\n") {
			if line == "" {
				newLine++
				continue
			}
			switch line[0] {
			case '+':
				s.Added++
				s.Changed = append(s.Changed, newLine)
				newLine++
			case '-':
				s.Removed++
			case ' ':
				newLine++
			case '\\':
				// "\ No newline at end of file"
			}
		}
	}
	return s
}
