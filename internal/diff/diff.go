// Package diff computes and renders line-level unified diffs of file content.
package diff

import (
	"bytes"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	godiff "github.com/sourcegraph/go-diff/diff"
)

const noNewline = "\\ No newline at end of file\n"

// Diff is the line-level difference between two versions of one file.
type Diff struct {
	OldName string
	NewName string
	File    *godiff.FileDiff
	Stats   Stats
}

// Empty reports whether the two versions are identical.
func (d *Diff) Empty() bool {
	return d == nil || d.File == nil || len(d.File.Hunks) == 0
}

// Unified renders the diff in unified format. An empty diff renders as "".
func (d *Diff) Unified() string {
	if d.Empty() {
		return ""
	}
	out, err := godiff.PrintFileDiff(d.File)
	if err != nil {
		return ""
	}
	return string(out)
}

// Compute diffs old against new with context lines around each change.
func Compute(oldName, newName string, old, new []byte, context int) *Diff {
	d := &Diff{
		OldName: oldName,
		NewName: newName,
		File: &godiff.FileDiff{
			OrigName: "a/" + oldName,
			NewName:  "b/" + newName,
		},
	}
	if bytes.Equal(old, new) {
		return d
	}

	a := splitLines(string(old))
	b := splitLines(string(new))

	matcher := difflib.NewMatcher(a, b)
	for _, group := range matcher.GetGroupedOpCodes(context) {
		d.File.Hunks = append(d.File.Hunks, buildHunk(group, a, b))
	}
	d.Stats = StatsOf(d.File)
	return d
}

func buildHunk(group []difflib.OpCode, a, b []string) *godiff.Hunk {
	first, last := group[0], group[len(group)-1]

	h := &godiff.Hunk{
		OrigStartLine: hunkStart(first.I1, last.I2),
		OrigLines:     int32(last.I2 - first.I1),
		NewStartLine:  hunkStart(first.J1, last.J2),
		NewLines:      int32(last.J2 - first.J1),
	}

	var body strings.Builder
	for _, op := range group {
		switch op.Tag {
		case 'e':
			writeLines(&body, ' ', a[op.I1:op.I2])
		case 'd':
			writeLines(&body, '-', a[op.I1:op.I2])
		case 'i':
			writeLines(&body, '+', b[op.J1:op.J2])
		case 'r':
			writeLines(&body, '-', a[op.I1:op.I2])
			writeLines(&body, '+', b[op.J1:op.J2])
		}
	}
	h.Body = []byte(body.String())
	return h
}

// hunkStart follows the unified format: 1-based, or the preceding line
// number for an empty range.
func hunkStart(start, end int) int32 {
	if end == start {
		return int32(start)
	}
	return int32(start + 1)
}

func writeLines(b *strings.Builder, prefix byte, lines []string) {
	for _, line := range lines {
		b.WriteByte(prefix)
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteByte('\n')
			b.WriteString(noNewline)
		}
	}
}

// splitLines splits s after each newline. A final line without a newline
// is kept as is so the missing newline shows up in the diff.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
