package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// maxRecordSize bounds one JSON line when reading the log back.
const maxRecordSize = 1 << 20

// Log reads a workspace audit log. It never rewrites or deletes records.
type Log struct {
	path string
}

// OpenLog returns a reader for the log at path. A missing file reads as
// empty.
func OpenLog(path string) *Log {
	return &Log{path: path}
}

// Path returns the log location.
func (l *Log) Path() string { return l.path }

// Records returns all records in append order. Lines that fail to decode
// are skipped and counted.
func (l *Log) Records() ([]Record, int, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var (
		records []Record
		skipped int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, skipped, fmt.Errorf("read audit log: %w", err)
	}
	return records, skipped, nil
}

// List returns the n most recent records, newest first. n <= 0 means all.
func (l *Log) List(n int) ([]Record, error) {
	records, _, err := l.Records()
	if err != nil {
		return nil, err
	}
	reverse(records)
	if n > 0 && len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// Search returns records whose command text contains text, newest first.
func (l *Log) Search(text string) ([]Record, error) {
	return l.filter(func(r *Record) bool {
		return strings.Contains(r.Command, text)
	})
}

// Failed returns unsuccessful records, newest first.
func (l *Log) Failed() ([]Record, error) {
	return l.filter(func(r *Record) bool { return !r.Success })
}

// Blame returns records that refer to path, newest first. A record refers
// to path when it ran in path's directory or below a directory path, or when
// its command text names path absolutely or relative to the record's working
// directory, including forms such as --file=config.json or >config.json.
func (l *Log) Blame(path string) ([]Record, error) {
	target := filepath.Clean(path)
	dir := filepath.Dir(target)
	return l.filter(func(r *Record) bool {
		if r.Pwd != "" && filepath.IsAbs(target) {
			pwd := filepath.Clean(r.Pwd)
			if pwd == dir || within(pwd, target) {
				return true
			}
		}
		if containsPath(r.Command, target) {
			return true
		}
		if r.Pwd == "" || !filepath.IsAbs(target) {
			return false
		}
		rel, err := filepath.Rel(filepath.Clean(r.Pwd), target)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false
		}
		return containsPath(r.Command, rel) || containsPath(r.Command, "."+string(filepath.Separator)+rel)
	})
}

// containsPath reports whether p occurs in s as a whole path, not as part of
// a longer file name or path.
func containsPath(s, p string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], p)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(p)
		if (start == 0 || !isPathByte(s[start-1])) && (end == len(s) || !isPathByte(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isPathByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '-', c == '.', c == '/', c == filepath.Separator:
		return true
	}
	return false
}

// within reports whether dir is target or lies below it.
func within(dir, target string) bool {
	rel, err := filepath.Rel(target, filepath.Clean(dir))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (l *Log) filter(keep func(*Record) bool) ([]Record, error) {
	records, _, err := l.Records()
	if err != nil {
		return nil, err
	}
	var out []Record
	for i := len(records) - 1; i >= 0; i-- {
		if keep(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out, nil
}

// Stats summarizes the log.
type Stats struct {
	Total           int     `json:"total"`
	Succeeded       int     `json:"succeeded"`
	Failed          int     `json:"failed"`
	SuccessRate     float64 `json:"success_rate"`
	AverageDuration float64 `json:"average_duration_seconds"`
	UniqueUsers     int     `json:"unique_users"`
	Skipped         int     `json:"skipped_lines,omitempty"`
}

// Stats computes counts, success rate, average duration and unique users.
func (l *Log) Stats() (Stats, error) {
	records, skipped, err := l.Records()
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Total: len(records), Skipped: skipped}
	users := make(map[string]struct{})
	var total float64
	for _, r := range records {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		total += r.DurationSeconds
		users[r.User] = struct{}{}
	}
	s.UniqueUsers = len(users)
	if s.Total > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Total)
		s.AverageDuration = total / float64(s.Total)
	}
	return s, nil
}

// Export writes the full log as a JSON array in append order, optionally
// gzip-compressed.
func (l *Log) Export(w io.Writer, compress bool) error {
	records, _, err := l.Records()
	if err != nil {
		return err
	}
	if records == nil {
		records = []Record{}
	}

	if !compress {
		return writeJSON(w, records)
	}
	zw := gzip.NewWriter(w)
	if err := writeJSON(zw, records); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

func writeJSON(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func reverse(records []Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
