// Package backup keeps immutable, timestamped full copies of target files.
//
// Backups of a file live under a subdirectory named after the file's
// directory relative to the workspace root, so two files with the same
// basename in different directories never share backups:
//
//	backups/config.json.<id>            <root>/config.json
//	backups/svc-a/config.json.<id>      <root>/svc-a/config.json
//	backups/_outside/<hash>/x.yaml.<id> a file outside the root
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cri/internal/errors"
	"cri/internal/paths"
)

// TimeFormat is the fixed-width, zero-padded UTC timestamp used in backup
// ids. Lexicographic order of ids is creation order.
const TimeFormat = "20060102-150405.000000"

var idPattern = regexp.MustCompile(`^(\d{8}-\d{6}\.\d{6})-(\d+)$`)

// maxCreateAttempts bounds the retry loop when a backup name is taken.
const maxCreateAttempts = 16

// outsideDir holds backups of files that are not under the store root.
const outsideDir = "_outside"

// Backup describes one stored snapshot.
type Backup struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Path      string      `json:"path"`
	Target    string      `json:"target"`
	Origin    string      `json:"origin,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	PID       int         `json:"pid"`
	Size      int64       `json:"size"`
	Mode      fs.FileMode `json:"mode"`
}

// Store manages backups in one directory.
type Store struct {
	dir  string
	root string
	pid  int
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRoot scopes backups by the target's directory relative to root.
// Without it every target shares one namespace keyed by basename.
func WithRoot(root string) Option {
	return func(s *Store) { s.root = root }
}

// WithPID overrides the process id recorded in new backup ids.
func WithPID(pid int) Option {
	return func(s *Store) { s.pid = pid }
}

// NewStore creates a store rooted at dir. The directory is created on first
// Create.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, pid: os.Getpid(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the backup directory.
func (s *Store) Dir() string { return s.dir }

// Origin returns the slash-separated key under which backups of file are
// kept. It is empty for files directly in the root.
func (s *Store) Origin(file string) (string, error) {
	if s.root == "" {
		return "", nil
	}
	dir, err := paths.Abs(filepath.Dir(file))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", file, err)
	}
	if paths.IsWithinRoot(dir, s.root) {
		rel, err := paths.CanonicalizePath(dir, s.root)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", file, err)
		}
		if rel == "." {
			return "", nil
		}
		return rel, nil
	}
	sum := sha256.Sum256([]byte(dir))
	return outsideDir + "/" + hex.EncodeToString(sum[:6]), nil
}

// dirFor returns the directory holding the backups of file.
func (s *Store) dirFor(file string) (string, string, error) {
	origin, err := s.Origin(file)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(origin)), origin, nil
}

// Create copies file, content and permissions, to <basename>.<timestamp>-<pid>.
// The name is claimed with O_EXCL; when it is already taken the timestamp is
// advanced and the claim retried.
func (s *Store) Create(file string) (*Backup, error) {
	info, err := os.Lstat(file)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", file, err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Newf(errors.TargetInvalid, "%s is not a regular file", file)
	}

	content, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	dir, origin, err := s.dirFor(file)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	base := filepath.Base(file)
	mode := info.Mode().Perm()
	ts := s.now().UTC()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := FormatID(ts, s.pid)
		path := filepath.Join(dir, base+"."+id)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
		if stderrors.Is(err, fs.ErrExist) {
			ts = ts.Add(time.Microsecond)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create backup: %w", err)
		}

		if err := writeAndSync(f, content); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("write backup %s: %w", path, err)
		}
		// O_CREATE honours the umask; restore the source permissions.
		if err := os.Chmod(path, mode); err != nil {
			return nil, fmt.Errorf("chmod backup: %w", err)
		}

		return &Backup{
			ID:        id,
			Name:      base + "." + id,
			Path:      path,
			Target:    base,
			Origin:    origin,
			CreatedAt: ts.Truncate(time.Microsecond),
			PID:       s.pid,
			Size:      int64(len(content)),
			Mode:      mode,
		}, nil
	}

	return nil, errors.Newf(errors.WriteFailed, "could not claim a unique backup name for %s", base)
}

// List returns the backups of file, newest first.
func (s *Store) List(file string) ([]Backup, error) {
	base := filepath.Base(file)
	prefix := base + "."

	dir, origin, err := s.dirFor(file)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var backups []Backup
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		id := strings.TrimPrefix(name, prefix)
		createdAt, pid, ok := ParseID(id)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Backup{
			ID:        id,
			Name:      name,
			Path:      filepath.Join(dir, name),
			Target:    base,
			Origin:    origin,
			CreatedAt: createdAt,
			PID:       pid,
			Size:      info.Size(),
			Mode:      info.Mode().Perm(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].ID > backups[j].ID
	})
	return backups, nil
}

// Get returns the backup of file with the given id.
func (s *Store) Get(file, id string) (*Backup, error) {
	backups, err := s.List(file)
	if err != nil {
		return nil, err
	}
	for i := range backups {
		if backups[i].ID == id || backups[i].Name == id {
			return &backups[i], nil
		}
	}
	return nil, errors.New(errors.BackupNotFound,
		fmt.Sprintf("no backup %q for %s", id, filepath.Base(file)), nil,
		errors.FixAction{Type: errors.RunCommand, Command: "cri list", Safe: true, Description: "List available backups"})
}

// Latest returns the newest backup of file.
func (s *Store) Latest(file string) (*Backup, error) {
	backups, err := s.List(file)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, errors.Newf(errors.BackupNotFound, "no backups for %s", filepath.Base(file))
	}
	return &backups[0], nil
}

// Read returns the content of a backup.
func (s *Store) Read(b *Backup) ([]byte, error) {
	return os.ReadFile(b.Path)
}

// Restore atomically replaces file with the backup content and mode. It does
// not validate the result. A backup is only ever restored into the file it
// was taken from.
func (s *Store) Restore(b *Backup, file string) error {
	dir, _, err := s.dirFor(file)
	if err != nil {
		return err
	}
	if filepath.Dir(b.Path) != dir || b.Name != filepath.Base(file)+"."+b.ID {
		return errors.Newf(errors.TargetInvalid, "backup %s was not taken from %s", b.Name, file)
	}
	content, err := s.Read(b)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", b.ID, err)
	}
	mode := b.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := WriteAtomic(file, content, mode); err != nil {
		return errors.New(errors.WriteFailed, "restore "+b.ID+" failed", err,
			errors.RestoreFix(b.ID, b.Path))
	}
	return nil
}

// Plan splits the backups of file into those kept and those a prune with
// keep would delete.
func (s *Store) Plan(file string, keep int) (kept, remove []Backup, err error) {
	if keep < 1 {
		return nil, nil, errors.Newf(errors.InvalidArgument, "prune must keep at least 1 backup, got %d", keep)
	}
	backups, err := s.List(file)
	if err != nil {
		return nil, nil, err
	}
	if len(backups) <= keep {
		return backups, nil, nil
	}
	return backups[:keep], backups[keep:], nil
}

// Prune deletes all but the keep newest backups of file and returns the
// deleted ones. Confirmation is the caller's job.
func (s *Store) Prune(file string, keep int) ([]Backup, error) {
	_, remove, err := s.Plan(file, keep)
	if err != nil {
		return nil, err
	}
	var removed []Backup
	for _, b := range remove {
		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove backup %s: %w", b.ID, err)
		}
		removed = append(removed, b)
	}
	return removed, nil
}

// FormatID builds a backup id from a timestamp and process id.
func FormatID(t time.Time, pid int) string {
	return t.UTC().Format(TimeFormat) + "-" + strconv.Itoa(pid)
}

// ParseID splits a backup id into its timestamp and process id.
func ParseID(id string) (time.Time, int, bool) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return time.Time{}, 0, false
	}
	t, err := time.ParseInLocation(TimeFormat, m[1], time.UTC)
	if err != nil {
		return time.Time{}, 0, false
	}
	pid, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, 0, false
	}
	return t, pid, true
}
