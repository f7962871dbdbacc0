package change

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cri/internal/errors"
	"cri/internal/paths"
)

// ResolveTarget returns the single file a change operation acts on. An
// explicit path is checked as is; otherwise the working directory must hold
// exactly one candidate file. Zero or several candidates is an error and no
// candidate is opened.
func (w *Workflow) ResolveTarget(cwd, explicit string) (string, error) {
	if explicit != "" {
		p := explicit
		if !filepath.IsAbs(p) {
			p = filepath.Join(cwd, p)
		}
		return w.checkTarget(filepath.Clean(p))
	}

	candidates, err := w.Candidates(cwd)
	if err != nil {
		return "", err
	}
	switch len(candidates) {
	case 0:
		return "", errors.New(errors.TargetNotFound,
			fmt.Sprintf("no config file in %s matches %s", cwd, strings.Join(w.cfg.Candidates, ", ")), nil,
			errors.FixAction{Type: errors.RunCommand, Command: "cri <command> --file <path>", Safe: true, Description: "Name the target file explicitly"})
	case 1:
		return w.checkTarget(candidates[0])
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = filepath.Base(c)
		}
		return "", errors.New(errors.TargetAmbiguous,
			fmt.Sprintf("%d candidate files in %s: %s", len(candidates), cwd, strings.Join(names, ", ")), nil,
			errors.FixAction{Type: errors.RunCommand, Command: "cri <command> --file " + names[0], Safe: true, Description: "Pick one target with --file"}).
			WithDetails(names)
	}
}

// Candidates lists non-hidden, non-directory entries of dir whose names
// match the configured patterns. Only the directory listing is read.
func (w *Workflow) Candidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		for _, pattern := range w.cfg.Candidates {
			if ok, _ := filepath.Match(pattern, name); ok {
				out = append(out, filepath.Join(dir, name))
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// checkTarget enforces: exists, regular, not a symlink, readable and
// writable, inside the workspace boundary and outside the CRI state dir.
func (w *Workflow) checkTarget(p string) (string, error) {
	info, err := os.Lstat(p)
	if os.IsNotExist(err) {
		return "", errors.Newf(errors.TargetNotFound, "target %s does not exist", p)
	}
	if err != nil {
		return "", errors.New(errors.TargetInvalid, "cannot stat target "+p, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return "", errors.Newf(errors.TargetInvalid, "target %s is a symlink; name the real file", p)
	}
	if !info.Mode().IsRegular() {
		return "", errors.Newf(errors.TargetInvalid, "target %s is not a regular file", p)
	}
	if w.ws != nil && !w.ws.Unscoped && !paths.IsWithinRoot(p, w.ws.Root) {
		return "", errors.Newf(errors.TargetInvalid, "target %s is outside workspace %s", p, w.ws.Root)
	}
	if w.ws != nil && w.ws.CRIDir != "" && paths.IsWithinRoot(p, w.ws.CRIDir) {
		return "", errors.Newf(errors.TargetInvalid, "target %s is inside the CRI state directory %s", p, w.ws.CRIDir)
	}
	f, err := os.OpenFile(p, os.O_RDWR, 0)
	if err != nil {
		return "", errors.New(errors.TargetInvalid, "target "+p+" is not readable and writable", err)
	}
	_ = f.Close()
	return p, nil
}

// ReadBounded reads r up to max bytes. Longer input is rejected without
// returning any of it.
func ReadBounded(r io.Reader, max int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if n > max {
		return nil, errors.Newf(errors.InputTooLarge, "input exceeds the %d byte limit", max)
	}
	return buf.Bytes(), nil
}
