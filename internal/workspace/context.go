package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"cri/internal/paths"
	"cri/internal/version"
)

// Context is the per-workspace metadata stored in <cri>/config.json.
type Context struct {
	WorkspaceRoot string    `json:"workspace_root"`
	ContextType   string    `json:"context_type"`
	CreatedAt     time.Time `json:"created_at"`
	Version       int       `json:"version"`
}

// Init creates the state directory with owner-only permissions and writes
// the context file if it does not exist yet. An existing context file is
// never rewritten. Calling Init repeatedly is safe and returns the stored
// context.
func Init(ws *Workspace, now time.Time) (*Context, bool, error) {
	layout := ws.Layout()
	if err := layout.Ensure(); err != nil {
		return nil, false, fmt.Errorf("create state dir %s: %w", layout.Dir, err)
	}

	ctx := &Context{
		WorkspaceRoot: ws.Root,
		ContextType:   ws.Label,
		CreatedAt:     now.UTC(),
		Version:       version.ContextVersion,
	}

	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return nil, false, err
	}

	f, err := os.OpenFile(layout.ContextPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		existing, readErr := ReadContext(layout)
		if readErr != nil {
			return nil, false, readErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create context file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return nil, false, fmt.Errorf("write context file: %w", err)
	}
	return ctx, true, f.Sync()
}

// ReadContext loads the context file of a state directory.
func ReadContext(layout paths.Layout) (*Context, error) {
	data, err := os.ReadFile(layout.ContextPath())
	if err != nil {
		return nil, err
	}
	var ctx Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parse %s: %w", layout.ContextPath(), err)
	}
	return &ctx, nil
}
