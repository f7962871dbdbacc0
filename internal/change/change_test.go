package change

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cri/internal/backup"
	"cri/internal/config"
	"cri/internal/errors"
	"cri/internal/validate"
	"cri/internal/workspace"
)

type fixture struct {
	root   string
	target string
	store  *backup.Store
	out    *bytes.Buffer
	wf     *Workflow
}

func stepClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}

type fixtureOption func(*Deps)

func withValidator(v Validator) fixtureOption { return func(d *Deps) { d.Validator = v } }
func withPrompter(p Prompter) fixtureOption   { return func(d *Deps) { d.Prompter = p } }
func withMaxInput(n int64) fixtureOption {
	return func(d *Deps) { d.Config.MaxInputBytes = n }
}

func newFixture(t *testing.T, name, content string, opts ...fixtureOption) *fixture {
	t.Helper()
	root := t.TempDir()
	target := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(target, []byte(content), 0o640))

	criDir := filepath.Join(root, ".meta", "cri")
	f := &fixture{
		root:   root,
		target: target,
		store:  backup.NewStore(filepath.Join(criDir, "backups"), backup.WithRoot(root), backup.WithClock(stepClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))), backup.WithPID(42)),
		out:    &bytes.Buffer{},
	}
	deps := Deps{
		Workspace: &workspace.Workspace{Root: root, Kind: workspace.KindNamed, Label: "test", CRIDir: criDir},
		Store:     f.store,
		Validator: validate.New(validate.DefaultRegistry(nil)),
		Config:    config.DefaultConfig().Change,
		Out:       f.out,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.wf = New(deps)
	return f
}

func (f *fixture) read(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.target)
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) backups(t *testing.T) []backup.Backup {
	t.Helper()
	list, err := f.store.List(f.target)
	require.NoError(t, err)
	return list
}

// failingPathValidator passes proposed content but fails every check of a
// file on disk.
type failingPathValidator struct {
	*validate.Validator
}

func (failingPathValidator) ValidatePath(_ context.Context, path, fileType string) (validate.Result, error) {
	r := validate.Summarize(fileType, true, []validate.Diagnostic{validate.Errorf("test", "forced failure")})
	r.Path = path
	return r, nil
}

func TestApply_ValidChange(t *testing.T) {
	f := newFixture(t, "config.json", `{"a": 1}`+"\n")

	res, err := f.wf.Apply(context.Background(), f.target, strings.NewReader(`{"a": 2}`+"\n"), ApplyOptions{Yes: true})
	require.NoError(t, err)

	assert.Equal(t, `{"a": 2}`+"\n", f.read(t))
	assert.Equal(t, []State{StateInit, StateReview, StateValidate, StateConfirm, StateBackup, StateWrite, StatePostValidate, StateDone}, res.Trail)
	require.NotNil(t, res.Backup)
	assert.Equal(t, 1, res.Diff.Added)
	assert.Equal(t, 1, res.Diff.Removed)

	list := f.backups(t)
	require.Len(t, list, 1)
	content, err := f.store.Read(&list[0])
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`+"\n", string(content))
	assert.Contains(t, f.out.String(), `+{"a": 2}`)

	info, err := os.Stat(f.target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestApply_InvalidContentAborts(t *testing.T) {
	f := newFixture(t, "config.json", `{"a": 1}`)

	res, err := f.wf.Apply(context.Background(), f.target, strings.NewReader(`{"a": `), ApplyOptions{Yes: true})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ValidationFailed))
	assert.True(t, res.Validation.Failed())

	assert.Equal(t, `{"a": 1}`, f.read(t))
	assert.Empty(t, f.backups(t))
	assert.NotContains(t, res.Trail, StateBackup)
}

func TestApply_InvalidContentPromptDeclined(t *testing.T) {
	f := newFixture(t, "config.json", `{"a": 1}`, withPrompter(StaticPrompter(false)))

	_, err := f.wf.Apply(context.Background(), f.target, strings.NewReader(`[1,`), ApplyOptions{})
	assert.True(t, errors.HasCode(err, errors.ValidationFailed))
	assert.Equal(t, `{"a": 1}`, f.read(t))
	assert.Empty(t, f.backups(t))
}

func TestApply_ForceOverridesValidation(t *testing.T) {
	f := newFixture(t, "notes.yaml", "a: 1\n", withValidator(failingPreValidator{}))

	res, err := f.wf.Apply(context.Background(), f.target, strings.NewReader("a: 2\n"), ApplyOptions{Force: true, Yes: true})
	require.NoError(t, err)
	assert.True(t, res.Overridden)
	assert.Equal(t, "a: 2\n", f.read(t))
	assert.Len(t, f.backups(t), 1)
}

// failingPreValidator fails proposed content and passes files on disk.
type failingPreValidator struct{}

func (failingPreValidator) Detect(string) string { return validate.TypeYAML }

func (failingPreValidator) ValidateReader(_ context.Context, r io.Reader, fileType string) (validate.Result, error) {
	_, _ = io.Copy(io.Discard, r)
	return validate.Summarize(fileType, true, []validate.Diagnostic{validate.Errorf("test", "rejected")}), nil
}

func (failingPreValidator) ValidatePath(_ context.Context, _ string, fileType string) (validate.Result, error) {
	return validate.Summarize(fileType, true, nil), nil
}

func TestApply_AutoRollbackOnPostWriteFailure(t *testing.T) {
	original := `{"keep": true}` + "\n"
	f := newFixture(t, "config.json", original,
		withValidator(failingPathValidator{validate.New(validate.DefaultRegistry(nil))}))

	res, err := f.wf.Apply(context.Background(), f.target, strings.NewReader(`{"keep": false}`), ApplyOptions{Yes: true})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.PostWriteFailed))
	assert.True(t, res.RolledBack)
	assert.Equal(t, StateDoneFailed, res.Final())
	assert.Contains(t, res.Trail, StateAutoRollback)

	assert.Equal(t, original, f.read(t))
	info, statErr := os.Stat(f.target)
	require.NoError(t, statErr)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	var ce *errors.CriError
	require.ErrorAs(t, err, &ce)
	require.NotEmpty(t, ce.SuggestedFixes)
	assert.Equal(t, "cri rollback "+res.Backup.ID, ce.SuggestedFixes[0].Command)
	assert.Contains(t, ce.Message, res.Backup.ID)
}

func TestApply_DryRunHasNoSideEffects(t *testing.T) {
	f := newFixture(t, "config.json", `{"a": 1}`)

	res, err := f.wf.Apply(context.Background(), f.target, strings.NewReader(`{"a": 3}`), ApplyOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, []State{StateInit, StateReview, StateValidate, StateDone}, res.Trail)
	assert.Equal(t, `{"a": 1}`, f.read(t))
	assert.Empty(t, f.backups(t))
	assert.Contains(t, f.out.String(), `+{"a": 3}`)
}

func TestApply_DryRunReportsFailure(t *testing.T) {
	f := newFixture(t, "config.json", `{"a": 1}`)

	_, err := f.wf.Apply(context.Background(), f.target, strings.NewReader(`{`), ApplyOptions{DryRun: true})
	assert.True(t, errors.HasCode(err, errors.ValidationFailed))
	assert.Empty(t, f.backups(t))
}

func TestApply_NoChanges(t *testing.T) {
	f := newFixture(t, "config.json", `{"a": 1}`)

	res, err := f.wf.Apply(context.Background(), f.target, strings.NewReader(`{"a": 1}`), ApplyOptions{Yes: true})
	require.NoError(t, err)
	assert.True(t, res.NoChanges)
	assert.Empty(t, f.backups(t))
	assert.Contains(t, f.out.String(), "No changes.")
}

func TestApply_ConfirmationDeclined(t *testing.T) {
	f := newFixture(t, "config.json", `{"a": 1}`, withPrompter(StaticPrompter(false)))

	_, err := f.wf.Apply(context.Background(), f.target, strings.NewReader(`{"a": 2}`), ApplyOptions{})
	assert.True(t, errors.HasCode(err, errors.Aborted))
	assert.Equal(t, `{"a": 1}`, f.read(t))
	assert.Empty(t, f.backups(t))
}

func TestApply_InputLimit(t *testing.T) {
	f := newFixture(t, "data.csv", "a,b\n", withMaxInput(8))

	_, err := f.wf.Apply(context.Background(), f.target, strings.NewReader("123456789"), ApplyOptions{Yes: true})
	assert.True(t, errors.HasCode(err, errors.InputTooLarge))
	assert.Equal(t, "a,b\n", f.read(t))

	_, err = f.wf.Apply(context.Background(), f.target, strings.NewReader("12345678"), ApplyOptions{Yes: true})
	require.NoError(t, err)
	assert.Equal(t, "12345678", f.read(t))
}

func TestApply_UnknownTypeDoesNotBlock(t *testing.T) {
	f := newFixture(t, "data.csv", "a,b\n1,2\n")

	res, err := f.wf.Apply(context.Background(), f.target, strings.NewReader("a,b\n1,3\n"), ApplyOptions{Yes: true})
	require.NoError(t, err)
	assert.True(t, res.Validation.Skipped())
	assert.Equal(t, "a,b\n1,3\n", f.read(t))
	assert.Equal(t, StateDone, res.Final())
}

func TestRollback_DefaultsToNewest(t *testing.T) {
	f := newFixture(t, "config.json", `{"v": 1}`)
	ctx := context.Background()

	_, err := f.wf.Apply(ctx, f.target, strings.NewReader(`{"v": 2}`), ApplyOptions{Yes: true})
	require.NoError(t, err)
	_, err = f.wf.Apply(ctx, f.target, strings.NewReader(`{"v": 3}`), ApplyOptions{Yes: true})
	require.NoError(t, err)

	res, err := f.wf.Rollback(ctx, f.target, RollbackOptions{Yes: true})
	require.NoError(t, err)
	assert.Equal(t, `{"v": 2}`, f.read(t))
	require.NotNil(t, res.Backup)
	assert.Greater(t, res.Backup.ID, res.Restored.ID)

	snapshot, err := f.store.Read(res.Backup)
	require.NoError(t, err)
	assert.Equal(t, `{"v": 3}`, string(snapshot))
}

func TestRollback_IsReversible(t *testing.T) {
	f := newFixture(t, "config.json", `{"v": 1}`)
	ctx := context.Background()

	applied, err := f.wf.Apply(ctx, f.target, strings.NewReader(`{"v": 2}`), ApplyOptions{Yes: true})
	require.NoError(t, err)

	first, err := f.wf.Rollback(ctx, f.target, RollbackOptions{ID: applied.Backup.ID, Yes: true})
	require.NoError(t, err)
	assert.Equal(t, `{"v": 1}`, f.read(t))

	_, err = f.wf.Rollback(ctx, f.target, RollbackOptions{ID: first.Backup.ID, Yes: true})
	require.NoError(t, err)
	assert.Equal(t, `{"v": 2}`, f.read(t))
}

func TestRollback_UnknownID(t *testing.T) {
	f := newFixture(t, "config.json", `{}`)

	_, err := f.wf.Rollback(context.Background(), f.target, RollbackOptions{ID: "20990101-000000.000000-1", Yes: true})
	assert.True(t, errors.HasCode(err, errors.BackupNotFound))
}

func TestRollback_InvalidBackupIsWarning(t *testing.T) {
	f := newFixture(t, "config.json", `{"broken": `, withValidator(failingPreValidator{}))
	ctx := context.Background()

	_, err := f.wf.Apply(ctx, f.target, strings.NewReader(`{"fixed": true}`), ApplyOptions{Force: true, Yes: true})
	require.NoError(t, err)

	f.wf.validator = validate.New(validate.DefaultRegistry(nil))
	res, err := f.wf.Rollback(ctx, f.target, RollbackOptions{Yes: true})
	require.NoError(t, err)
	assert.Equal(t, `{"broken": `, f.read(t))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], res.Backup.ID)
}

func TestRollback_Declined(t *testing.T) {
	f := newFixture(t, "config.json", `{"v": 1}`)
	ctx := context.Background()
	_, err := f.wf.Apply(ctx, f.target, strings.NewReader(`{"v": 2}`), ApplyOptions{Yes: true})
	require.NoError(t, err)

	_, err = f.wf.Rollback(ctx, f.target, RollbackOptions{})
	assert.True(t, errors.HasCode(err, errors.Aborted))
	assert.Equal(t, `{"v": 2}`, f.read(t))
	assert.Len(t, f.backups(t), 1)
}

func TestRollback_SameBasenameOtherDirectory(t *testing.T) {
	f := newFixture(t, "notes.txt", "x")
	ctx := context.Background()
	a := filepath.Join(f.root, "svc-a", "config.json")
	b := filepath.Join(f.root, "svc-b", "config.json")
	for path, content := range map[string]string{a: `{"svc":"a"}`, b: `{"svc":"b"}`} {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	_, err := f.wf.Apply(ctx, a, strings.NewReader(`{"svc":"a2"}`), ApplyOptions{Yes: true})
	require.NoError(t, err)

	_, err = f.wf.Rollback(ctx, b, RollbackOptions{Yes: true})
	assert.True(t, errors.HasCode(err, errors.BackupNotFound))
	data, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, `{"svc":"b"}`, string(data))

	listB, err := f.wf.List(b)
	require.NoError(t, err)
	assert.Empty(t, listB)

	res, err := f.wf.Rollback(ctx, a, RollbackOptions{Yes: true})
	require.NoError(t, err)
	require.NotNil(t, res.Restored)
	data, err = os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, `{"svc":"a"}`, string(data))
}

func TestResolveTarget(t *testing.T) {
	t.Run("single candidate", func(t *testing.T) {
		f := newFixture(t, "config.json", `{}`)
		got, err := f.wf.ResolveTarget(f.root, "")
		require.NoError(t, err)
		assert.Equal(t, f.target, got)
	})

	t.Run("ambiguous", func(t *testing.T) {
		f := newFixture(t, "config.json", `{}`)
		require.NoError(t, os.WriteFile(filepath.Join(f.root, "other.yaml"), []byte("a: 1\n"), 0o644))

		_, err := f.wf.ResolveTarget(f.root, "")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.TargetAmbiguous))
		var ce *errors.CriError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"config.json", "other.yaml"}, ce.Details)
		assert.Empty(t, f.backups(t))
	})

	t.Run("none", func(t *testing.T) {
		f := newFixture(t, "notes.txt", "x")
		_, err := f.wf.ResolveTarget(f.root, "")
		assert.True(t, errors.HasCode(err, errors.TargetNotFound))
	})

	t.Run("hidden files ignored", func(t *testing.T) {
		f := newFixture(t, "config.json", `{}`)
		require.NoError(t, os.WriteFile(filepath.Join(f.root, ".config.json.tmp-1"), nil, 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(f.root, ".hidden.json"), nil, 0o600))
		got, err := f.wf.ResolveTarget(f.root, "")
		require.NoError(t, err)
		assert.Equal(t, f.target, got)
	})

	t.Run("explicit relative", func(t *testing.T) {
		f := newFixture(t, "notes.txt", "x")
		got, err := f.wf.ResolveTarget(f.root, "notes.txt")
		require.NoError(t, err)
		assert.Equal(t, f.target, got)
	})

	t.Run("explicit missing", func(t *testing.T) {
		f := newFixture(t, "config.json", `{}`)
		_, err := f.wf.ResolveTarget(f.root, "nope.json")
		assert.True(t, errors.HasCode(err, errors.TargetNotFound))
	})

	t.Run("symlink rejected", func(t *testing.T) {
		f := newFixture(t, "config.json", `{}`)
		link := filepath.Join(f.root, "link.json")
		require.NoError(t, os.Symlink(f.target, link))
		_, err := f.wf.ResolveTarget(f.root, link)
		assert.True(t, errors.HasCode(err, errors.TargetInvalid))

		_, err = f.wf.ResolveTarget(f.root, "")
		assert.True(t, errors.HasCode(err, errors.TargetAmbiguous))
	})

	t.Run("directory rejected", func(t *testing.T) {
		f := newFixture(t, "config.json", `{}`)
		require.NoError(t, os.Mkdir(filepath.Join(f.root, "sub"), 0o755))
		_, err := f.wf.ResolveTarget(f.root, "sub")
		assert.True(t, errors.HasCode(err, errors.TargetInvalid))
	})

	t.Run("state directory rejected", func(t *testing.T) {
		f := newFixture(t, "config.json", `{"v": 1}`)
		res, err := f.wf.Apply(context.Background(), f.target, strings.NewReader(`{"v": 2}`), ApplyOptions{Yes: true})
		require.NoError(t, err)
		require.NotNil(t, res.Backup)

		_, err = f.wf.ResolveTarget(f.root, res.Backup.Path)
		assert.True(t, errors.HasCode(err, errors.TargetInvalid))

		data, err := os.ReadFile(res.Backup.Path)
		require.NoError(t, err)
		assert.Equal(t, `{"v": 1}`, string(data))
	})

		t.Run("outside workspace", func(t *testing.T) {
		f := newFixture(t, "config.json", `{}`)
		outside := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(outside, []byte(`{}`), 0o644))

		_, err := f.wf.ResolveTarget(f.root, outside)
		assert.True(t, errors.HasCode(err, errors.TargetInvalid))

		f.wf.ws.Unscoped = true
		got, err := f.wf.ResolveTarget(f.root, outside)
		require.NoError(t, err)
		assert.Equal(t, outside, got)
	})
}

func TestReadBounded(t *testing.T) {
	data, err := ReadBounded(strings.NewReader("abcd"), 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	_, err = ReadBounded(strings.NewReader("abcde"), 4)
	assert.True(t, errors.HasCode(err, errors.InputTooLarge))
}

func TestDiffAndStatus(t *testing.T) {
	f := newFixture(t, "config.json", "{\n  \"a\": 1\n}\n")
	ctx := context.Background()

	_, _, err := f.wf.Diff(f.target, "")
	assert.True(t, errors.HasCode(err, errors.BackupNotFound))

	_, err = f.wf.Apply(ctx, f.target, strings.NewReader("{\n  \"a\": 2\n}\n"), ApplyOptions{Yes: true})
	require.NoError(t, err)

	d, b, err := f.wf.Diff(f.target, "")
	require.NoError(t, err)
	assert.NotNil(t, b)
	assert.Equal(t, 1, d.Stats.Added)
	assert.Contains(t, d.Unified(), `-  "a": 1`)

	st, err := f.wf.Status(ctx, f.target)
	require.NoError(t, err)
	assert.Equal(t, f.root, st.Workspace)
	assert.Equal(t, validate.TypeJSON, st.FileType)
	assert.True(t, st.Validation.Passed())
	assert.Equal(t, 1, st.Backups)
	require.NotNil(t, st.SinceLatest)
	assert.Equal(t, 1, st.SinceLatest.Removed)

	r, err := f.wf.Test(ctx, f.target)
	require.NoError(t, err)
	assert.True(t, r.Passed())
}

func TestPrune(t *testing.T) {
	f := newFixture(t, "config.json", `{"v": 0}`)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := f.wf.Apply(ctx, f.target, strings.NewReader(`{"v": `+string(rune('0'+i))+`}`), ApplyOptions{Yes: true})
		require.NoError(t, err)
	}
	require.Len(t, f.backups(t), 3)

	_, err := f.wf.Prune(f.target, 0, true)
	assert.True(t, errors.HasCode(err, errors.InvalidArgument))

	_, err = f.wf.Prune(f.target, 1, false)
	assert.True(t, errors.HasCode(err, errors.Aborted))
	require.Len(t, f.backups(t), 3)

	res, err := f.wf.Prune(f.target, 1, true)
	require.NoError(t, err)
	assert.Len(t, res.Removed, 2)
	remaining := f.backups(t)
	require.Len(t, remaining, 1)
	assert.Equal(t, res.Kept[0].ID, remaining[0].ID)
	assert.Equal(t, `{"v": 3}`, f.read(t))
}

func TestLinePrompter(t *testing.T) {
	cases := map[string]bool{
		"y\n":   true,
		"YES\n": true,
		"n\n":   false,
		"\n":    false,
		"":      false,
		"y":     true,
	}
	for input, want := range cases {
		var out bytes.Buffer
		got, err := NewLinePrompter(strings.NewReader(input), &out).Confirm("Proceed?")
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %q", input)
		assert.Contains(t, out.String(), "Proceed? [y/N]: ")
	}
}
