package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cri/internal/errors"
	"cri/internal/notify"
	"cri/internal/slogutil"
	"cri/internal/testutil"
	"cri/internal/validate"
	"cri/internal/watcher"
)

type fakeChecker struct {
	mu         sync.Mutex
	alive      map[int]bool
	terminated []int
	// exitOnTerm marks a process dead when terminated.
	exitOnTerm bool
}

func newFakeChecker(alive ...int) *fakeChecker {
	f := &fakeChecker{alive: map[int]bool{}, exitOnTerm: true}
	for _, pid := range alive {
		f.alive[pid] = true
	}
	return f
}

func (f *fakeChecker) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeChecker) Terminate(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, pid)
	if f.exitOnTerm {
		delete(f.alive, pid)
	}
	return nil
}

func TestPIDFile_AcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.pid")
	checker := newFakeChecker(100)
	pf := NewPIDFile(path, checker)

	running, _, err := pf.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, pf.Acquire(100))
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 100, pid)

	err = pf.Acquire(200)
	assert.True(t, errors.HasCode(err, errors.DaemonRunning))

	require.NoError(t, pf.Release(200))
	_, err = os.Stat(path)
	require.NoError(t, err, "release by another pid keeps the file")

	require.NoError(t, pf.Release(100))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_StaleAndGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.pid")
	pf := NewPIDFile(path, newFakeChecker())

	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))
	running, pid, err := pf.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)
	assert.Equal(t, 4242, pid)
	require.NoError(t, pf.Acquire(7))

	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))
	running, _, err = pf.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)
	require.NoError(t, pf.Acquire(8))
}

func TestRegistry_PerWorkspace(t *testing.T) {
	dir := t.TempDir()
	checker := newFakeChecker(os.Getpid())
	reg := NewRegistry(dir, checker)

	a, err := reg.Acquire("/ws/a")
	require.NoError(t, err)
	_, err = reg.Acquire("/ws/b")
	require.NoError(t, err, "workspaces do not share a PID file")

	_, err = reg.Acquire("/ws/a")
	assert.True(t, errors.HasCode(err, errors.DaemonRunning))

	info, err := reg.Status("/ws/a")
	require.NoError(t, err)
	assert.True(t, info.Running)
	assert.Equal(t, os.Getpid(), info.PID)
	assert.Equal(t, a.Path(), info.PIDFile)
	assert.True(t, strings.HasPrefix(filepath.Base(info.PIDFile), "cri-watch-"))
}

func TestRegistry_Stop(t *testing.T) {
	dir := t.TempDir()
	checker := newFakeChecker(555)
	reg := NewRegistry(dir, checker)
	reg.poll = 5 * time.Millisecond

	_, err := reg.Stop(context.Background(), "/ws")
	assert.True(t, errors.HasCode(err, errors.DaemonNotRunning))

	require.NoError(t, reg.PIDFile("/ws").Acquire(555))
	pid, err := reg.Stop(context.Background(), "/ws")
	require.NoError(t, err)
	assert.Equal(t, 555, pid)
	assert.Equal(t, []int{555}, checker.terminated)
	_, err = os.Stat(reg.PIDFile("/ws").Path())
	assert.True(t, os.IsNotExist(err))
}

func TestRegistry_StopTimeout(t *testing.T) {
	checker := newFakeChecker(9)
	checker.exitOnTerm = false
	reg := NewRegistry(t.TempDir(), checker)
	reg.poll = 5 * time.Millisecond
	require.NoError(t, reg.PIDFile("/ws").Acquire(9))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := reg.Stop(ctx, "/ws")
	assert.True(t, errors.HasCode(err, errors.InternalError))
}

func TestRegistry_WaitStarted(t *testing.T) {
	checker := newFakeChecker(77)
	reg := NewRegistry(t.TempDir(), checker)
	reg.poll = 5 * time.Millisecond

	t.Run("recorded", func(t *testing.T) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = reg.PIDFile("/ws/up").Acquire(77)
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, reg.WaitStarted(ctx, "/ws/up", 77, nil))
	})

	t.Run("exited first", func(t *testing.T) {
		exited := make(chan error, 1)
		exited <- nil
		err := reg.WaitStarted(context.Background(), "/ws/down", 78, exited)
		assert.True(t, errors.HasCode(err, errors.DaemonNotRunning))
	})

	t.Run("other watcher holds the file", func(t *testing.T) {
		require.NoError(t, reg.PIDFile("/ws/taken").Acquire(77))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		err := reg.WaitStarted(ctx, "/ws/taken", 79, nil)
		assert.True(t, errors.HasCode(err, errors.InternalError))
	})
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func waitForLog(t *testing.T, path, want string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, _ := os.ReadFile(path)
		if strings.Contains(string(data), want) {
			return string(data)
		}
		time.Sleep(20 * time.Millisecond)
	}
	data, _ := os.ReadFile(path)
	t.Fatalf("watch log never contained %q:\n%s", want, data)
	return ""
}

func TestDaemon_LogsValidationOutcome(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "agents", "agent.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.WriteFile(target, []byte("name: ok\n"), 0o644))
	require.NoError(t, os.Chtimes(target, past, past))

	logPath := filepath.Join(root, ".meta", "cri", "watch.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(logPath), 0o700))
	logger, logFile, err := slogutil.NewFileLogger(logPath, slogutil.LevelFromString("info"))
	require.NoError(t, err)
	defer logFile.Close()

	backend := watcher.NewPollBackend(root, 20*time.Millisecond,
		watcher.Filter{Extensions: []string{".yaml"}, Exclude: []string{".meta"}})
	notifier := &recordingNotifier{}
	reg := NewRegistry(t.TempDir(), newFakeChecker())
	d := New(Options{
		Root:      root,
		Backend:   backend,
		Validator: validate.New(validate.DefaultRegistry(nil)),
		Notifier:  notifier,
		Registry:  reg,
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitForLog(t, logPath, "watch started")
	// Let the first poll cycle prime its cache.
	time.Sleep(100 * time.Millisecond)
	_, err = os.Stat(reg.PIDFile(root).Path())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(target, []byte("name: [unclosed\n"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(target, future, future))

	content := waitForLog(t, logPath, "validation failed")
	assert.Contains(t, content, "file="+target)
	assert.Eventually(t, func() bool { return notifier.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(target, []byte("name: fixed\n"), 0o644))
	later := future.Add(time.Minute)
	require.NoError(t, os.Chtimes(target, later, later))
	waitForLog(t, logPath, "validation passed")

	cancel()
	require.NoError(t, <-done)
	checked, failed := d.Counts()
	assert.Equal(t, 2, checked)
	assert.Equal(t, 1, failed)
	_, err = os.Stat(reg.PIDFile(root).Path())
	assert.True(t, os.IsNotExist(err), "PID file released on exit")
}

func TestDaemon_RefusesSecondInstance(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(t.TempDir(), newFakeChecker(os.Getpid()))
	_, err := reg.Acquire(root)
	require.NoError(t, err)

	d := New(Options{
		Root:      root,
		Backend:   watcher.NewPollBackend(root, time.Second, watcher.Filter{}),
		Validator: validate.New(validate.DefaultRegistry(nil)),
		Registry:  reg,
	})
	err = d.Run(context.Background())
	assert.True(t, errors.HasCode(err, errors.DaemonRunning))
}

func TestInstallUnits(t *testing.T) {
	home := t.TempDir()
	u := Unit{Executable: "/usr/local/bin/cri", Root: "/home/me/workspace", LogPath: "/home/me/workspace/.meta/cri/watch.log"}

	path, err := Install(u, "linux", home)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "systemd", "user", u.Name()+".service"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ExecStart="/usr/local/bin/cri" --dir "/home/me/workspace" watch run`)
	assert.Contains(t, EnableHint(u, "linux", path), u.Name()+".service")

	path, err = Install(u, "darwin", home)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".plist"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<string>/home/me/workspace</string>")
	assert.Contains(t, string(data), "<string>dev.cri."+u.Name()+"</string>")

	_, err = Install(u, "plan9", home)
	assert.True(t, errors.HasCode(err, errors.InvalidArgument))
}

func TestUnitTemplates_Golden(t *testing.T) {
	u := Unit{Executable: "/usr/local/bin/cri", Root: "/home/me/workspace", LogPath: "/home/me/workspace/.meta/cri/watch.log"}
	testutil.CompareGolden(t, "systemd.service", []byte(SystemdUnit(u)))
	testutil.CompareGolden(t, "launchd.plist", []byte(LaunchdPlist(u)))
}
