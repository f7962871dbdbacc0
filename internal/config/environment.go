package config

import "os"

// Environment is the subset of process environment cri cares about. It is
// captured once in main and passed down; nothing below cmd/ reads os.Getenv.
type Environment struct {
	Home          string
	XDGConfigHome string
	User          string
	Shell         string
	Term          string
	SSHConnection string
	TempDir       string

	// CRI_* overrides
	Dir          string
	StateDir     string
	ConfigFile   string
	LogLevel     string
	WatchBackend string
	GlobalRoot   string
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// EnvironmentFrom builds an Environment from a lookup function.
func EnvironmentFrom(lookup LookupFunc) Environment {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	user := get("USER")
	if user == "" {
		user = get("LOGNAME")
	}
	if user == "" {
		user = get("USERNAME")
	}
	tmp := get("TMPDIR")
	if tmp == "" {
		tmp = "/tmp"
	}
	return Environment{
		Home:          get("HOME"),
		XDGConfigHome: get("XDG_CONFIG_HOME"),
		User:          user,
		Shell:         get("SHELL"),
		Term:          get("TERM"),
		SSHConnection: get("SSH_CONNECTION"),
		TempDir:       tmp,
		Dir:           get("CRI_DIR"),
		StateDir:      get("CRI_STATE_DIR"),
		ConfigFile:    get("CRI_CONFIG"),
		LogLevel:      get("CRI_LOG_LEVEL"),
		WatchBackend:  get("CRI_WATCH_BACKEND"),
		GlobalRoot:    get("CRI_GLOBAL_ROOT"),
	}
}

// ProcessEnvironment captures the running process's environment.
func ProcessEnvironment() Environment {
	env := EnvironmentFrom(os.LookupEnv)
	env.TempDir = os.TempDir()
	if env.Home == "" {
		if home, err := os.UserHomeDir(); err == nil {
			env.Home = home
		}
	}
	return env
}

// Remote reports whether the process runs inside a remote (SSH) session.
func (e Environment) Remote() bool {
	return e.SSHConnection != ""
}
