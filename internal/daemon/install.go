package daemon

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"cri/internal/errors"
	"cri/internal/paths"
)

// Unit describes an auto-start entry for the watcher of one workspace.
type Unit struct {
	Executable string
	Root       string
	LogPath    string
}

// Name is the per-workspace unit name.
func (u Unit) Name() string {
	return strings.TrimSuffix(paths.PIDFileName(u.Root), ".pid")
}

var systemdTemplate = template.Must(template.New("systemd").Parse(`[Unit]
Description=cri config watcher for {{.Root}}

[Service]
Type=simple
ExecStart={{printf "%q" .Executable}} --dir {{printf "%q" .Root}} watch run
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`))

var launchdTemplate = template.Must(template.New("launchd").Funcs(template.FuncMap{
	"xml": xmlEscape,
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{xml .Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{xml .Executable}}</string>
		<string>--dir</string>
		<string>{{xml .Root}}</string>
		<string>watch</string>
		<string>run</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardErrorPath</key>
	<string>{{xml .LogPath}}</string>
</dict>
</plist>
`))

// SystemdUnit renders a systemd user service.
func SystemdUnit(u Unit) string {
	var b bytes.Buffer
	_ = systemdTemplate.Execute(&b, u)
	return b.String()
}

// LaunchdPlist renders a launchd agent.
func LaunchdPlist(u Unit) string {
	var b bytes.Buffer
	_ = launchdTemplate.Execute(&b, struct {
		Unit
		Label string
	}{u, "dev.cri." + u.Name()})
	return b.String()
}

// UnitPath returns where the unit for goos is installed under home.
func UnitPath(u Unit, goos, home string) (string, error) {
	switch goos {
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", u.Name()+".service"), nil
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", "dev.cri."+u.Name()+".plist"), nil
	default:
		return "", errors.Newf(errors.InvalidArgument, "auto-start install is not supported on %s", goos)
	}
}

// Install writes the unit for goos and returns its path. It does not enable
// or load the unit.
func Install(u Unit, goos, home string) (string, error) {
	path, err := UnitPath(u, goos, home)
	if err != nil {
		return "", err
	}
	var content string
	if goos == "darwin" {
		content = LaunchdPlist(u)
	} else {
		content = SystemdUnit(u)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// EnableHint is the command that activates an installed unit.
func EnableHint(u Unit, goos, path string) string {
	if goos == "darwin" {
		return "launchctl load -w " + path
	}
	return "systemctl --user enable --now " + u.Name() + ".service"
}

func xmlEscape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
