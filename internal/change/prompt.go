package change

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// StaticPrompter answers every question the same way.
type StaticPrompter bool

// Confirm implements Prompter.
func (p StaticPrompter) Confirm(string) (bool, error) { return bool(p), nil }

// LinePrompter asks on Out and reads a y/N answer from In.
type LinePrompter struct {
	In  *bufio.Reader
	Out io.Writer
}

// NewLinePrompter wraps in and out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{In: bufio.NewReader(in), Out: out}
}

// Confirm implements Prompter. Anything but y or yes declines, as does EOF.
func (p *LinePrompter) Confirm(question string) (bool, error) {
	fmt.Fprintf(p.Out, "%s [y/N]: ", question)
	line, err := p.In.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	if err == io.EOF && line == "" {
		fmt.Fprintln(p.Out)
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// TerminalPrompter returns a prompter reading from the controlling terminal.
// Stdin may carry the proposed content, so /dev/tty is tried first and stdin
// only when it is itself a terminal. Without a terminal every question is
// declined. The returned closer releases the terminal handle.
func TerminalPrompter(stdin *os.File, out io.Writer) (Prompter, io.Closer) {
	if tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0); err == nil {
		if IsTerminal(tty) {
			return NewLinePrompter(tty, out), tty
		}
		_ = tty.Close()
	}
	if IsTerminal(stdin) {
		return NewLinePrompter(stdin, out), nopCloser{}
	}
	return StaticPrompter(false), nopCloser{}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
