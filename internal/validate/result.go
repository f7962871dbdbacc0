// Package validate classifies configuration content as pass, fail or skip.
package validate

import (
	"fmt"
	"strings"
)

// Status is the tri-state outcome of a validation.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	// StatusSkip means no checker is registered for the file type. Callers
	// treat it as a non-blocking soft pass.
	StatusSkip Status = "skip"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one finding from a checker.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Path     string   `json:"path,omitempty"`
	Source   string   `json:"source,omitempty"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(string(d.Severity))
	if d.Line > 0 {
		fmt.Fprintf(&b, " line %d", d.Line)
		if d.Column > 0 {
			fmt.Fprintf(&b, ":%d", d.Column)
		}
	}
	if d.Path != "" {
		fmt.Fprintf(&b, " at %s", d.Path)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	if d.Source != "" {
		fmt.Fprintf(&b, " (%s)", d.Source)
	}
	return b.String()
}

// Errorf builds an error diagnostic.
func Errorf(source, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Source: source, Message: fmt.Sprintf(format, args...)}
}

// Warnf builds a warning diagnostic.
func Warnf(source, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Source: source, Message: fmt.Sprintf(format, args...)}
}

// Infof builds an info diagnostic.
func Infof(source, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityInfo, Source: source, Message: fmt.Sprintf(format, args...)}
}

// Result is the outcome of one validation. It is never persisted.
type Result struct {
	Status      Status       `json:"status"`
	FileType    string       `json:"fileType,omitempty"`
	Path        string       `json:"path,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Summarize derives the status: skip without a checker, otherwise pass iff
// there are no error diagnostics. Warnings never fail a result.
func Summarize(fileType string, checked bool, diags []Diagnostic) Result {
	r := Result{FileType: fileType, Diagnostics: diags}
	switch {
	case !checked:
		r.Status = StatusSkip
	case countSeverity(diags, SeverityError) > 0:
		r.Status = StatusFail
	default:
		r.Status = StatusPass
	}
	return r
}

// Passed reports a pass.
func (r Result) Passed() bool { return r.Status == StatusPass }

// Failed reports a fail.
func (r Result) Failed() bool { return r.Status == StatusFail }

// Skipped reports a skip.
func (r Result) Skipped() bool { return r.Status == StatusSkip }

// Errors returns the error diagnostics.
func (r Result) Errors() []Diagnostic { return filter(r.Diagnostics, SeverityError) }

// Warnings returns the warning diagnostics.
func (r Result) Warnings() []Diagnostic { return filter(r.Diagnostics, SeverityWarning) }

// Summary is a one-line description such as "fail (2 errors, 1 warning)".
func (r Result) Summary() string {
	e := countSeverity(r.Diagnostics, SeverityError)
	w := countSeverity(r.Diagnostics, SeverityWarning)
	if e == 0 && w == 0 {
		return string(r.Status)
	}
	return fmt.Sprintf("%s (%s, %s)", r.Status, plural(e, "error"), plural(w, "warning"))
}

func filter(diags []Diagnostic, sev Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range diags {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

func countSeverity(diags []Diagnostic, sev Severity) int {
	n := 0
	for _, d := range diags {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
