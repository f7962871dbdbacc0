package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
)

// maxShellDiagnostics caps tree-sitter findings on badly broken input.
const maxShellDiagnostics = 20

var bashLine = regexp.MustCompile(`line (\d+): (.*)$`)

// ShellChecker checks shell syntax. It prefers `bash -n` and falls back to
// an in-process tree-sitter parse when bash is not on PATH.
type ShellChecker struct {
	lookPath func(string) (string, error)
}

// NewShellChecker creates a shell checker using exec.LookPath.
func NewShellChecker() ShellChecker {
	return ShellChecker{lookPath: exec.LookPath}
}

// Check implements Checker.
func (s ShellChecker) Check(ctx context.Context, content []byte) []Diagnostic {
	lookPath := s.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if bashPath, err := lookPath("bash"); err == nil {
		return bashSyntax(ctx, bashPath, content)
	}
	return treeSitterSyntax(ctx, content)
}

func bashSyntax(ctx context.Context, bashPath string, content []byte) []Diagnostic {
	cmd := exec.CommandContext(ctx, bashPath, "-n")
	cmd.Stdin = bytes.NewReader(content)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return []Diagnostic{Errorf("bash", "bash -n: %v", err)}
	}

	var diags []Diagnostic
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		d := Errorf("bash", "%s", line)
		if m := bashLine.FindStringSubmatch(line); m != nil {
			d.Line, _ = strconv.Atoi(m[1])
			d.Message = m[2]
		}
		diags = append(diags, d)
	}
	if len(diags) == 0 {
		diags = append(diags, Errorf("bash", "bash -n exited with status %d", exitErr.ExitCode()))
	}
	return diags
}

func treeSitterSyntax(ctx context.Context, content []byte) []Diagnostic {
	parser := sitter.NewParser()
	parser.SetLanguage(bash.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return []Diagnostic{Errorf("tree-sitter", "parse failed: %v", err)}
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}
	var diags []Diagnostic
	collectSyntaxErrors(root, &diags, 0)
	if len(diags) == 0 {
		diags = append(diags, Errorf("tree-sitter", "syntax error"))
	}
	return diags
}

func collectSyntaxErrors(node *sitter.Node, diags *[]Diagnostic, depth int) {
	if depth > 500 || len(*diags) >= maxShellDiagnostics {
		return
	}
	if node.IsError() || node.IsMissing() {
		msg := "syntax error"
		if node.IsMissing() {
			msg = fmt.Sprintf("missing %q", node.Type())
		}
		start := node.StartPoint()
		*diags = append(*diags, Diagnostic{
			Severity: SeverityError,
			Source:   "tree-sitter",
			Message:  msg,
			Line:     int(start.Row) + 1,
			Column:   int(start.Column) + 1,
		})
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectSyntaxErrors(node.Child(i), diags, depth+1)
	}
}
