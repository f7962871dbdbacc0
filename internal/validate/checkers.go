package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// JSONChecker checks that content is a single well-formed JSON value.
type JSONChecker struct{}

// Check implements Checker.
func (JSONChecker) Check(_ context.Context, content []byte) []Diagnostic {
	if _, err := decodeJSON(content); err != nil {
		return []Diagnostic{jsonDiagnostic(content, err)}
	}
	return nil
}

func decodeJSON(content []byte) (any, error) {
	var v any
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, errors.New("empty document")
	}
	err := json.Unmarshal(content, &v)
	return v, err
}

func jsonDiagnostic(content []byte, err error) Diagnostic {
	d := Errorf(TypeJSON, "%s", err.Error())
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		d.Line, d.Column = position(content, syn.Offset)
	}
	return d
}

// position converts encoding/json's consumed-byte offset, which includes
// the offending byte, to a 1-based line and column of that byte.
func position(content []byte, offset int64) (int, int) {
	idx := int(offset) - 1
	if idx > len(content) {
		idx = len(content)
	}
	if idx < 0 {
		idx = 0
	}
	prefix := content[:idx]
	line := bytes.Count(prefix, []byte("\n")) + 1
	col := idx - bytes.LastIndexByte(prefix, '\n')
	return line, col
}

// YAMLChecker checks every document of a YAML stream.
type YAMLChecker struct{}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// Check implements Checker.
func (YAMLChecker) Check(_ context.Context, content []byte) []Diagnostic {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			d := Errorf(TypeYAML, "%s", strings.TrimPrefix(err.Error(), "yaml: "))
			if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
				d.Line, _ = strconv.Atoi(m[1])
			}
			return []Diagnostic{d}
		}
	}
}

// TOMLChecker checks that content is a valid TOML document.
type TOMLChecker struct{}

// Check implements Checker.
func (TOMLChecker) Check(_ context.Context, content []byte) []Diagnostic {
	var v map[string]any
	_, err := toml.Decode(string(content), &v)
	if err == nil {
		return nil
	}
	var perr toml.ParseError
	if errors.As(err, &perr) {
		return []Diagnostic{{
			Severity: SeverityError,
			Source:   TypeTOML,
			Message:  perr.Message,
			Line:     perr.Position.Line,
			Column:   perr.Position.Col,
		}}
	}
	return []Diagnostic{Errorf(TypeTOML, "%s", err.Error())}
}
