package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

var printer = message.NewPrinter(language.English)

// Schema is a compiled JSON Schema applied to JSON or YAML content.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// LoadSchema compiles the JSON Schema at path.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}

	name := filepath.Base(path)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", path, err)
	}
	return &Schema{name: name, schema: sch}, nil
}

// Applies reports whether the schema can check content of fileType.
func (s *Schema) Applies(fileType string) bool {
	switch fileType {
	case TypeJSON, TypePrimary, TypeYAML:
		return true
	}
	return false
}

// Check validates content of fileType against the schema. Syntax errors are
// left to the file-type checker and produce no schema diagnostics.
func (s *Schema) Check(_ context.Context, content []byte, fileType string) []Diagnostic {
	inst, err := s.instance(content, fileType)
	if err != nil {
		return nil
	}

	err = s.schema.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Diagnostic{Errorf("schema", "%v", err)}
	}

	var diags []Diagnostic
	collectSchemaErrors(ve, &diags)
	if len(diags) == 0 {
		diags = append(diags, Errorf("schema", "%s", ve.Error()))
	}
	return dedupe(diags)
}

func (s *Schema) instance(content []byte, fileType string) (any, error) {
	if fileType != TypeYAML {
		return jsonschema.UnmarshalJSON(bytes.NewReader(content))
	}
	var raw any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, err
	}
	// Round-trip through JSON so numbers arrive as json.Number.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// collectSchemaErrors keeps leaf errors; container keywords only repeat
// their causes.
func collectSchemaErrors(ve *jsonschema.ValidationError, diags *[]Diagnostic) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collectSchemaErrors(cause, diags)
		}
		return
	}
	if ve.ErrorKind == nil {
		return
	}

	keyword := ""
	if kw := ve.ErrorKind.KeywordPath(); len(kw) > 0 {
		keyword = kw[len(kw)-1]
	}
	switch keyword {
	case "", "oneOf", "allOf", "anyOf", "$ref":
		return
	}

	path := ""
	if len(ve.InstanceLocation) > 0 {
		path = "/" + strings.Join(ve.InstanceLocation, "/")
	}
	*diags = append(*diags, Diagnostic{
		Severity: SeverityError,
		Source:   "schema:" + keyword,
		Path:     path,
		Message:  ve.ErrorKind.LocalizedString(printer),
	})
}

func dedupe(diags []Diagnostic) []Diagnostic {
	seen := make(map[string]bool, len(diags))
	out := diags[:0]
	for _, d := range diags {
		key := d.Path + "|" + d.Source + "|" + d.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}
