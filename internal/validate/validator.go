package validate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cri/internal/config"
	"cri/internal/slogutil"
)

// Validator dispatches content to the checker registered for its type.
type Validator struct {
	registry *Registry
	schema   *Schema
	health   *HealthCheck
	logger   *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithSchema applies a JSON Schema on top of the type checker.
func WithSchema(s *Schema) Option {
	return func(v *Validator) { v.schema = s }
}

// WithHealthCheck enables the external health check for primary files on
// the path entry point.
func WithHealthCheck(h *HealthCheck) Option {
	return func(v *Validator) { v.health = h }
}

// RequireHealthCheck makes a missing health-check tool an error. It has no
// effect when no health check is configured.
func RequireHealthCheck() Option {
	return func(v *Validator) {
		if v.health != nil {
			v.health.Required = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// New creates a validator over registry.
func New(registry *Registry, opts ...Option) *Validator {
	v := &Validator{registry: registry, logger: slogutil.NewDiscardLogger()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewFromConfig builds the default validator from configuration. The health
// check is wired only when a command is configured.
func NewFromConfig(cfg config.ValidationConfig, logger *slog.Logger, opts ...Option) *Validator {
	base := []Option{WithLogger(logger)}
	if hc := cfg.HealthCheck; hc.Command != "" {
		base = append(base, WithHealthCheck(&HealthCheck{
			Command:  hc.Command,
			Args:     hc.Args,
			LivePath: hc.LivePath,
			Timeout:  time.Duration(hc.TimeoutSeconds) * time.Second,
			Required: hc.Required,
		}))
	}
	return New(DefaultRegistry(cfg.PrimaryFiles), append(base, opts...)...)
}

// Detect returns the file-type tag for path.
func (v *Validator) Detect(path string) string {
	return v.registry.Detect(path)
}

// Registry returns the checker registry.
func (v *Validator) Registry() *Registry {
	return v.registry
}

// ValidateContent checks content as fileType. Unknown types are skipped.
func (v *Validator) ValidateContent(ctx context.Context, content []byte, fileType string) Result {
	checker, ok := v.registry.Lookup(fileType)
	if !ok {
		v.logger.Debug("no checker registered", "type", fileType)
		return Summarize(fileType, false, nil)
	}

	diags := checker.Check(ctx, content)
	if v.schema != nil && v.schema.Applies(fileType) && !hasErrors(diags) {
		diags = append(diags, v.schema.Check(ctx, content, fileType)...)
	}
	return Summarize(fileType, true, diags)
}

// ValidateReader checks a content stream as fileType.
func (v *Validator) ValidateReader(ctx context.Context, r io.Reader, fileType string) (Result, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read content: %w", err)
	}
	return v.ValidateContent(ctx, content, fileType), nil
}

// ValidatePath checks the file at path. An empty fileType is detected from
// the name. Primary files also run the external health check when one is
// configured; a required but missing tool is returned as an error.
func (v *Validator) ValidatePath(ctx context.Context, path, fileType string) (Result, error) {
	if fileType == "" {
		fileType = v.Detect(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}

	res := v.ValidateContent(ctx, content, fileType)
	res.Path = path
	if fileType == TypePrimary && v.health != nil && !res.Failed() {
		if v.health.Required {
			if err := v.health.Available(); err != nil {
				return res, err
			}
		}
		diags := append(res.Diagnostics, v.health.Check(ctx, path)...)
		res = Summarize(fileType, true, diags)
		res.Path = path
	}

	v.logger.Debug("validated", "file", path, "type", fileType, "status", string(res.Status))
	return res, nil
}

func hasErrors(diags []Diagnostic) bool {
	return countSeverity(diags, SeverityError) > 0
}
