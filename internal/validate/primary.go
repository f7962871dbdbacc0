package validate

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// primaryConfig is the subset of the primary config file the domain rules
// inspect. Unknown fields are ignored.
type primaryConfig struct {
	Gateway *gatewayConfig `json:"gateway" validate:"required"`
	Agents  *agentsConfig  `json:"agents" validate:"omitempty"`
	Logging *loggingConfig `json:"logging" validate:"omitempty"`
}

type gatewayConfig struct {
	Mode           string      `json:"mode" validate:"required,oneof=local remote"`
	Bind           string      `json:"bind" validate:"omitempty,oneof=loopback lan tailnet auto custom all"`
	Host           string      `json:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port           int         `json:"port" validate:"omitempty,min=1,max=65535"`
	TrustedProxies []string    `json:"trustedProxies" validate:"omitempty,dive,ip|cidr"`
	Auth           *authConfig `json:"auth" validate:"omitempty"`
}

type authConfig struct {
	Mode string `json:"mode" validate:"required,oneof=token password none"`
}

type agentsConfig struct {
	Defaults *agentDefaults `json:"defaults" validate:"omitempty"`
}

type agentDefaults struct {
	Workspace string `json:"workspace"`
	Sandbox   string `json:"sandbox" validate:"omitempty,oneof=off non-main all"`
}

type loggingConfig struct {
	Level string `json:"level" validate:"omitempty,oneof=trace debug info warn error fatal silent"`
}

var (
	primaryValidate     *validator.Validate
	primaryValidateOnce sync.Once
)

func getPrimaryValidate() *validator.Validate {
	primaryValidateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names, not Go field names.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		primaryValidate = v
	})
	return primaryValidate
}

// PrimaryChecker applies syntax and domain rules to the primary config file:
// required fields, enumerated mode fields and cross-field consistency.
type PrimaryChecker struct{}

// Check implements Checker.
func (PrimaryChecker) Check(_ context.Context, content []byte) []Diagnostic {
	if _, err := decodeJSON(content); err != nil {
		return []Diagnostic{jsonDiagnostic(content, err)}
	}

	var cfg primaryConfig
	if err := json.Unmarshal(content, &cfg); err != nil {
		return []Diagnostic{Errorf(TypePrimary, "%s", err.Error())}
	}

	var diags []Diagnostic
	if err := getPrimaryValidate().Struct(&cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []Diagnostic{Errorf(TypePrimary, "%s", err.Error())}
		}
		for _, fe := range verrs {
			diags = append(diags, fieldDiagnostic(fe))
		}
	}
	return append(diags, crossFieldRules(&cfg)...)
}

func fieldDiagnostic(fe validator.FieldError) Diagnostic {
	// Namespace is "primaryConfig.gateway.mode"; drop the root type.
	_, path, _ := strings.Cut(fe.Namespace(), ".")
	d := Diagnostic{Severity: SeverityError, Source: TypePrimary, Path: path}
	switch fe.Tag() {
	case "required":
		d.Message = "required field is missing"
	case "oneof":
		d.Message = "value " + quoteValue(fe.Value()) + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min", "max":
		d.Message = "value out of range (" + fe.Tag() + " " + fe.Param() + ")"
	case "ip|cidr":
		d.Message = "value " + quoteValue(fe.Value()) + " is not an IP address or CIDR range"
	default:
		d.Message = "failed " + fe.Tag() + " rule"
	}
	return d
}

func quoteValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(b)
}

// crossFieldRules are advisory only and yield warnings.
func crossFieldRules(cfg *primaryConfig) []Diagnostic {
	gw := cfg.Gateway
	if gw == nil {
		return nil
	}
	var diags []Diagnostic

	exposed := gw.Bind == "all" || gw.Bind == "lan" || gw.Host == "0.0.0.0" || gw.Host == "::"
	if exposed && len(gw.TrustedProxies) == 0 {
		w := Warnf(TypePrimary, "gateway binds to all interfaces without a trustedProxies allowlist")
		w.Path = "gateway.trustedProxies"
		diags = append(diags, w)
	}
	if exposed && gw.Auth != nil && gw.Auth.Mode == "none" {
		w := Warnf(TypePrimary, "gateway is reachable from the network with auth mode \"none\"")
		w.Path = "gateway.auth.mode"
		diags = append(diags, w)
	}
	if gw.Mode == "local" && gw.Bind == "" && gw.Host == "" && gw.Port == 0 {
		i := Infof(TypePrimary, "gateway uses default bind and port")
		i.Path = "gateway"
		diags = append(diags, i)
	}
	return diags
}
