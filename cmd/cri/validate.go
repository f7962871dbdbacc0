package main

import (
	"github.com/spf13/cobra"

	"cri/internal/validate"
)

var (
	validateSchema string
	validateType   string
	requireHealth  bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate any file by type",
	Long: `Validate a file with the checker for its type, detected from the file name
unless --type is given. Exit status is 0 on pass, 1 on fail and 2 when no
checker exists for the type. With --require-health a primary file whose
health-check tool is not installed exits 2 instead of passing.

Examples:
  cri validate settings.json
  cri validate deploy.yaml --schema deploy.schema.json
  cri validate hook --type shell`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateSchema, "schema", "", "JSON Schema to check the document against")
	validateCmd.Flags().StringVar(&validateType, "type", "", "File type tag: json, yaml, toml, shell, primary")
	addRequireHealthFlag(validateCmd)
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var opts []validate.Option
	if validateSchema != "" {
		schema, err := validate.LoadSchema(validateSchema)
		if err != nil {
			return err
		}
		opts = append(opts, validate.WithSchema(schema))
	}
	v := a.validator(opts...)

	tag := validateType
	if tag == "" {
		tag = v.Detect(args[0])
	}
	res, err := v.ValidatePath(cmd.Context(), args[0], tag)
	if err != nil {
		return err
	}
	if err := emit(res, func() { printValidation(res) }); err != nil {
		return err
	}
	return validationError(res)
}

func addRequireHealthFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&requireHealth, "require-health", false, "Fail with exit 2 when the health-check tool is missing")
}
