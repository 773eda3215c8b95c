package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entset/entset/schema"
)

// ValidationError is one declaration problem with its stable code.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Tables []string          `json:"tables,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <declarations-dir>",
		Short: "Validate entity-set declarations",
		Long: `Validate CUE entity-set declarations without compiling an expression.

Checks syntax, attribute and key declarations, and foreign-key
references, and verifies that lineage resolves for every table.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	s, loadErrors := schema.Load(cmd.Context(), dir, schema.LoadModeCollectAll)
	if s == nil && len(loadErrors) > 0 {
		ve := toValidationError(loadErrors[0])
		_ = formatter.Error(ve.Code, ve.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", ve.Code, ve.Message))
	}

	var validationErrors []ValidationError
	for _, err := range loadErrors {
		validationErrors = append(validationErrors, toValidationError(err))
	}
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	tables := make([]string, 0, len(s.Tables()))
	for _, d := range s.Tables() {
		formatter.VerboseLog("Validated table: %s (%d attributes)", d.Name, d.Heading.Len())
		tables = append(tables, d.Name)
	}
	return outputValidateSuccess(formatter, s.Name, tables)
}

// toValidationError converts a loader error to a coded validation error.
func toValidationError(err error) ValidationError {
	var compileErr *schema.CompileError
	if errors.As(err, &compileErr) {
		ve := ValidationError{
			Field:   compileErr.Field,
			Message: compileErr.Message,
			Code:    MapFieldToErrorCode(compileErr.Field),
		}
		if compileErr.Pos.IsValid() {
			ve.Line = compileErr.Pos.Line()
		}
		return ve
	}
	return ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, schemaName string, tables []string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Tables: tables})
	}
	fmt.Fprintf(formatter.Writer, "✓ schema %q valid (%d tables)\n", schemaName, len(tables))
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
