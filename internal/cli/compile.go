package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entset/entset/expr"
	"github.com/entset/entset/heading"
	"github.com/entset/entset/render"
	"github.com/entset/entset/schema"
)

// CompileResult is the rendered statement for JSON output.
type CompileResult struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	var restricts []string
	var projects []string
	var profilePath string

	cmd := &cobra.Command{
		Use:   "compile <declarations-dir> <table>",
		Short: "Compile a table expression to SQL",
		Long: `Build an expression over a declared table and print the SQL SELECT
statement it compiles to, with bound parameters listed separately.

Each --restrict key=value adds an equality restriction; --project keeps
only the named attributes (the primary key always survives).`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, args[0], args[1], restricts, projects, profilePath, cmd)
		},
	}
	cmd.Flags().StringArrayVar(&restricts, "restrict", nil, "equality restriction, key=value (repeatable)")
	cmd.Flags().StringSliceVar(&projects, "project", nil, "attributes to keep")
	cmd.Flags().StringVar(&profilePath, "dialect-profile", "", "YAML dialect profile")
	return cmd
}

func runCompile(opts *RootOptions, dir, table string, restricts, projects []string, profilePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	dialect := render.Default()
	if profilePath != "" {
		var err error
		dialect, err = render.LoadProfile(profilePath)
		if err != nil {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "loading dialect profile", err)
		}
		formatter.VerboseLog("Dialect: %s", dialect.Name)
	}

	s, loadErrors := schema.Load(ctx, dir, schema.LoadModeFailFast)
	if len(loadErrors) > 0 {
		ve := toValidationError(loadErrors[0])
		_ = formatter.Error(ve.Code, ve.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", ve.Code, ve.Message))
	}

	e, err := buildExpression(s, table, restricts, projects)
	if err != nil {
		code := classifyError(err)
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, "building expression", err)
	}

	stmt, err := render.Compile(e, dialect)
	if err != nil {
		code := classifyError(err)
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, "compiling expression", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(CompileResult{
			Schema: s.Name,
			Table:  table,
			SQL:    stmt.SQL,
			Params: stmt.Args(),
		})
	}
	fmt.Fprintln(formatter.Writer, stmt.SQL)
	if len(stmt.Params) > 0 {
		parts := make([]string, len(stmt.Params))
		for i, p := range stmt.Params {
			parts[i] = heading.LiteralString(p)
		}
		fmt.Fprintf(formatter.Writer, "-- params: %s\n", strings.Join(parts, ", "))
	}
	return nil
}

// buildExpression assembles base, restrictions, and projection.
func buildExpression(s *schema.Schema, table string, restricts, projects []string) (expr.Expr, error) {
	e, err := s.Base(table)
	if err != nil {
		return nil, err
	}
	var out expr.Expr = e

	if len(restricts) > 0 {
		cond := expr.Equality{}
		for _, pair := range restricts {
			key, raw, found := strings.Cut(pair, "=")
			if !found || key == "" {
				return nil, fmt.Errorf("malformed --restrict %q: expected key=value", pair)
			}
			if !e.Heading().Has(key) {
				return nil, &heading.UnknownAttributeError{Name: key, Context: "restriction"}
			}
			cond[key] = parseLiteral(raw)
		}
		out, err = expr.Restrict(out, cond)
		if err != nil {
			return nil, err
		}
	}

	if len(projects) > 0 {
		out, err = expr.Project(out, projects, nil, nil)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// parseLiteral reads a flag value as the narrowest matching literal.
func parseLiteral(raw string) heading.Literal {
	if raw == "null" {
		return heading.Null{}
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return heading.Int(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return heading.Float(f)
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return heading.Bool(b)
	}
	return heading.String(strings.Trim(raw, `"'`))
}
