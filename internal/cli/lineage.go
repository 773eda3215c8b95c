package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entset/entset/lineage"
	"github.com/entset/entset/schema"
)

// AttributeLineage is one attribute's resolved origin.
type AttributeLineage struct {
	Table     string `json:"table"`
	Attribute string `json:"attribute"`
	InKey     bool   `json:"in_key"`
	Origin    string `json:"origin,omitempty"`
}

// LineageResult holds the lineage listing for a schema.
type LineageResult struct {
	Schema   string             `json:"schema"`
	Strategy string             `json:"strategy"`
	Entries  []AttributeLineage `json:"entries"`
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand(rootOpts *RootOptions) *cobra.Command {
	var storePath string
	var register bool

	cmd := &cobra.Command{
		Use:   "lineage <declarations-dir>",
		Short: "Print resolved attribute lineage",
		Long: `Resolve and print the origin of every attribute of every declared table.

By default origins are derived by walking the foreign-key graph. With
--store, lookups go to the authoritative side table in the given SQLite
database first and fall back to the graph when the table is absent.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineage(rootOpts, args[0], storePath, register, cmd)
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "", "SQLite database holding the lineage side table")
	cmd.Flags().BoolVar(&register, "register", false, "write resolved origins to the side table (requires --store)")
	return cmd
}

func runLineage(opts *RootOptions, dir, storePath string, register bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := cmd.Context()

	if register && storePath == "" {
		msg := "--register requires --store"
		_ = formatter.Error(ErrCodeStoreError, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	s, loadErrors := schema.Load(ctx, dir, schema.LoadModeFailFast)
	if len(loadErrors) > 0 {
		ve := toValidationError(loadErrors[0])
		_ = formatter.Error(ve.Code, ve.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", ve.Code, ve.Message))
	}

	strategy := "graph"
	if storePath != "" {
		store, err := lineage.Open(s.Name, storePath)
		if err != nil {
			_ = formatter.Error(ErrCodeStoreError, err.Error(), nil)
			return WrapExitError(ExitCommandError, "opening lineage store", err)
		}
		defer store.Close()

		if register {
			if err := s.Register(ctx, store); err != nil {
				_ = formatter.Error(ErrCodeStoreError, err.Error(), nil)
				return WrapExitError(ExitCommandError, "registering lineage", err)
			}
			formatter.VerboseLog("Registered lineage for %d table(s) in %s", len(s.Tables()), storePath)
		}

		graph := lineage.NewGraphResolver(s.Graph(), nil)
		formatter.VerboseLog("Resolution session %s", graph.Session().ID())
		selector := lineage.NewSelector(store, graph)
		if err := s.Relink(ctx, selector); err != nil {
			_ = formatter.Error(ErrCodeStoreError, err.Error(), nil)
			return WrapExitError(ExitCommandError, "resolving lineage", err)
		}
		strategy = "store"
	}

	result := LineageResult{Schema: s.Name, Strategy: strategy}
	for _, d := range s.Tables() {
		for _, a := range d.Heading.Attributes() {
			entry := AttributeLineage{Table: d.Name, Attribute: a.Name, InKey: a.InKey}
			if a.Lineage != nil {
				entry.Origin = a.Lineage.String()
			}
			result.Entries = append(result.Entries, entry)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return printLineageText(formatter, result)
}

func printLineageText(formatter *OutputFormatter, result LineageResult) error {
	fmt.Fprintf(formatter.Writer, "schema %s (strategy: %s)\n", result.Schema, result.Strategy)
	current := ""
	for _, e := range result.Entries {
		if e.Table != current {
			current = e.Table
			fmt.Fprintf(formatter.Writer, "\n%s\n%s\n", current, strings.Repeat("-", len(current)))
		}
		marker := " "
		if e.InKey {
			marker = "*"
		}
		origin := e.Origin
		if origin == "" {
			origin = "(none)"
		}
		fmt.Fprintf(formatter.Writer, "  %s %-24s %s\n", marker, e.Attribute, origin)
	}
	return nil
}
