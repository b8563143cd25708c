package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"photo-screener/api/internal/criteria"
)

func (c *cli) criteriaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "criteria",
		Short: "Inspect and edit the criteria set",
	}

	var strictness string
	add := &cobra.Command{
		Use:   "add <forbidden|desired> <label>",
		Short: "Append a criterion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.editCriteria(cmd, func(ed *criteria.Editor) (criteria.Set, error) {
				return ed.Add(cmd.Context(), criteria.Criterion{
					Label:      args[1],
					Type:       criteria.Kind(args[0]),
					Strictness: criteria.Strictness(strictness),
				})
			})
		},
	}
	add.Flags().StringVar(&strictness, "strictness", "", "Low, Medium or High (forbidden only)")

	var comprehensive bool
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Replace the set with the built-in defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.editCriteria(cmd, func(ed *criteria.Editor) (criteria.Set, error) {
				if comprehensive {
					return ed.Replace(cmd.Context(), criteria.Comprehensive())
				}
				return ed.Reset(cmd.Context())
			})
		},
	}
	seed.Flags().BoolVar(&comprehensive, "comprehensive", false, "Use the full organization set")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print the current set",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := c.backend(cmd.Context())
				if err != nil {
					return err
				}
				defer b.Close()
				return printCriteria(cmd.OutOrStdout(), b.Criteria.Criteria())
			},
		},
		add,
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Remove a criterion by id",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.editCriteria(cmd, func(ed *criteria.Editor) (criteria.Set, error) {
					return ed.Remove(cmd.Context(), args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Replace the set from a YAML or JSON file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				set, err := criteria.Import(args[0])
				if err != nil {
					return fmt.Errorf("import %s: %w", args[0], err)
				}
				return c.editCriteria(cmd, func(ed *criteria.Editor) (criteria.Set, error) {
					return ed.Replace(cmd.Context(), set)
				})
			},
		},
		seed,
	)
	return cmd
}

func (c *cli) editCriteria(cmd *cobra.Command, fn func(*criteria.Editor) (criteria.Set, error)) error {
	b, err := c.backend(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()
	set, err := fn(b.Criteria)
	if err != nil {
		return err
	}
	return printCriteria(cmd.OutOrStdout(), set)
}

func printCriteria(out io.Writer, set criteria.Set) error {
	if len(set) == 0 {
		_, err := fmt.Fprintln(out, "no criteria: every photo passes")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTRICTNESS\tLABEL")
	for _, cr := range set {
		strict := "-"
		if cr.Type == criteria.Forbidden {
			strict = string(cr.EffectiveStrictness())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cr.ID, cr.Type, strict, cr.Label)
	}
	return tw.Flush()
}
