package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"photo-screener/api/internal/export"
)

func (c *cli) exportCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Add the border and logo to one image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			composer := export.NewComposer(1, time.Hour, c.logger)
			out, err := composer.Compose(cmd.Context(), data, export.ParseSources(c.cfg.LogoSources, 10*time.Second))
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = filepath.Dir(args[0])
			}
			dst := filepath.Join(outDir, export.FileName(filepath.Base(args[0])))
			if err := os.WriteFile(dst, out, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dst)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default: next to the source)")
	return cmd
}

var errNoDatabase = errors.New("screening log needs DATABASE_URL")

func (c *cli) screeningsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screenings",
		Short: "Inspect the screening log",
	}

	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Print the latest verdicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			repo := b.Screenings()
			if repo == nil {
				return errNoDatabase
			}
			rows, err := repo.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tSTATUS\tMODEL\tHASH\tFEEDBACK")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.12s\t%s\n",
					r.CreatedAt.Format(time.RFC3339), r.Result.Status, r.Model, r.ImageHash, r.Result.Feedback)
			}
			return tw.Flush()
		},
	}
	recent.Flags().IntVar(&limit, "limit", 20, "How many rows to print")

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete verdicts older than the given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			repo := b.Screenings()
			if repo == nil {
				return errNoDatabase
			}
			n, err := repo.PurgeOlderThan(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows\n", n)
			return nil
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "Age threshold")

	cmd.AddCommand(recent, purge)
	return cmd
}
