package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/topoagent/internal/db"
	"github.com/kailas-cloud/topoagent/internal/domain"
)

const vectorPreview = 8

func newCheckDataCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-data",
		Short: "Print the comment count and one sample row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := a.baseContext(cmd.Context())
			out := cmd.OutOrStdout()

			n, err := a.store.CountComments(ctx)
			if err != nil {
				return fmt.Errorf("count comments: %w", err)
			}
			fmt.Fprintf(out, "source:   %s\n", a.store.Source())
			fmt.Fprintf(out, "comments: %d\n", n)

			row, err := a.store.SampleComment(ctx)
			if errors.Is(err, db.ErrNoRows) {
				fmt.Fprintln(out, "sample:   (empty)")
				return nil
			}
			if err != nil {
				return fmt.Errorf("sample comment: %w", err)
			}
			printComment(out, toComment(row))
			return nil
		},
	}
}

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		dim   int
		value float32
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a nearest-neighbour query with a constant vector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dim <= 0 {
				return fmt.Errorf("--dim must be positive")
			}
			a, err := newApp(cmd.Context(), flags, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.close()

			vec := make([]float32, dim)
			for i := range vec {
				vec[i] = value
			}
			candidates, err := a.gateway.SearchComments(a.baseContext(cmd.Context()), vec, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tCOMMENT_ID\tDISTANCE\tMETADATA")
			for i, c := range candidates {
				meta, _ := json.Marshal(c.Metadata)
				fmt.Fprintf(w, "%d\t%s\t%.6f\t%s\n", i+1, c.CommentID, c.Distance, meta)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&dim, "dim", 768, "Vector dimensionality")
	cmd.Flags().Float32Var(&value, "value", 0.1, "Value of every vector component")
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum number of results")
	return cmd
}

// toComment decodes a raw row. Non-object metadata is dropped.
func toComment(row *db.Row) domain.Comment {
	c := domain.Comment{CommentID: row.CommentID, Vector: row.Vector}
	if len(row.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(row.Metadata, &meta); err == nil {
			c.Metadata = meta
		}
	}
	return c
}

func printComment(out io.Writer, c domain.Comment) {
	fmt.Fprintf(out, "sample:   %s\n", c.CommentID)
	meta, _ := json.Marshal(c.Metadata)
	fmt.Fprintf(out, "metadata: %s\n", meta)

	preview := c.Vector
	if len(preview) > vectorPreview {
		preview = preview[:vectorPreview]
	}
	parts := make([]string, len(preview))
	for i, f := range preview {
		parts[i] = fmt.Sprintf("%.4f", f)
	}
	suffix := ""
	if len(c.Vector) > vectorPreview {
		suffix = ", ..."
	}
	fmt.Fprintf(out, "vector:   [%s%s] (%d dims)\n", strings.Join(parts, ", "), suffix, len(c.Vector))
}
