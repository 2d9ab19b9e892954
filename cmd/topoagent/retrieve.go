package main

import (
	"encoding/json"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/topoagent/internal/domain"
)

func newRetrieveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Run the retrieval node once and print its state patch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.close()

			patch, err := a.node.Run(a.baseContext(cmd.Context()), domain.State{
				UserInput: strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(patch)
		},
	}
}
