package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/topoagent/internal/config"
	"github.com/kailas-cloud/topoagent/internal/version"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	env        string
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "topoagent",
		Short: "Semantic comment retrieval for the topology orchestrator",
		Long: `topoagent embeds operator queries and retrieves the nearest historical
comments and tickets from a pgvector or Valkey comment store.

Examples:
  # Run the HTTP API
  topoagent serve

  # Inspect the comment table
  topoagent check-data

  # Search with a constant 768-d vector
  topoagent search --dim 768 --value 0.1 --limit 5

  # Run the retrieval node once
  topoagent retrieve "link down on site A"`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flags.env, "env", "",
		"Environment whose config/<env>.yaml is loaded (defaults to $ENV or local)")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "",
		"Explicit config file path (overrides --env)")

	root.AddCommand(
		newServeCmd(flags),
		newCheckDataCmd(flags),
		newSearchCmd(flags),
		newRetrieveCmd(flags),
		newVersionCmd(),
	)
	return root
}

// load resolves the environment name and reads its configuration.
func (f *globalFlags) load() (string, config.Config, error) {
	env := f.env
	if env == "" {
		env = config.GetEnv()
	}

	var (
		cfg config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return "", config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return env, cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
