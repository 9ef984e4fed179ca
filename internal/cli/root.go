// Package cli implements the pokedex command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	config   string
	logLevel string
	output   string
}

// NewRootCmd builds the pokedex command tree.
func NewRootCmd() *cobra.Command {
	f := new(rootFlags)
	var a *app

	rootCmd := &cobra.Command{
		Use:   "pokedex",
		Short: "Browse PokeAPI from the terminal or over HTTP.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = newApp(f, cmd.OutOrStdout())
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a != nil {
				a.close()
			}
		},
		SilenceUsage: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "", "config file")
	pf.StringVar(&f.logLevel, "log-level", "", "override log.level")
	pf.StringVarP(&f.output, "output", "o", "text", "output format: text, json or yaml")

	get := func() *app { return a }
	rootCmd.AddCommand(
		newGetCmd(get),
		newListCmd(get),
		newTypesCmd(get),
		newGenerationsCmd(get),
		newSuggestCmd(get),
		newServeCmd(get),
		newVersionCmd(get),
	)
	return rootCmd
}

// Run executes the pokedex command. Cancelling ctx stops a running server.
func Run(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
