package main

import (
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authtokens"
)

var BuildVersion = "dev"

type rootOptions struct {
	configPath string
	verbosity  int
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "authtokens",
		Short:         "authtokens CLI",
		Long:          "Demo server and schema tooling for the authtokens engine.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file. AUTHTOKENS_* environment variables override it.")
	root.PersistentFlags().IntVarP(&opts.verbosity, "verbose", "v", 0, "Log verbosity; 1 also logs successful token events.")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of authtokens CLI",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s\n", BuildVersion)
		},
	})
	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newPurgeCommand(opts))

	return root
}

func (o *rootOptions) logger() logr.Logger {
	stdr.SetVerbosity(o.verbosity)
	return stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("authtokens")
}

func (o *rootOptions) loadConfig() (authtokens.Config, error) {
	return authtokens.LoadConfig(o.configPath)
}
