package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/xgbport/pkg/log"
)

type rootCmdConfig struct {
	logLevel string
}

func main() {
	if err := cliParser().Execute(); err != nil {
		os.Exit(1)
	}
}

func cliParser() *cobra.Command {
	config := &rootCmdConfig{}
	rootCmd := &cobra.Command{
		Use:           "xgbport",
		Short:         "xgbport converts XGBoost models into PMML documents",
		Long:          `A tool to convert XGBoost tree ensembles saved in the binary, JSON or UBJSON format into portable PMML documents`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return log.SetupLogger(config.logLevel, cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().StringVar(&(config.logLevel), "log-level", "warn", "log level: debug, info, warn or error")
	rootCmd.AddCommand(convertCmd(), inspectCmd())
	return rootCmd
}
