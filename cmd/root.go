// Package cmd provides the command-line interface for the SPARQL federation gateway.
//
// This package implements a cobra-based CLI with commands for:
//   - serve: Start the federation HTTP API
//   - query: Run one federated query and print the merged result
//   - project: Manage projects and their endpoints
//   - cache: Flush cached endpoint responses
//   - auth: Mint tokens and API keys, inspect the audit log
//   - version: Print the gateway build
//
// The CLI supports configuration via:
//   - Command-line flags
//   - Configuration files (YAML format)
//   - Environment variables prefixed with SPARQLFED_ (SPARQLFED_SERVER_PORT, ...)
//
// Configuration File Locations:
//   - Specified via --config flag
//   - $HOME/.sparqlfed.yaml (default)
package cmd

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// cfgFile holds the path to the configuration file
	cfgFile string

	// logger is shared by all commands and configured from log.level / log.format
	logger = logrus.New()

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "sparqlfed",
		Short: "SPARQL federation gateway",
		Long: `sparqlfed answers a SPARQL query by sending it to every endpoint of a
named project and merging the answers into one response.

  - SELECT rows are concatenated, then ordered, limited and de-duplicated
  - COUNT queries are summed into a single row
  - ASK answers are OR-ed
  - CONSTRUCT and DESCRIBE graphs are unioned
  - UPDATE requests are broadcast

Use "sparqlfed serve" to start the API server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}
)

// Execute executes the root command and returns any error that occurs.
// This is the main entry point for the CLI application.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sparqlfed.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory holding projects, audit logs and the disk cache")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	_ = viper.BindPFlag("data.dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	setDefaults()
}

// initConfig reads in config file and environment variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sparqlfed")
	}

	viper.SetEnvPrefix("SPARQLFED")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.WithField("file", viper.ConfigFileUsed()).Debug("using config file")
	}
}

func setupLogger() error {
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stderr)

	if strings.EqualFold(viper.GetString("log.format"), "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
