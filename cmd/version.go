package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	goVersion "go.hein.dev/go-version"
)

// Build metadata, injected with -ldflags "-X evalgo.org/sparqlfed/cmd.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	versionShort  bool
	versionOutput string
)

// buildInfo describes the running gateway binary. The health endpoint
// reports it so that operators can tell which build answers behind a
// load balancer.
func buildInfo() *goVersion.Info {
	return goVersion.New(version, commit, date)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gateway build",
	Long: `Print the release, commit and build date of this sparqlfed binary.

The same fields are returned by GET /health of a running gateway, which is
the quickest way to compare a deployed instance with a local build:

  sparqlfed version --short
  curl -s localhost:8080/health`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if versionOutput != "json" && versionOutput != "yaml" {
			return fmt.Errorf("unsupported output format %q, use json or yaml", versionOutput)
		}
		fmt.Fprint(cmd.OutOrStdout(), goVersion.FuncWithOutput(versionShort, version, commit, date, versionOutput))
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVarP(&versionShort, "short", "s", false, "Print the release only")
	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "json", "Output format: json or yaml")
	rootCmd.AddCommand(versionCmd)
}
