package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and flush the response cache",
}

var (
	flushProject  string
	flushEndpoint string
	flushQuery    string
)

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Flush cached endpoint responses of a project",
	Long: `Flush the cached responses of a project. With --endpoint and --query only
the response of that endpoint for that exact query text is dropped.

Only persistent backends (bolt, redis) retain entries between invocations.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if flushEndpoint != "" {
			if err := a.service.FlushEndpoint(cmd.Context(), flushProject, flushEndpoint, flushQuery); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Flushed cached response of %s in %s\n", flushEndpoint, flushProject)
			return nil
		}
		if err := a.service.FlushCache(cmd.Context(), flushProject); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Flushed cache of %s\n", flushProject)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheFlushCmd)

	cacheFlushCmd.Flags().StringVar(&flushProject, "project", "", "Project whose cache is flushed (required)")
	cacheFlushCmd.Flags().StringVar(&flushEndpoint, "endpoint", "", "Only flush this endpoint's response")
	cacheFlushCmd.Flags().StringVar(&flushQuery, "query", "", "Query text of the response to flush (with --endpoint)")
	_ = cacheFlushCmd.MarkFlagRequired("project")
	cacheFlushCmd.MarkFlagsRequiredTogether("endpoint", "query")
}
