package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"evalgo.org/sparqlfed/internal/federation"
	"evalgo.org/sparqlfed/internal/helpers"
)

var queryCmd = &cobra.Command{
	Use:   "query [QUERY]",
	Short: "Run a federated query against a project",
	Long: `Run a SPARQL query or update against the endpoints of a project and print
the merged response.

The query is read from the argument, from --file, or from stdin when neither
is given.

Examples:
  sparqlfed query --project dbpedia 'SELECT ?s WHERE { ?s ?p ?o } LIMIT 10'
  sparqlfed query --project dbpedia --endpoints a1b2c3+d4e5f6 --file count.rq`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

var (
	queryProject   string
	queryEndpoints string
	queryFile      string
)

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryProject, "project", "", "Project to query (required)")
	queryCmd.Flags().StringVar(&queryEndpoints, "endpoints", "", "Endpoint identifiers joined by '+'")
	queryCmd.Flags().StringVarP(&queryFile, "file", "f", "", "Read the query from a file")
	_ = queryCmd.MarkFlagRequired("project")
}

func readQueryText(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case queryFile != "":
		b, err := os.ReadFile(queryFile)
		if err != nil {
			return "", fmt.Errorf("failed to read query file: %w", err)
		}
		return string(b), nil
	default:
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read query from stdin: %w", err)
		}
		return string(b), nil
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	query, err := readQueryText(cmd, args)
	if err != nil {
		return err
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := federation.WithRequestID(context.Background(), uuid.NewString())
	resp, err := a.service.RunFederatedQuery(ctx, queryProject, query, helpers.SplitIDs(queryEndpoints)...)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"request_id":   resp.RequestID,
		"query_type":   resp.QueryType,
		"content_type": resp.ContentType,
	}).Debug("query finished")

	_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Body)
	return err
}
