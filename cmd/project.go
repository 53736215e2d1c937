package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"projects"},
	Short:   "Manage projects and their endpoints",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		projects, err := a.store.List()
		if err != nil {
			return err
		}
		if projectJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(projects)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROJECT\tENDPOINT ID\tLOCATION")
		for _, p := range projects {
			if len(p.Endpoints()) == 0 {
				fmt.Fprintf(w, "%s\t-\t-\n", p.Name())
			}
			for _, ep := range p.Endpoints() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name(), ep.ID(), ep.Location())
			}
		}
		return w.Flush()
	},
}

var projectCreateCmd = &cobra.Command{
	Use:   "create NAME [ENDPOINT...]",
	Short: "Create a project, optionally with endpoints",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.store.Create(args[0], args[1:]...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created project %s with %d endpoint(s)\n", p.Name(), len(p.Endpoints()))
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a project and its cached responses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.service.FlushCache(cmd.Context(), args[0]); err != nil {
			return err
		}
		if err := a.store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", args[0])
		return nil
	},
}

var projectAddEndpointCmd = &cobra.Command{
	Use:   "add-endpoint PROJECT LOCATION",
	Short: "Add a SPARQL endpoint to a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ep, added, err := a.store.AddEndpoint(args[0], args[1])
		if err != nil {
			return err
		}
		if !added {
			fmt.Fprintf(cmd.OutOrStdout(), "Endpoint %s already registered as %s\n", ep.Location(), ep.ID())
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added endpoint %s as %s\n", ep.Location(), ep.ID())
		return nil
	},
}

var projectRemoveEndpointCmd = &cobra.Command{
	Use:   "remove-endpoint PROJECT ENDPOINT_ID",
	Short: "Remove an endpoint from a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.RemoveEndpoint(args[0], args[1]); err != nil {
			return err
		}
		if err := a.service.ForgetEndpoint(cmd.Context(), args[0], args[1]); err != nil {
			logger.WithError(err).Warn("failed to drop cached responses of removed endpoint")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed endpoint %s from %s\n", args[1], args[0])
		return nil
	},
}

var projectJSON bool

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectListCmd, projectCreateCmd, projectDeleteCmd, projectAddEndpointCmd, projectRemoveEndpointCmd)

	projectListCmd.Flags().BoolVar(&projectJSON, "json", false, "Print projects as JSON")
}
