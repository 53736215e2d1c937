package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"evalgo.org/sparqlfed/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage API credentials and the audit log",
}

var (
	tokenSubject  string
	tokenRole     string
	tokenProjects []string
	tokenTTL      time.Duration
)

var authTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token signed with server.jwt_secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret := viper.GetString("server.jwt_secret")
		if secret == "" {
			return errors.New("server.jwt_secret is not configured")
		}
		if !auth.ValidRole(tokenRole) {
			return fmt.Errorf("invalid role %q", tokenRole)
		}
		token, err := auth.GenerateToken(tokenSubject, tokenRole, tokenProjects, secret, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var authHashKeyCmd = &cobra.Command{
	Use:   "hash-key KEY",
	Short: "Print the bcrypt hash of an API key for server.api_key_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashAPIKey(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var authGenKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate a random API key and JWT secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := auth.GenerateAPIKey(32)
		if err != nil {
			return err
		}
		secret, err := auth.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "api_key: %s\njwt_secret: %s\n", key, secret)
		return nil
	},
}

var auditLimit int

var authAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print recent audit entries as JSON lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		audit, err := auth.NewAuditLogger(viper.GetString("data.dir"))
		if err != nil {
			return err
		}
		entries, err := audit.Recent(auditLimit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	},
}

var auditKeepDays int

var authAuditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit files older than --keep days",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		audit, err := auth.NewAuditLogger(viper.GetString("data.dir"))
		if err != nil {
			return err
		}
		n, err := audit.Prune(auditKeepDays)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d audit file(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authTokenCmd, authHashKeyCmd, authGenKeyCmd, authAuditCmd)
	authAuditCmd.AddCommand(authAuditPruneCmd)

	authTokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject (required)")
	authTokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleUser, "Role: admin or user")
	authTokenCmd.Flags().StringSliceVar(&tokenProjects, "projects", nil, "Projects the token may query (default all)")
	authTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = authTokenCmd.MarkFlagRequired("subject")

	authAuditCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of entries")
	authAuditPruneCmd.Flags().IntVar(&auditKeepDays, "keep", 90, "Days of audit files to keep")
}
