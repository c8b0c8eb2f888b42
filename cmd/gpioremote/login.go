package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gpio-remote/internal/credentials"
)

func newLoginCmd() *cobra.Command {
	var creds credentials.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store broker credentials",
		Long:  "Stores the broker username, password and deployment id in the local credential cache. Nothing is verified until a session opens.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := creds.Validate(); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cache, err := credentialCache(cfg)
			if err != nil {
				return err
			}
			if err := cache.Save(creds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (deployment %s).\n", creds.Identity, creds.Deployment)
			return nil
		},
	}

	cmd.Flags().StringVarP(&creds.Identity, "user", "u", "", "broker username")
	cmd.Flags().StringVarP(&creds.Secret, "password", "p", "", "broker password")
	cmd.Flags().StringVarP(&creds.Deployment, "deployment", "d", "", "broker deployment id")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cache, err := credentialCache(cfg)
			if err != nil {
				return err
			}
			if err := cache.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
