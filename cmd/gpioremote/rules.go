package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gpio-remote/internal/rules"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage threshold automation rules",
	}
	cmd.AddCommand(newRulesListCmd())
	cmd.AddCommand(newRulesAddCmd())
	cmd.AddCommand(newRulesDeleteCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the rules stored by the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := openClient(cmd, cfg, newLogger(cmd, cfg))
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			list, err := client.Catalog().Wait(ctx)
			if err != nil {
				return fmt.Errorf("waiting for rule list: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No rules defined.")
				return nil
			}
			for _, r := range list {
				fmt.Fprintf(out, "#%s %s\n", r.ID, r.Describe())
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for the backend to answer")
	return cmd
}

func newRulesAddCmd() *cobra.Command {
	var r rules.Rule

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a rule",
		Long: "Creates a rule that fires when the mean of a field over the range crosses the threshold. Measurements: " +
			strings.Join(rules.Measurements(), ", ") + ".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.Validate(); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := openClient(cmd, cfg, newLogger(cmd, cfg))
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Rules().Add(cmd.Context(), r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %q sent.\n", r.Name)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&r.Name, "name", "", "rule name")
	f.StringVar(&r.Measurement, "measurement", "", "sensor measurement")
	f.StringVar(&r.Field, "field", "", "measurement field")
	f.StringVar(&r.Filter, "filter", "", "optional tag filter")
	f.StringVar(&r.Range, "range", "5m", "evaluation window ("+strings.Join(rules.Ranges, ", ")+")")
	f.StringVar(&r.Operator, "operator", rules.OpGreater, "comparison operator (>, < or ==)")
	f.Float64Var(&r.Threshold, "threshold", 0, "threshold value")
	f.StringVar(&r.ActionTopic, "topic", "", "topic published when the rule fires")
	f.StringVar(&r.ActionPayload, "payload", "", "payload published when the rule fires")
	return cmd
}

func newRulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := rules.RuleID(strings.TrimPrefix(args[0], "#"))
			if id == "" {
				return fmt.Errorf("%w: rule id is required", rules.ErrInvalidRule)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := openClient(cmd, cfg, newLogger(cmd, cfg))
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Rules().Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Delete of rule #%s sent.\n", id)
			return nil
		},
	}
}
