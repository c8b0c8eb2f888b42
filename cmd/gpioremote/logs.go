package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gpio-remote/internal/audit"
)

func newLogsCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the command audit log",
		Long:  "Fetches every audit record from the backend log API, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				url = cfg.API.BackendURL
			}

			records, err := audit.NewHTTPClient(url).List(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetching logs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No logs available.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tTOPIC\tMESSAGE\tUSER")
			for _, r := range records {
				created := "-"
				if !r.CreatedAt.IsZero() {
					created = r.CreatedAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, created, r.Topic, oneLine(r.Message), r.User)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "backend base URL (default api.backend_url)")
	return cmd
}

// oneLine keeps multi-line payloads from breaking the table.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
