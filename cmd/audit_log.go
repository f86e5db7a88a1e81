package cmd

import (
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/adobe/aio-tvm/pkg/client"
)

// auditLogCmd represents the audit log command
var auditLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Retrieve and display audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetUint("limit")
		if err != nil {
			return err
		}
		tenant, _ := cmd.Flags().GetString("tenant")
		provider, _ := cmd.Flags().GetString("provider")
		correlationID, _ := cmd.Flags().GetString("correlation-id")

		cli, err := getClient()
		if err != nil {
			return err
		}

		log.Info().Msg("Fetching audit log...")
		audits, correlation, err := cli.ListAudits(cmd.Context(), client.ListAuditsOpts{
			Limit:         limit,
			CorrelationID: correlationID,
			Tenant:        tenant,
			Provider:      provider,
		})
		if err != nil {
			return logError(err, correlation, "failed to list audit entries")
		}

		log.Info().Msgf("Retrieved %d audit entries", len(audits))

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{
			"Time", "ID", "Tenant", "Provider", "Status", "Granted", "Stage", "Error",
		})

		for _, e := range audits {
			granted := green("YES")
			if !e.Granted {
				granted = red("NO")
			}
			t.AppendRow(table.Row{
				e.Time.Format(time.RFC3339),
				e.ID,
				e.Tenant,
				e.Provider,
				strconv.Itoa(e.StatusCode),
				granted,
				e.Stage,
				truncate(e.Error, 60),
			})
		}

		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditLogCmd)

	auditLogCmd.Flags().UintP("limit", "n", 25, "Number of audit entries to retrieve")
	auditLogCmd.Flags().String("tenant", "", "Only show entries of this tenant")
	auditLogCmd.Flags().String("provider", "", "Only show entries of this provider")
	auditLogCmd.Flags().String("correlation-id", "", "Only show the entry with this correlation id")
}
